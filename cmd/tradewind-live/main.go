package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/live"
	"tradewind/internal/store"
	"tradewind/internal/strategy"
	"tradewind/internal/util"
)

// signalLookbackBars covers the slowest indicator warmup (slow EMA span 100,
// VWAP window 96) with margin.
const signalLookbackBars = 600

func main() {
	once := flag.Bool("once", false, "run a single iteration and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/tradewind.yaml"
	if p := os.Getenv("TRADEWIND_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		log.Fatalf("%v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	client := broker.NewClient(cfg.Broker)
	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	params := strategy.DefaultPipelineParams()
	registry := strategy.NewDefaultRegistry(params)
	sig, err := live.NewStrategySignal(pstore, registry, cfg.Live.StrategyName, params,
		cfg.Live.Interval, signalLookbackBars)
	if err != nil {
		log.Fatalf("wiring strategy signal: %v", err)
	}

	journalPath := filepath.Join(cfg.Storage.DataDir, "live_journal.db")
	journal, err := live.OpenJournal(journalPath)
	if err != nil {
		log.Fatalf("opening journal: %v", err)
	}
	defer journal.Close()

	loop := live.NewLoop(cfg.Live, client, sig, journal, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting live loop",
		"symbol", cfg.Live.Symbol, "interval", cfg.Live.Interval,
		"strategy", cfg.Live.StrategyName, "base_url", cfg.Broker.BaseURL,
		"journal", journalPath, "once", *once)
	if err := loop.Run(ctx, *once); err != nil && ctx.Err() == nil {
		log.Fatalf("live loop error: %v", err)
	}
	slog.Info("live loop stopped")
}
