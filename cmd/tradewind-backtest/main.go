package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"tradewind/internal/backtest"
	"tradewind/internal/config"
	"tradewind/internal/store"
	"tradewind/internal/strategy"
	"tradewind/internal/util"
)

func main() {
	symbolFlag := flag.String("symbol", "", "symbol to backtest (default: live.symbol)")
	strategyFlag := flag.String("strategy", "", "strategy name (default: all registered)")
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

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	symbol := *symbolFlag
	if symbol == "" {
		symbol = cfg.Live.Symbol
	}
	if symbol == "" {
		log.Fatal("no symbol: pass -symbol or set live.symbol")
	}

	start, err := time.Parse(time.RFC3339, cfg.Gather.StartUTC)
	if err != nil {
		log.Fatalf("bad gather.start_utc: %v", err)
	}
	end, err := time.Parse(time.RFC3339, cfg.Gather.EndUTC)
	if err != nil {
		log.Fatalf("bad gather.end_utc: %v", err)
	}

	ctx := context.Background()
	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	bars, err := pstore.ReadBars(ctx, symbol, cfg.Gather.Interval, start, end)
	if err != nil {
		log.Fatalf("reading bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no bars for %s %s in [%s, %s]; run tradewind-fetch first",
			symbol, cfg.Gather.Interval, cfg.Gather.StartUTC, cfg.Gather.EndUTC)
	}
	slog.Info("loaded bars", "symbol", symbol, "interval", cfg.Gather.Interval, "count", len(bars))

	params := strategy.DefaultPipelineParams()
	inputs, err := strategy.BuildInputs(bars, params)
	if err != nil {
		log.Fatalf("building indicators: %v", err)
	}
	registry := strategy.NewDefaultRegistry(params)

	names := registry.List()
	if *strategyFlag != "" {
		names = []string{*strategyFlag}
	}

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening results store: %v", err)
	}
	defer results.Close()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		log.Fatalf("encoding params: %v", err)
	}

	for _, name := range names {
		gen, ok := registry.Get(name)
		if !ok {
			log.Fatalf("unknown strategy %q (have %v)", name, registry.List())
		}
		positions, err := gen(inputs)
		if err != nil {
			log.Fatalf("%s: generating positions: %v", name, err)
		}

		res, err := backtest.Run(inputs.Close, positions, backtest.Params{
			CostPerTurnover: cfg.Backtest.CostPerTurnover,
			ExecutionLag:    cfg.Backtest.ExecutionLag,
		})
		if err != nil {
			log.Fatalf("%s: backtest: %v", name, err)
		}
		stats := backtest.Stats(res, backtest.RiskConfig{
			BarsPerYear: float64(cfg.Backtest.BarsPerYear),
			VaRAlpha:    cfg.Backtest.VaRAlpha,
		})

		run := &store.BacktestRun{
			Symbol:   symbol,
			Interval: cfg.Gather.Interval,
			Strategy: name,
			Params:   string(paramsJSON),
			Stats:    stats,
		}
		if err := results.SaveRun(ctx, run); err != nil {
			log.Fatalf("%s: saving run: %v", name, err)
		}

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := []any{"strategy", name, "run_id", run.ID}
		for _, k := range keys {
			attrs = append(attrs, k, stats[k])
		}
		slog.Info("backtest complete", attrs...)
	}
}
