// Package gather backfills historical klines from the exchange into the bar
// store and audits the result for gaps, duplicates, and outliers.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/domain"
	"tradewind/internal/store"
)

// KlineSource provides paged kline history. *broker.Client satisfies it.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]broker.Kline, error)
}

var _ KlineSource = (*broker.Client)(nil)

// KlineGatherer pages kline history for a set of symbols into the bar store.
type KlineGatherer struct {
	client KlineSource
	store  store.BarStore
	cfg    config.GatherConfig
	log    *slog.Logger
}

// NewKlineGatherer creates a gatherer for the configured symbols and window.
func NewKlineGatherer(client KlineSource, s store.BarStore, cfg config.GatherConfig) *KlineGatherer {
	return &KlineGatherer{
		client: client,
		store:  s,
		cfg:    cfg,
		log:    slog.Default().With("component", "gather"),
	}
}

// Run backfills every configured symbol, fanning out across up to MaxWorkers
// goroutines. The first symbol failure cancels the rest.
func (g *KlineGatherer) Run(ctx context.Context) error {
	start, err := time.Parse(time.RFC3339, g.cfg.StartUTC)
	if err != nil {
		return fmt.Errorf("parsing start_utc %q: %w", g.cfg.StartUTC, err)
	}
	end, err := time.Parse(time.RFC3339, g.cfg.EndUTC)
	if err != nil {
		return fmt.Errorf("parsing end_utc %q: %w", g.cfg.EndUTC, err)
	}
	if !end.After(start) {
		return fmt.Errorf("end_utc %s must be after start_utc %s", g.cfg.EndUTC, g.cfg.StartUTC)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxWorkers)

	for _, symbol := range g.cfg.Symbols {
		eg.Go(func() error {
			n, err := g.fetchSymbol(ctx, symbol, start, end)
			if err != nil {
				return fmt.Errorf("gathering %s: %w", symbol, err)
			}
			g.log.Info("symbol backfilled", "symbol", symbol, "interval", g.cfg.Interval, "bars", n)
			return nil
		})
	}
	return eg.Wait()
}

// fetchSymbol pages one symbol's window. The cursor advances to the last open
// time plus one millisecond, so consecutive pages never overlap.
func (g *KlineGatherer) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	startMS := start.UnixMilli()
	endMS := end.UnixMilli()

	var total int
	cursor := startMS
	for cursor < endMS {
		batch, err := g.client.Klines(ctx, symbol, g.cfg.Interval, cursor, endMS, g.cfg.LimitPerRequest)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		bars := make([]domain.Bar, 0, len(batch))
		for _, k := range batch {
			bars = append(bars, k.Bar(symbol))
		}
		if err := g.store.WriteBars(ctx, bars, g.cfg.Interval); err != nil {
			return total, err
		}
		total += len(bars)

		next := batch[len(batch)-1].OpenTime + 1
		if next <= cursor {
			// The exchange repeated a page; force the cursor forward.
			next = cursor + 1
		}
		cursor = next
	}
	return total, nil
}
