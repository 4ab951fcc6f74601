package live

import (
	"context"
	"fmt"
	"time"

	"tradewind/internal/domain"
	"tradewind/internal/store"
	"tradewind/internal/strategy"
)

// StrategySignal derives the desired position by replaying a registered
// strategy over recent stored bars plus the just-closed live bar. The bar
// store is expected to be kept current by the gather job.
type StrategySignal struct {
	bars        store.BarStore
	gen         strategy.Generator
	params      strategy.PipelineParams
	interval    string
	intervalDur time.Duration
	lookback    int
}

var _ SignalSource = (*StrategySignal)(nil)

// NewStrategySignal resolves name against the registry and binds the signal
// to a bar store. lookback is the number of trailing bars replayed each call;
// it must cover the slowest indicator warmup.
func NewStrategySignal(bars store.BarStore, reg *strategy.Registry, name string, params strategy.PipelineParams, interval string, lookback int) (*StrategySignal, error) {
	gen, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, reg.List())
	}
	dur, err := time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("parsing interval %q: %w", interval, err)
	}
	if lookback < 2 {
		return nil, fmt.Errorf("lookback must be >= 2, got %d", lookback)
	}
	return &StrategySignal{bars: bars, gen: gen, params: params, interval: interval, intervalDur: dur, lookback: lookback}, nil
}

// DesiredPosition returns the strategy's position for the most recent closed
// bar.
func (s *StrategySignal) DesiredPosition(ctx context.Context, prevBar domain.Bar) (int, error) {
	start := prevBar.OpenTime.Add(-time.Duration(s.lookback) * s.intervalDur)
	history, err := s.bars.ReadBars(ctx, prevBar.Symbol, s.interval, start, prevBar.OpenTime)
	if err != nil {
		return 0, fmt.Errorf("reading bar history: %w", err)
	}
	if len(history) == 0 || history[len(history)-1].OpenTime.Before(prevBar.OpenTime) {
		history = append(history, prevBar)
	}
	if len(history) < 2 {
		return 0, fmt.Errorf("not enough history for %s: %d bars", prevBar.Symbol, len(history))
	}

	in, err := strategy.BuildInputs(history, s.params)
	if err != nil {
		return 0, err
	}
	pos, err := s.gen(in)
	if err != nil {
		return 0, err
	}
	return pos[len(pos)-1], nil
}
