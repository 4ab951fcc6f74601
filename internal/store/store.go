// Package store persists market data and backtest results: OHLCV klines in
// Parquet files on disk, run summaries in SQLite.
package store

import (
	"context"
	"time"

	"tradewind/internal/domain"
)

// BarStore persists and retrieves OHLCV kline data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with any already stored.
	WriteBars(ctx context.Context, bars []domain.Bar, interval string) error

	// ReadBars returns bars for the symbol and interval within [start, end],
	// sorted by open time.
	ReadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored data.
	ListSymbols(ctx context.Context) ([]string, error)
}

// BacktestRun is one persisted backtest summary.
type BacktestRun struct {
	ID        string
	CreatedAt time.Time
	Symbol    string
	Interval  string
	Strategy  string
	Params    string // strategy parameters, serialized for reproducibility
	Stats     map[string]float64
}

// ResultStore persists backtest run summaries.
type ResultStore interface {
	// SaveRun inserts a run and its metric rows.
	SaveRun(ctx context.Context, run *BacktestRun) error

	// GetRun retrieves a run by ID, including its metrics.
	GetRun(ctx context.Context, id string) (*BacktestRun, error)

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]BacktestRun, error)
}
