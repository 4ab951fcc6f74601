package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const resultSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	interval   TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	params     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_metrics (
	run_id TEXT NOT NULL REFERENCES backtest_runs(id),
	name   TEXT NOT NULL,
	value  REAL,
	PRIMARY KEY (run_id, name)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(resultSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating result schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts a run and its metric rows in one transaction. A missing ID
// or timestamp is filled in.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *BacktestRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO backtest_runs (id, created_at, symbol, interval, strategy, params)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339Nano),
		run.Symbol, run.Interval, run.Strategy, run.Params)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for name, value := range run.Stats {
		// NaN has no SQLite representation; store it as NULL.
		var v any = value
		if math.IsNaN(value) {
			v = nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backtest_metrics (run_id, name, value) VALUES (?, ?, ?)`,
			run.ID, name, v); err != nil {
			return fmt.Errorf("inserting metric %s for run %s: %w", name, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run and its metrics by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*BacktestRun, error) {
	run := &BacktestRun{ID: id, Stats: make(map[string]float64)}

	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, symbol, interval, strategy, params
		 FROM backtest_runs WHERE id = ?`, id).
		Scan(&createdAt, &run.Symbol, &run.Interval, &run.Strategy, &run.Params)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM backtest_metrics WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value sql.NullFloat64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			run.Stats[name] = value.Float64
		} else {
			run.Stats[name] = math.NaN()
		}
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs without metrics, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, symbol, interval, strategy, params
		 FROM backtest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		var run BacktestRun
		var createdAt string
		if err := rows.Scan(&run.ID, &createdAt, &run.Symbol, &run.Interval, &run.Strategy, &run.Params); err != nil {
			return nil, err
		}
		run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
