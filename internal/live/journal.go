// Package live runs the single-threaded testnet reconciliation loop: poll
// market data and broker state, infer the shadow position, and keep the
// account aligned with the strategy's desired position using far-from-market
// limit orders. Every decision is journalled.
package live

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Event names written to the journal.
const (
	EventSnapshot           = "RECONCILE_SNAPSHOT"
	EventSkip               = "SKIP"
	EventNewOrder           = "NEW_ORDER"
	EventCancel             = "CANCEL"
	EventCancelStale        = "CANCEL_STALE"
	EventOpenOrdersSnapshot = "OPEN_ORDERS_SNAPSHOT"
	EventReconcileOK        = "RECONCILE_OK"
	EventReconcileFail      = "RECONCILE_FAIL"
	EventError              = "ERROR"
)

// Event is one journalled loop decision. Extra carries event-specific fields
// and is stored as JSON.
type Event struct {
	Time            time.Time
	Event           string
	Symbol          string
	LastPx          float64
	PrevClose       float64
	PrevBarOpenTime string
	Desired         int
	Current         int
	OrderID         int64
	Side            string
	Extra           map[string]any
}

// EventSink receives journal events.
type EventSink interface {
	Append(ctx context.Context, ev Event) error
}

// Journal is an append-only SQLite event log.
type Journal struct {
	db *sql.DB
}

var _ EventSink = (*Journal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS order_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_utc        TEXT NOT NULL,
	event         TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	last_px       REAL,
	prev_close    REAL,
	prev_bar_open TEXT,
	desired_pos   INTEGER,
	current_pos   INTEGER,
	order_id      INTEGER,
	side          TEXT,
	extra         TEXT
);
`

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append writes one event row. The journal is append-only; rows are never
// updated or deleted.
func (j *Journal) Append(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	extra := "{}"
	if len(ev.Extra) > 0 {
		b, err := json.Marshal(ev.Extra)
		if err != nil {
			return fmt.Errorf("marshalling journal extra: %w", err)
		}
		extra = string(b)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO order_events
		 (ts_utc, event, symbol, last_px, prev_close, prev_bar_open, desired_pos, current_pos, order_id, side, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC().Format(time.RFC3339Nano), ev.Event, ev.Symbol,
		nullableFloat(ev.LastPx), nullableFloat(ev.PrevClose), ev.PrevBarOpenTime,
		ev.Desired, ev.Current, ev.OrderID, ev.Side, extra)
	return err
}

// nullableFloat maps NaN to NULL; SQLite has no NaN.
func nullableFloat(v float64) any {
	if v != v {
		return nil
	}
	return v
}

// Events returns the most recent events, newest first, up to limit. Used by
// reporting, not by the loop.
func (j *Journal) Events(ctx context.Context, limit int) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT ts_utc, event, symbol, last_px, prev_close, prev_bar_open, desired_pos, current_pos, order_id, side, extra
		 FROM order_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts, extra string
		var lastPx, prevClose sql.NullFloat64
		if err := rows.Scan(&ts, &ev.Event, &ev.Symbol, &lastPx, &prevClose,
			&ev.PrevBarOpenTime, &ev.Desired, &ev.Current, &ev.OrderID, &ev.Side, &extra); err != nil {
			return nil, err
		}
		ev.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing ts_utc %q: %w", ts, err)
		}
		if lastPx.Valid {
			ev.LastPx = lastPx.Float64
		}
		if prevClose.Valid {
			ev.PrevClose = prevClose.Float64
		}
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &ev.Extra); err != nil {
				return nil, fmt.Errorf("parsing extra %q: %w", extra, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
