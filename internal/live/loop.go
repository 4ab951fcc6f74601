package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/domain"
	"tradewind/internal/reconcile"
)

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// Exchange is the broker surface the loop needs. *broker.Client satisfies it;
// tests substitute a fake.
type Exchange interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]broker.Kline, error)
	SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error)
	Account(ctx context.Context) (*broker.AccountSnapshot, error)
	OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error)
	NewLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price, timeInForce, clientOrderID string) (*broker.OrderAck, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	MyTrades(ctx context.Context, symbol string, limit int) ([]broker.AccountTrade, error)
}

var _ Exchange = (*broker.Client)(nil)

// SignalSource produces the strategy's desired position for the symbol given
// the most recent closed bar.
type SignalSource interface {
	DesiredPosition(ctx context.Context, prevBar domain.Bar) (int, error)
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

// Loop is the single-threaded live reconciliation loop. It is not safe for
// concurrent use; run it from exactly one goroutine.
type Loop struct {
	cfg     config.LiveConfig
	ex      Exchange
	signal  SignalSource
	journal EventSink
	log     *slog.Logger

	// Order IDs this loop has submitted and not yet seen resolved. Orders
	// open at the broker that are not in this set are treated as foreign.
	expected map[int64]bool

	loopI int
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop wires a live loop from its dependencies.
func NewLoop(cfg config.LiveConfig, ex Exchange, signal SignalSource, journal EventSink, log *slog.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		ex:       ex,
		signal:   signal,
		journal:  journal,
		log:      log,
		expected: make(map[int64]bool),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes iterations until ctx is cancelled. Iteration errors are
// journalled and logged, never fatal; only a cancelled context stops the
// loop. When once is true a single iteration runs and its error is returned.
func (l *Loop) Run(ctx context.Context, once bool) error {
	for {
		start := l.now()
		err := l.Iteration(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("live iteration failed", "loop", l.loopI, "err", err)
			l.journalEvent(ctx, Event{
				Event:  EventError,
				Symbol: l.cfg.Symbol,
				Extra:  map[string]any{"error": err.Error(), "loop": l.loopI},
			})
		}
		l.loopI++
		if once {
			return err
		}

		elapsed := l.now().Sub(start)
		pause := time.Duration(l.cfg.LoopSleepSeconds)*time.Second - elapsed
		if pause < 0 {
			pause = 0
		}
		if err := l.sleep(ctx, pause); err != nil {
			return err
		}
	}
}

// Iteration performs one poll-decide-act-verify cycle.
func (l *Loop) Iteration(ctx context.Context) error {
	symbol := l.cfg.Symbol

	lastPx, err := l.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetching ticker: %w", err)
	}

	// The most recent kline is the still-forming bar; signal off the one
	// before it.
	ks, err := l.ex.Klines(ctx, symbol, l.cfg.Interval, 0, 0, 2)
	if err != nil {
		return fmt.Errorf("fetching klines: %w", err)
	}
	if len(ks) < 2 {
		return fmt.Errorf("need 2 klines for a closed bar, got %d", len(ks))
	}
	prev := ks[len(ks)-2]
	prevBar := prev.Bar(symbol)

	desired, err := l.signal.DesiredPosition(ctx, prevBar)
	if err != nil {
		return fmt.Errorf("computing desired position: %w", err)
	}

	open, err := l.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetching open orders: %w", err)
	}

	shadow, shadowReason, err := l.inferShadow(ctx, symbol, lastPx, desired)
	if err != nil {
		return err
	}
	target := reconcile.SpotTarget(desired)

	l.journalEvent(ctx, Event{
		Event:           EventSnapshot,
		Symbol:          symbol,
		LastPx:          lastPx,
		PrevClose:       prevBar.Close,
		PrevBarOpenTime: prevBar.OpenTime.Format(time.RFC3339),
		Desired:         desired,
		Current:         shadow,
		Extra: map[string]any{
			"target":      target,
			"open_orders": len(open),
			"shadow":      shadowReason,
		},
	})

	open, err = l.pruneOpenOrders(ctx, symbol, open, desired, shadow)
	if err != nil {
		return err
	}

	if err := l.maybeOrder(ctx, symbol, lastPx, desired, target, shadow, len(open)); err != nil {
		return err
	}

	open, err = l.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("refreshing open orders: %w", err)
	}
	ids := make([]int64, 0, len(open))
	for _, o := range open {
		ids = append(ids, o.OrderID)
	}
	l.journalEvent(ctx, Event{
		Event:   EventOpenOrdersSnapshot,
		Symbol:  symbol,
		LastPx:  lastPx,
		Desired: desired,
		Current: shadow,
		Extra:   map[string]any{"count": len(open), "order_ids": ids},
	})

	l.verifyOrders(ctx, symbol, open, desired, shadow)
	return nil
}

// inferShadow reads balances every ReconcileEveryNLoops iterations; on the
// off iterations it assumes flat, which can only cause an extra BUY intent
// that ShouldTrade then blocks if orders are already open.
func (l *Loop) inferShadow(ctx context.Context, symbol string, lastPx float64, desired int) (int, string, error) {
	every := l.cfg.ReconcileEveryNLoops
	if every > 1 && l.loopI%every != 0 {
		return 0, "balance check skipped this loop; assuming flat", nil
	}
	acct, err := l.ex.Account(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("fetching account: %w", err)
	}
	sr := reconcile.InferShadowSpot(symbol, acct, lastPx, desired,
		l.cfg.OrderNotionalUSDT, l.cfg.MinNotionalFloorUSDT)
	return sr.ShadowPosition, sr.Reason, nil
}

// pruneOpenOrders cancels everything when the book is over the cap, then
// cancels individual stale orders, and returns the refreshed book.
func (l *Loop) pruneOpenOrders(ctx context.Context, symbol string, open []broker.OpenOrder, desired, shadow int) ([]broker.OpenOrder, error) {
	cancelled := 0

	if l.cfg.MaxOpenOrders > 0 && len(open) > l.cfg.MaxOpenOrders {
		for _, o := range open {
			if err := l.ex.CancelOrder(ctx, symbol, o.OrderID); err != nil {
				return nil, fmt.Errorf("cancelling order %d: %w", o.OrderID, err)
			}
			delete(l.expected, o.OrderID)
			cancelled++
			l.journalEvent(ctx, Event{
				Event:   EventCancel,
				Symbol:  symbol,
				Desired: desired,
				Current: shadow,
				OrderID: o.OrderID,
				Side:    o.Side,
				Extra:   map[string]any{"reason": "open orders over cap", "cap": l.cfg.MaxOpenOrders},
			})
		}
	} else if l.cfg.CancelStaleAfterMin > 0 {
		cutoff := l.now().Add(-time.Duration(l.cfg.CancelStaleAfterMin) * time.Minute).UnixMilli()
		for _, o := range open {
			if o.Time == 0 || o.Time >= cutoff {
				continue
			}
			if err := l.ex.CancelOrder(ctx, symbol, o.OrderID); err != nil {
				return nil, fmt.Errorf("cancelling stale order %d: %w", o.OrderID, err)
			}
			delete(l.expected, o.OrderID)
			cancelled++
			l.journalEvent(ctx, Event{
				Event:   EventCancelStale,
				Symbol:  symbol,
				Desired: desired,
				Current: shadow,
				OrderID: o.OrderID,
				Side:    o.Side,
				Extra:   map[string]any{"age_limit_min": l.cfg.CancelStaleAfterMin, "order_time_ms": o.Time},
			})
		}
	}

	if cancelled == 0 {
		return open, nil
	}
	open, err := l.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("refreshing open orders after cancel: %w", err)
	}
	return open, nil
}

// maybeOrder runs the trade gate and, if it allows, quantizes and submits one
// far limit order.
func (l *Loop) maybeOrder(ctx context.Context, symbol string, lastPx float64, desired, target, shadow, openCount int) error {
	ok, gateReason := reconcile.ShouldTrade(target, shadow, openCount)
	if !ok {
		l.journalEvent(ctx, Event{
			Event:   EventSkip,
			Symbol:  symbol,
			LastPx:  lastPx,
			Desired: desired,
			Current: shadow,
			Extra:   map[string]any{"reason": gateReason},
		})
		return nil
	}

	effDesired := -1
	if target == 1 {
		effDesired = 1
	}
	intent := reconcile.DecideOrder(symbol, lastPx, effDesired, shadow,
		l.cfg.OrderNotionalUSDT, l.cfg.FarBPS, l.now().UnixMilli(), true)
	if intent == nil {
		l.journalEvent(ctx, Event{
			Event:   EventSkip,
			Symbol:  symbol,
			LastPx:  lastPx,
			Desired: desired,
			Current: shadow,
			Extra:   map[string]any{"reason": "target already matches shadow"},
		})
		return nil
	}

	filters, err := l.ex.SymbolFilters(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetching symbol filters: %w", err)
	}
	qty, px, err := broker.QuantizeOrder(filters, intent.Quantity, intent.Price)
	if err != nil {
		var skip *broker.SkipError
		if errors.As(err, &skip) {
			l.journalEvent(ctx, Event{
				Event:   "SKIP_ORDER_" + strings.ToUpper(skip.Rule),
				Symbol:  symbol,
				LastPx:  lastPx,
				Desired: desired,
				Current: shadow,
				Side:    string(intent.Side),
				Extra:   map[string]any{"reason": skip.Reason},
			})
			return nil
		}
		return fmt.Errorf("quantizing order: %w", err)
	}

	ack, err := l.ex.NewLimitOrder(ctx, symbol, intent.Side, qty, px, intent.TimeInForce, intent.ClientOrderID)
	if err != nil {
		return fmt.Errorf("submitting order: %w", err)
	}
	l.expected[ack.OrderID] = true
	l.journalEvent(ctx, Event{
		Event:   EventNewOrder,
		Symbol:  symbol,
		LastPx:  lastPx,
		Desired: desired,
		Current: shadow,
		OrderID: ack.OrderID,
		Side:    string(intent.Side),
		Extra: map[string]any{
			"qty":             qty,
			"price":           px,
			"client_order_id": ack.ClientOrderID,
			"status":          ack.Status,
			"reason":          intent.Reason,
		},
	})
	return nil
}

// verifyOrders compares broker truth against the expected-order set and
// journals the verdict. On failure any foreign open orders are cancelled.
// Verification problems are journalled, not returned; the next iteration
// rechecks anyway.
func (l *Loop) verifyOrders(ctx context.Context, symbol string, open []broker.OpenOrder, desired, shadow int) {
	limit := l.cfg.TradesCheckLimit
	if limit <= 0 {
		limit = 10
	}
	trades, terr := l.ex.MyTrades(ctx, symbol, limit)
	tradesChecked := terr == nil
	if terr != nil {
		l.log.Warn("recent trades unavailable", "symbol", symbol, "err", terr)
	}

	res := reconcile.CheckOrders(open, trades, tradesChecked, l.expected)
	for _, id := range res.MissingExpected {
		delete(l.expected, id)
	}

	name := EventReconcileOK
	if !res.OK {
		name = EventReconcileFail
	}
	l.journalEvent(ctx, Event{
		Event:   name,
		Symbol:  symbol,
		Desired: desired,
		Current: shadow,
		Extra: map[string]any{
			"reason":           res.Reason,
			"open_orders":      res.OpenOrdersCount,
			"missing_expected": res.MissingExpected,
			"unexpected_open":  res.UnexpectedOpen,
			"trades_checked":   tradesChecked,
			"recent_trades":    res.RecentTradesCount,
		},
	})

	if !res.OK {
		for _, id := range res.UnexpectedOpen {
			if err := l.ex.CancelOrder(ctx, symbol, id); err != nil {
				l.log.Warn("cancelling foreign order failed", "order_id", id, "err", err)
				continue
			}
			l.journalEvent(ctx, Event{
				Event:   EventCancel,
				Symbol:  symbol,
				Desired: desired,
				Current: shadow,
				OrderID: id,
				Extra:   map[string]any{"reason": "foreign open order"},
			})
		}
	}
}

func (l *Loop) journalEvent(ctx context.Context, ev Event) {
	ev.Time = l.now().UTC()
	if err := l.journal.Append(ctx, ev); err != nil {
		l.log.Error("journal write failed", "event", ev.Event, "err", err)
	}
}
