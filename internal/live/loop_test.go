package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/domain"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type submittedOrder struct {
	Side     domain.Side
	Qty      string
	Price    string
	ClientID string
}

type fakeExchange struct {
	price     float64
	priceErr  error
	klines    []broker.Kline
	filters   broker.SymbolFilters
	acct      *broker.AccountSnapshot
	open      []broker.OpenOrder
	trades    []broker.AccountTrade
	tradesErr error

	acctCalls int
	submitted []submittedOrder
	cancelled []int64
	nextID    int64
}

func (f *fakeExchange) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.priceErr
}

func (f *fakeExchange) Klines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]broker.Kline, error) {
	return f.klines, nil
}

func (f *fakeExchange) SymbolFilters(ctx context.Context, symbol string) (broker.SymbolFilters, error) {
	return f.filters, nil
}

func (f *fakeExchange) Account(ctx context.Context) (*broker.AccountSnapshot, error) {
	f.acctCalls++
	return f.acct, nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]broker.OpenOrder, error) {
	out := make([]broker.OpenOrder, len(f.open))
	copy(out, f.open)
	return out, nil
}

func (f *fakeExchange) NewLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price, timeInForce, clientOrderID string) (*broker.OrderAck, error) {
	f.submitted = append(f.submitted, submittedOrder{Side: side, Qty: quantity, Price: price, ClientID: clientOrderID})
	f.nextID++
	return &broker.OrderAck{Symbol: symbol, OrderID: 9000 + f.nextID, ClientOrderID: clientOrderID, Status: "NEW", Side: string(side)}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	f.cancelled = append(f.cancelled, orderID)
	kept := f.open[:0]
	for _, o := range f.open {
		if o.OrderID != orderID {
			kept = append(kept, o)
		}
	}
	f.open = kept
	return nil
}

func (f *fakeExchange) MyTrades(ctx context.Context, symbol string, limit int) ([]broker.AccountTrade, error) {
	return f.trades, f.tradesErr
}

type memSink struct {
	events []Event
}

func (s *memSink) Append(ctx context.Context, ev Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) names() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Event
	}
	return out
}

func (s *memSink) has(name string) bool {
	for _, ev := range s.events {
		if ev.Event == name {
			return true
		}
	}
	return false
}

type fixedSignal struct {
	pos int
	err error
}

func (s fixedSignal) DesiredPosition(ctx context.Context, prevBar domain.Bar) (int, error) {
	return s.pos, s.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testKlines() []broker.Kline {
	base := testNow.Add(-30 * time.Minute).UnixMilli()
	return []broker.Kline{
		{OpenTime: base, Open: 30000, High: 30100, Low: 29900, Close: 30050, Volume: 10},
		{OpenTime: base + 15*60*1000, Open: 30050, High: 30060, Low: 30000, Close: 30020, Volume: 4},
	}
}

func testFilters() broker.SymbolFilters {
	return broker.SymbolFilters{
		TickSize: 0.01, StepSize: 0.00001,
		MinQty: 0.00001, MaxQty: 9000, MinNotional: 5,
		TickSizeStr: "0.01", StepSizeStr: "0.00001",
	}
}

func testSnapshot(btcFree, usdtFree string) *broker.AccountSnapshot {
	return &broker.AccountSnapshot{Balances: []broker.Balance{
		{Asset: "BTC", Free: btcFree, Locked: "0"},
		{Asset: "USDT", Free: usdtFree, Locked: "0"},
	}}
}

func testLiveConfig() config.LiveConfig {
	return config.LiveConfig{
		Symbol:               "BTCUSDT",
		Interval:             "15m",
		LoopSleepSeconds:     1,
		OrderNotionalUSDT:    50,
		FarBPS:               30,
		MaxOpenOrders:        3,
		CancelStaleAfterMin:  45,
		ReconcileEveryNLoops: 1,
		MinNotionalFloorUSDT: 5,
		TradesCheckLimit:     10,
	}
}

func newTestLoop(cfg config.LiveConfig, ex *fakeExchange, desired int) (*Loop, *memSink) {
	sink := &memSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewLoop(cfg, ex, fixedSignal{pos: desired}, sink, log)
	l.now = func() time.Time { return testNow }
	return l, sink
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestIterationSubmitsBuyWhenFlatAndLongDesired(t *testing.T) {
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
	}
	l, sink := newTestLoop(testLiveConfig(), ex, domain.PositionLong)

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.submitted) != 1 {
		t.Fatalf("submitted %d orders, want 1 (%v)", len(ex.submitted), sink.names())
	}
	got := ex.submitted[0]
	if got.Side != domain.SideBuy {
		t.Errorf("side = %s, want BUY", got.Side)
	}
	if got.Qty != "0.00166" {
		t.Errorf("qty = %q, want 0.00166", got.Qty)
	}
	if !sink.has(EventSnapshot) || !sink.has(EventNewOrder) || !sink.has(EventOpenOrdersSnapshot) {
		t.Errorf("missing events, got %v", sink.names())
	}
	if !sink.has(EventReconcileOK) {
		t.Errorf("expected %s, got %v", EventReconcileOK, sink.names())
	}
}

func TestIterationGateBlocksOnOpenOrders(t *testing.T) {
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
		open: []broker.OpenOrder{
			{Symbol: "BTCUSDT", OrderID: 42, Side: "BUY", ExecutedQty: "0", Time: testNow.Add(-time.Minute).UnixMilli()},
		},
	}
	l, sink := newTestLoop(testLiveConfig(), ex, domain.PositionLong)
	l.expected[42] = true

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.submitted) != 0 {
		t.Fatalf("submitted %d orders, want 0", len(ex.submitted))
	}
	if !sink.has(EventSkip) {
		t.Errorf("expected %s, got %v", EventSkip, sink.names())
	}
	if !sink.has(EventReconcileOK) {
		t.Errorf("expected %s, got %v", EventReconcileOK, sink.names())
	}
}

func TestIterationSellsWhenShadowLongAndFlatDesired(t *testing.T) {
	// 0.01 BTC at 30k is 300 USDT, well over the 25 USDT threshold.
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0.01", "100"),
	}
	l, _ := newTestLoop(testLiveConfig(), ex, domain.PositionFlat)

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.submitted) != 1 {
		t.Fatalf("submitted %d orders, want 1", len(ex.submitted))
	}
	if ex.submitted[0].Side != domain.SideSell {
		t.Errorf("side = %s, want SELL", ex.submitted[0].Side)
	}
}

func TestIterationCancelsOverflow(t *testing.T) {
	cfg := testLiveConfig()
	cfg.MaxOpenOrders = 1
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
		open: []broker.OpenOrder{
			{Symbol: "BTCUSDT", OrderID: 1, Side: "BUY", ExecutedQty: "0", Time: testNow.Add(-time.Minute).UnixMilli()},
			{Symbol: "BTCUSDT", OrderID: 2, Side: "BUY", ExecutedQty: "0", Time: testNow.Add(-time.Minute).UnixMilli()},
		},
	}
	l, sink := newTestLoop(cfg, ex, domain.PositionFlat)
	l.expected[1], l.expected[2] = true, true

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.cancelled) != 2 {
		t.Fatalf("cancelled %v, want both orders", ex.cancelled)
	}
	if !sink.has(EventCancel) {
		t.Errorf("expected %s, got %v", EventCancel, sink.names())
	}
}

func TestIterationCancelsStaleOnly(t *testing.T) {
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
		open: []broker.OpenOrder{
			{Symbol: "BTCUSDT", OrderID: 7, Side: "BUY", ExecutedQty: "0", Time: testNow.Add(-2 * time.Hour).UnixMilli()},
			{Symbol: "BTCUSDT", OrderID: 8, Side: "BUY", ExecutedQty: "0", Time: testNow.Add(-time.Minute).UnixMilli()},
		},
	}
	l, sink := newTestLoop(testLiveConfig(), ex, domain.PositionLong)
	l.expected[7], l.expected[8] = true, true

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.cancelled) != 1 || ex.cancelled[0] != 7 {
		t.Fatalf("cancelled %v, want only order 7", ex.cancelled)
	}
	if !sink.has(EventCancelStale) {
		t.Errorf("expected %s, got %v", EventCancelStale, sink.names())
	}
	// One fresh order remains open, so the trade gate must hold.
	if len(ex.submitted) != 0 {
		t.Errorf("submitted %d orders, want 0", len(ex.submitted))
	}
}

func TestIterationReconcileFailCancelsForeignOrder(t *testing.T) {
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
		open: []broker.OpenOrder{
			{Symbol: "BTCUSDT", OrderID: 555, Side: "SELL", ExecutedQty: "0", Time: testNow.Add(-time.Minute).UnixMilli()},
		},
	}
	l, sink := newTestLoop(testLiveConfig(), ex, domain.PositionFlat)

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if !sink.has(EventReconcileFail) {
		t.Fatalf("expected %s, got %v", EventReconcileFail, sink.names())
	}
	if len(ex.cancelled) != 1 || ex.cancelled[0] != 555 {
		t.Errorf("cancelled %v, want the foreign order 555", ex.cancelled)
	}
}

func TestIterationSkipsBelowMinNotional(t *testing.T) {
	cfg := testLiveConfig()
	cfg.OrderNotionalUSDT = 1 // quantized notional falls under the 5 USDT filter
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
	}
	l, sink := newTestLoop(cfg, ex, domain.PositionLong)

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if len(ex.submitted) != 0 {
		t.Fatalf("submitted %d orders, want 0", len(ex.submitted))
	}
	if !sink.has("SKIP_ORDER_MINNOTIONAL") {
		t.Errorf("expected SKIP_ORDER_MINNOTIONAL, got %v", sink.names())
	}
}

func TestShadowCheckSkippedOnOffLoops(t *testing.T) {
	cfg := testLiveConfig()
	cfg.ReconcileEveryNLoops = 3
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0.01", "100"),
	}
	l, _ := newTestLoop(cfg, ex, domain.PositionLong)
	l.loopI = 1

	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if ex.acctCalls != 0 {
		t.Errorf("account fetched %d times on an off loop, want 0", ex.acctCalls)
	}

	l.loopI = 3
	if err := l.Iteration(context.Background()); err != nil {
		t.Fatalf("Iteration: %v", err)
	}
	if ex.acctCalls != 1 {
		t.Errorf("account fetched %d times on a reconcile loop, want 1", ex.acctCalls)
	}
}

func TestRunOnceJournalsIterationError(t *testing.T) {
	ex := &fakeExchange{priceErr: errors.New("boom")}
	l, sink := newTestLoop(testLiveConfig(), ex, domain.PositionLong)

	err := l.Run(context.Background(), true)
	if err == nil {
		t.Fatal("Run returned nil, want ticker error")
	}
	if !sink.has(EventError) {
		t.Errorf("expected %s, got %v", EventError, sink.names())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ex := &fakeExchange{
		price:   30000,
		klines:  testKlines(),
		filters: testFilters(),
		acct:    testSnapshot("0", "1000"),
	}
	l, _ := newTestLoop(testLiveConfig(), ex, domain.PositionFlat)
	iterations := 0
	l.sleep = func(ctx context.Context, d time.Duration) error {
		iterations++
		if iterations >= 2 {
			return context.Canceled
		}
		return nil
	}

	if err := l.Run(context.Background(), false); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if iterations != 2 {
		t.Errorf("slept %d times, want 2", iterations)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	j, err := OpenJournal(t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	events := []Event{
		{Event: EventSnapshot, Symbol: "BTCUSDT", LastPx: 30000, PrevClose: 30020, Desired: 1, Extra: map[string]any{"target": 1}},
		{Event: EventNewOrder, Symbol: "BTCUSDT", LastPx: 30000, OrderID: 9001, Side: "BUY"},
	}
	for _, ev := range events {
		if err := j.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.Event, err)
		}
	}

	got, err := j.Events(ctx, 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d events, want 2", len(got))
	}
	// Newest first.
	if got[0].Event != EventNewOrder || got[0].OrderID != 9001 {
		t.Errorf("got[0] = %+v, want the NEW_ORDER row", got[0])
	}
	if got[1].Event != EventSnapshot || got[1].LastPx != 30000 {
		t.Errorf("got[1] = %+v, want the snapshot row", got[1])
	}
	if got[1].Extra["target"] != float64(1) {
		t.Errorf("extra round-trip = %v, want target=1", got[1].Extra)
	}
}
