package gather

import (
	"context"
	"testing"
	"time"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/domain"
)

// fakeSource serves klines on a fixed grid, recording the cursors it was
// asked for.
type fakeSource struct {
	intervalMS int64
	firstMS    int64
	lastMS     int64
	pageSize   int
	cursors    []int64
}

func (f *fakeSource) Klines(_ context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]broker.Kline, error) {
	f.cursors = append(f.cursors, startMS)

	// First grid point at or after startMS.
	open := f.firstMS
	if startMS > open {
		steps := (startMS - f.firstMS + f.intervalMS - 1) / f.intervalMS
		open = f.firstMS + steps*f.intervalMS
	}

	n := limit
	if f.pageSize > 0 && f.pageSize < n {
		n = f.pageSize
	}

	var out []broker.Kline
	for len(out) < n && open <= f.lastMS && open < endMS {
		out = append(out, broker.Kline{
			OpenTime:  open,
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume:    1,
			CloseTime: open + f.intervalMS - 1,
		})
		open += f.intervalMS
	}
	return out, nil
}

// memStore collects written bars.
type memStore struct {
	bars []domain.Bar
}

func (m *memStore) WriteBars(_ context.Context, bars []domain.Bar, _ string) error {
	m.bars = append(m.bars, bars...)
	return nil
}

func (m *memStore) ReadBars(_ context.Context, _, _ string, _, _ time.Time) ([]domain.Bar, error) {
	return m.bars, nil
}

func (m *memStore) ListSymbols(_ context.Context) ([]string, error) { return nil, nil }

func TestKlineGathererPagination(t *testing.T) {
	const interval = int64(15 * 60 * 1000)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	src := &fakeSource{
		intervalMS: interval,
		firstMS:    start.UnixMilli(),
		lastMS:     start.UnixMilli() + 9*interval, // 10 bars total
		pageSize:   4,
	}
	st := &memStore{}

	g := NewKlineGatherer(src, st, config.GatherConfig{
		Symbols:         []string{"BTCUSDT"},
		Interval:        "15m",
		StartUTC:        "2024-01-01T00:00:00Z",
		EndUTC:          "2024-01-01T03:00:00Z",
		LimitPerRequest: 1000,
		MaxWorkers:      2,
	})

	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(st.bars) != 10 {
		t.Fatalf("stored %d bars, want 10", len(st.bars))
	}
	// No bar fetched twice: every open time unique.
	seen := make(map[int64]bool)
	for _, b := range st.bars {
		ms := b.OpenTime.UnixMilli()
		if seen[ms] {
			t.Errorf("bar %d fetched twice", ms)
		}
		seen[ms] = true
	}
	// The cursor advances past the last open time of each page.
	if len(src.cursors) < 3 {
		t.Fatalf("cursors = %v, want at least 3 pages", src.cursors)
	}
	for i := 1; i < len(src.cursors); i++ {
		if src.cursors[i] <= src.cursors[i-1] {
			t.Errorf("cursor did not advance: %v", src.cursors)
		}
	}
}

func TestKlineGathererRejectsBadWindow(t *testing.T) {
	g := NewKlineGatherer(&fakeSource{}, &memStore{}, config.GatherConfig{
		Symbols:    []string{"BTCUSDT"},
		StartUTC:   "2024-01-02T00:00:00Z",
		EndUTC:     "2024-01-01T00:00:00Z",
		MaxWorkers: 1,
	})
	if err := g.Run(context.Background()); err == nil {
		t.Error("Run accepted end before start")
	}
}

func gridBars(n int, start time.Time, step time.Duration) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol:   "BTCUSDT",
			OpenTime: start.Add(time.Duration(i) * step),
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 1,
		}
	}
	return bars
}

func TestAuditCleanSeries(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := gridBars(20, start, 15*time.Minute)

	clean, rep := Audit(bars, DefaultQualityConfig())
	if len(clean) != 20 {
		t.Fatalf("clean rows = %d", len(clean))
	}
	if !rep.Monotonic || rep.DuplicatesRemoved != 0 || rep.MissingBars != 0 ||
		rep.NonPositivePrices != 0 || rep.NegativeVolume != 0 ||
		rep.OutliersAbs != 0 || rep.OutliersSigma != 0 {
		t.Errorf("report = %+v, want clean", rep)
	}
}

func TestAuditFlagsDefects(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := gridBars(10, start, 15*time.Minute)

	// A duplicate, a missing bar, one bad price and one negative volume.
	bars = append(bars, bars[3])
	bars = append(bars[:5], bars[6:]...)
	bars[2].Close = -1
	bars[7].Volume = -2

	clean, rep := Audit(bars, DefaultQualityConfig())
	if rep.DuplicatesRemoved != 1 {
		t.Errorf("duplicates = %d, want 1", rep.DuplicatesRemoved)
	}
	if rep.MissingBars != 1 {
		t.Errorf("missing = %d, want 1", rep.MissingBars)
	}
	if rep.NonPositivePrices != 1 {
		t.Errorf("non-positive prices = %d, want 1", rep.NonPositivePrices)
	}
	if rep.NegativeVolume != 1 {
		t.Errorf("negative volume = %d, want 1", rep.NegativeVolume)
	}
	if len(clean) != 9 {
		t.Errorf("clean rows = %d, want 9", len(clean))
	}
}

func TestAuditUnsortedInput(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := gridBars(5, start, 15*time.Minute)
	bars[0], bars[4] = bars[4], bars[0]

	clean, rep := Audit(bars, DefaultQualityConfig())
	if rep.Monotonic {
		t.Error("unsorted input reported monotonic")
	}
	for i := 1; i < len(clean); i++ {
		if !clean[i].OpenTime.After(clean[i-1].OpenTime) {
			t.Fatal("clean output not sorted")
		}
	}
}

func TestAuditFlagsAbsReturnOutlier(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := gridBars(10, start, 15*time.Minute)
	// A 2x jump is a log return of ~0.69, over the 0.35 cap.
	for i := 5; i < 10; i++ {
		bars[i].Close = 200
	}

	_, rep := Audit(bars, DefaultQualityConfig())
	if rep.OutliersAbs != 1 {
		t.Errorf("abs outliers = %d, want 1", rep.OutliersAbs)
	}
}
