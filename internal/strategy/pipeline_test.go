package strategy

import (
	"math"
	"testing"
	"time"

	"tradewind/internal/domain"
)

func syntheticBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		px := 30000 + 500*math.Sin(float64(i)/20)
		bars[i] = domain.Bar{
			Symbol:   "BTCUSDT",
			OpenTime: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:     px,
			High:     px * 1.001,
			Low:      px * 0.999,
			Close:    px,
			Volume:   10 + float64(i%7),
		}
	}
	return bars
}

func TestDefaultRegistryNames(t *testing.T) {
	r := NewDefaultRegistry(DefaultPipelineParams())
	want := []string{NameEMARatioTrend, NameMACDTrend, NameShockReversion, NameVWAPReversion}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("Get(unknown) reported found")
	}
}

func TestBuildInputsShapes(t *testing.T) {
	bars := syntheticBars(300)
	in, err := BuildInputs(bars, DefaultPipelineParams())
	if err != nil {
		t.Fatalf("BuildInputs: %v", err)
	}
	for name, series := range map[string][]float64{
		"Close": in.Close, "EMASlow": in.EMASlow, "EMARatio": in.EMARatio,
		"HistNorm": in.HistNorm, "Shock": in.Shock, "Dist": in.Dist, "Vol": in.Vol,
	} {
		if len(series) != len(bars) {
			t.Errorf("%s has %d elements, want %d", name, len(series), len(bars))
		}
	}
	// After warmup the trend oscillator must be finite.
	if v := in.EMARatio[len(in.EMARatio)-1]; math.IsNaN(v) {
		t.Error("EMARatio still NaN after 300 bars")
	}
}

func TestBuildInputsRejectsEmpty(t *testing.T) {
	if _, err := BuildInputs(nil, DefaultPipelineParams()); err == nil {
		t.Fatal("BuildInputs(nil) returned nil error")
	}
}

func TestRegisteredGeneratorsRunEndToEnd(t *testing.T) {
	bars := syntheticBars(400)
	p := DefaultPipelineParams()
	in, err := BuildInputs(bars, p)
	if err != nil {
		t.Fatalf("BuildInputs: %v", err)
	}
	r := NewDefaultRegistry(p)
	for _, name := range r.List() {
		gen, _ := r.Get(name)
		pos, err := gen(in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(pos) != len(bars) {
			t.Fatalf("%s produced %d positions, want %d", name, len(pos), len(bars))
		}
		for i, v := range pos {
			if v < -1 || v > 1 {
				t.Fatalf("%s position[%d] = %d out of range", name, i, v)
			}
		}
	}
}
