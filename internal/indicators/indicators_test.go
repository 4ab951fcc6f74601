package indicators

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPctChange(t *testing.T) {
	xs := []float64{100, 110, 99}
	got := PctChange(xs)

	if !math.IsNaN(got[0]) {
		t.Errorf("first return = %f, want NaN", got[0])
	}
	if !almostEqual(got[1], 0.10, 1e-12) {
		t.Errorf("got[1] = %f, want 0.10", got[1])
	}
	if !almostEqual(got[2], -0.10, 1e-12) {
		t.Errorf("got[2] = %f, want -0.10", got[2])
	}
}

func TestLogReturnsSkipsNonPositive(t *testing.T) {
	xs := []float64{100, 0, 100}
	got := LogReturns(xs)
	if !math.IsNaN(got[1]) || !math.IsNaN(got[2]) {
		t.Errorf("returns touching zero price should be NaN, got %v", got)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	xs := make([]float64, 20)
	for i := range xs {
		xs[i] = 42.0
	}
	out, err := EMA(xs, EMAParams{Span: 5, Init: InitPrice})
	if err != nil {
		t.Fatalf("EMA returned error: %v", err)
	}
	// EMA of a constant is the constant, once MinPeriods is satisfied.
	for i := 0; i < 4; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("out[%d] = %f, want NaN before MinPeriods", i, out[i])
		}
	}
	for i := 4; i < len(out); i++ {
		if !almostEqual(out[i], 42.0, 1e-12) {
			t.Errorf("out[%d] = %f, want 42.0", i, out[i])
		}
	}
}

func TestEMAHoldsThroughGaps(t *testing.T) {
	xs := []float64{10, 10, 10, math.NaN(), 10, 10}
	out, err := EMA(xs, EMAParams{Span: 2, Init: InitPrice, MinPeriods: 1})
	if err != nil {
		t.Fatalf("EMA returned error: %v", err)
	}
	// A NaN input carries the previous EMA forward.
	if !almostEqual(out[3], out[2], 1e-12) {
		t.Errorf("out[3] = %f, want %f (held through gap)", out[3], out[2])
	}
}

func TestEMARejectsBadSpan(t *testing.T) {
	if _, err := EMA(nil, EMAParams{Span: 0}); err == nil {
		t.Error("EMA should reject span <= 0")
	}
}

func TestEMARatioRejectsFastGEQSlow(t *testing.T) {
	if _, err := EMARatio(nil, EMARatioParams{Fast: 50, Slow: 50}); err == nil {
		t.Error("EMARatio should reject fast >= slow")
	}
}

func TestEMARatioFlatMarketIsZero(t *testing.T) {
	xs := make([]float64, 120)
	for i := range xs {
		xs[i] = 25000.0
	}
	res, err := EMARatio(xs, EMARatioParams{Fast: 20, Slow: 100})
	if err != nil {
		t.Fatalf("EMARatio returned error: %v", err)
	}
	last := res.Ratio[len(res.Ratio)-1]
	if !almostEqual(last, 0.0, 1e-12) {
		t.Errorf("flat market ratio = %g, want 0", last)
	}
}

func TestMACDRejectsFastGEQSlow(t *testing.T) {
	if _, err := MACD(nil, MACDParams{Fast: 26, Slow: 12, Signal: 9}); err == nil {
		t.Error("MACD should reject fast >= slow")
	}
}

func TestMACDFlatMarketHistZero(t *testing.T) {
	xs := make([]float64, 80)
	for i := range xs {
		xs[i] = 100.0
	}
	res, err := MACD(xs, MACDParams{Fast: 12, Slow: 26, Signal: 9})
	if err != nil {
		t.Fatalf("MACD returned error: %v", err)
	}
	last := len(xs) - 1
	if !almostEqual(res.Hist[last], 0.0, 1e-12) {
		t.Errorf("flat market hist = %g, want 0", res.Hist[last])
	}
	if !almostEqual(res.HistNorm[last], 0.0, 1e-12) {
		t.Errorf("flat market hist_norm = %g, want 0", res.HistNorm[last])
	}
	if !almostEqual(res.EMASlow[last], 100.0, 1e-9) {
		t.Errorf("flat market ema_slow = %g, want 100", res.EMASlow[last])
	}
}

func TestEWMAVolRejectsBadLambda(t *testing.T) {
	for _, lam := range []float64{0, 1, -0.5, 1.5} {
		if _, err := EWMAVol(nil, EWMAVolParams{Lambda: lam}); err == nil {
			t.Errorf("EWMAVol should reject lambda=%f", lam)
		}
	}
}

func TestEWMAVolZeroReturns(t *testing.T) {
	rets := make([]float64, 50)
	out, err := EWMAVol(rets, EWMAVolParams{Lambda: 0.94})
	if err != nil {
		t.Fatalf("EWMAVol returned error: %v", err)
	}
	for i, v := range out {
		if !almostEqual(v, 0.0, 1e-12) {
			t.Fatalf("out[%d] = %g, want 0 for zero returns", i, v)
		}
	}
}

func TestShockDivision(t *testing.T) {
	ret := []float64{0.02, math.NaN(), -0.01}
	vol := []float64{0.01, 0.01, 0.01}
	out, err := Shock(ret, vol)
	if err != nil {
		t.Fatalf("Shock returned error: %v", err)
	}
	if !almostEqual(out[0], 2.0, 1e-6) {
		t.Errorf("out[0] = %f, want ~2.0", out[0])
	}
	if !math.IsNaN(out[1]) {
		t.Errorf("out[1] = %f, want NaN", out[1])
	}
	if !almostEqual(out[2], -1.0, 1e-6) {
		t.Errorf("out[2] = %f, want ~-1.0", out[2])
	}
}

func TestRollingVWAP(t *testing.T) {
	close := []float64{10, 20, 30, 40}
	volume := []float64{1, 1, 1, 1}
	out, err := RollingVWAP(close, volume, 2)
	if err != nil {
		t.Fatalf("RollingVWAP returned error: %v", err)
	}
	if !math.IsNaN(out[0]) {
		t.Errorf("out[0] = %f, want NaN before full window", out[0])
	}
	if !almostEqual(out[1], 15.0, 1e-12) || !almostEqual(out[3], 35.0, 1e-12) {
		t.Errorf("vwap = %v, want [NaN 15 25 35]", out)
	}
}

func TestVWAPDistance(t *testing.T) {
	close := []float64{110}
	vwap := []float64{100}
	out, err := VWAPDistance(close, vwap)
	if err != nil {
		t.Fatalf("VWAPDistance returned error: %v", err)
	}
	if !almostEqual(out[0], 0.10, 1e-12) {
		t.Errorf("out[0] = %f, want 0.10", out[0])
	}
}

func TestRollingStd(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	out := RollingStd(xs, len(xs))
	// Sample std of the classic set is 2.138... with Bessel correction.
	want := math.Sqrt(32.0 / 7.0)
	got := out[len(out)-1]
	if !almostEqual(got, want, 1e-9) {
		t.Errorf("RollingStd = %f, want %f", got, want)
	}
}
