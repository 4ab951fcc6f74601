// Package indicators implements the pure numeric transforms the strategies
// consume: EMA and EMA ratio, MACD, EWMA volatility, rolling VWAP distance,
// and return helpers. All functions operate on []float64 aligned to a bar
// sequence, with math.NaN() marking missing observations.
package indicators

import "math"

// finite reports whether v is a usable observation.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PctChange returns the simple percentage return series. The first element is
// NaN; an element is NaN when either endpoint is non-finite or the previous
// value is zero.
func PctChange(xs []float64) []float64 {
	out := nanSlice(len(xs))
	for i := 1; i < len(xs); i++ {
		prev, cur := xs[i-1], xs[i]
		if finite(prev) && finite(cur) && prev != 0 {
			out[i] = cur/prev - 1.0
		}
	}
	return out
}

// LogReturns returns log(x[i]/x[i-1]). The first element is NaN; elements
// with non-positive or non-finite endpoints are NaN.
func LogReturns(xs []float64) []float64 {
	out := nanSlice(len(xs))
	for i := 1; i < len(xs); i++ {
		prev, cur := xs[i-1], xs[i]
		if finite(prev) && finite(cur) && prev > 0 && cur > 0 {
			out[i] = math.Log(cur / prev)
		}
	}
	return out
}

// RollingStd returns the rolling sample standard deviation (Bessel-corrected)
// over the trailing window. Values are NaN until a full window of finite
// observations is available; any non-finite value inside the window yields
// NaN for that position.
func RollingStd(xs []float64, window int) []float64 {
	out := nanSlice(len(xs))
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(xs); i++ {
		var sum, sumSq float64
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if !finite(xs[j]) {
				ok = false
				break
			}
			sum += xs[j]
			sumSq += xs[j] * xs[j]
		}
		if !ok {
			continue
		}
		n := float64(window)
		variance := (sumSq - sum*sum/n) / (n - 1)
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
