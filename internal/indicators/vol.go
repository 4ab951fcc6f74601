package indicators

import (
	"fmt"
	"math"
)

// EWMAVolParams configures the exponentially weighted volatility estimate.
type EWMAVolParams struct {
	Lambda      float64
	Annualize   bool
	BarsPerYear int
}

// shockEps keeps the shock division defined when volatility collapses to zero.
const shockEps = 1e-12

// EWMAVol computes sqrt of the EWMA variance recursion
// v_t = lambda*v_{t-1} + (1-lambda)*r_t^2 over log returns. The recursion is
// seeded with the population variance of the first chunk (up to 100 finite
// returns, zero when fewer than 6 are available). Non-finite returns carry
// the variance forward unchanged.
func EWMAVol(logret []float64, params EWMAVolParams) ([]float64, error) {
	lam := params.Lambda
	if !(lam > 0.0 && lam < 1.0) {
		return nil, fmt.Errorf("ewma vol: lambda must be in (0,1), got %f", lam)
	}

	n := len(logret)
	out := nanSlice(n)
	if n == 0 {
		return out, nil
	}

	initIdx := n
	if initIdx > 100 {
		initIdx = 100
	}
	v := 0.0
	if initIdx > 5 {
		var sum, sumSq float64
		count := 0
		for _, r := range logret[:initIdx] {
			if finite(r) {
				sum += r
				sumSq += r * r
				count++
			}
		}
		if count > 0 {
			mean := sum / float64(count)
			v = sumSq/float64(count) - mean*mean
		}
	}

	for i := 0; i < n; i++ {
		if finite(logret[i]) {
			v = lam*v + (1.0-lam)*logret[i]*logret[i]
		}
		if v < 0 {
			v = 0
		}
		out[i] = math.Sqrt(v)
	}

	if params.Annualize {
		scale := math.Sqrt(float64(params.BarsPerYear))
		for i := range out {
			out[i] *= scale
		}
	}
	return out, nil
}

// Shock standardizes returns by a volatility estimate: shock_t = r_t/(vol_t+eps).
// The result is NaN where either input is non-finite.
func Shock(logret, vol []float64) ([]float64, error) {
	if len(logret) != len(vol) {
		return nil, fmt.Errorf("shock: length mismatch, returns=%d vol=%d", len(logret), len(vol))
	}
	out := nanSlice(len(logret))
	for i := range logret {
		if finite(logret[i]) && finite(vol[i]) {
			out[i] = logret[i] / (vol[i] + shockEps)
		}
	}
	return out, nil
}
