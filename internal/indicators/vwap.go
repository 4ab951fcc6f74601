package indicators

import "fmt"

// RollingVWAP computes the rolling volume-weighted average price over the
// trailing window, using close as the price proxy. Values are NaN until a
// full window is available, or when the window's volume sum is zero.
func RollingVWAP(close, volume []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("vwap: window must be positive, got %d", window)
	}
	if len(close) != len(volume) {
		return nil, fmt.Errorf("vwap: length mismatch, close=%d volume=%d", len(close), len(volume))
	}

	out := nanSlice(len(close))
	for i := window - 1; i < len(close); i++ {
		var pv, vv float64
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if !finite(close[j]) || !finite(volume[j]) {
				ok = false
				break
			}
			pv += close[j] * volume[j]
			vv += volume[j]
		}
		if ok && vv > 0 {
			out[i] = pv / vv
		}
	}
	return out, nil
}

// VWAPDistance returns close/vwap − 1, the mean-reversion signal of the VWAP
// strategy. NaN where either input is non-finite or vwap is zero.
func VWAPDistance(close, vwap []float64) ([]float64, error) {
	if len(close) != len(vwap) {
		return nil, fmt.Errorf("vwap distance: length mismatch, close=%d vwap=%d", len(close), len(vwap))
	}
	out := nanSlice(len(close))
	for i := range close {
		if finite(close[i]) && finite(vwap[i]) && vwap[i] != 0 {
			out[i] = close[i]/vwap[i] - 1.0
		}
	}
	return out, nil
}
