package indicators

import (
	"fmt"
	"math"
)

// InitMethod selects how the EMA recursion is seeded.
type InitMethod string

const (
	// InitPrice seeds the EMA with the first finite observation.
	InitPrice InitMethod = "price"
	// InitSMA seeds the EMA with the simple mean of the first span finite
	// observations, publishing the first value at the end of that window.
	InitSMA InitMethod = "sma"
)

// EMAParams configures a single EMA computation.
type EMAParams struct {
	Span       int
	Init       InitMethod
	MinPeriods int // 0 means use Span
}

// EMA computes the exponential moving average via the recursive definition
// with alpha = 2/(span+1). Non-finite inputs propagate the previous EMA.
// Positions observed before MinPeriods finite inputs are NaN.
func EMA(xs []float64, params EMAParams) ([]float64, error) {
	if params.Span <= 0 {
		return nil, fmt.Errorf("ema: span must be positive, got %d", params.Span)
	}
	if params.Init == "" {
		params.Init = InitPrice
	}
	if params.Init != InitPrice && params.Init != InitSMA {
		return nil, fmt.Errorf("ema: init must be %q or %q, got %q", InitPrice, InitSMA, params.Init)
	}

	n := len(xs)
	out := nanSlice(n)
	if n == 0 {
		return out, nil
	}

	alpha := 2.0 / (float64(params.Span) + 1.0)
	minP := params.MinPeriods
	if minP == 0 {
		minP = params.Span
	}

	first := -1
	for i, v := range xs {
		if finite(v) {
			first = i
			break
		}
	}
	if first < 0 {
		return out, nil
	}

	var emaPrev float64
	start := first
	if params.Init == InitSMA {
		var window []float64
		for i := first; i < n && i < first+params.Span; i++ {
			if finite(xs[i]) {
				window = append(window, xs[i])
			}
		}
		if len(window) < params.Span {
			// Insufficient points for an SMA seed, fall back to price init.
			emaPrev = xs[first]
		} else {
			var sum float64
			for _, v := range window {
				sum += v
			}
			emaPrev = sum / float64(len(window))
			start = first + params.Span - 1
		}
	} else {
		emaPrev = xs[first]
	}

	for t := start; t < n; t++ {
		v := xs[t]
		if !finite(v) {
			out[t] = emaPrev
			continue
		}
		emaPrev = alpha*v + (1.0-alpha)*emaPrev
		out[t] = emaPrev
	}

	// Mask positions before MinPeriods finite observations.
	count := 0
	for t := 0; t < n; t++ {
		if finite(xs[t]) {
			count++
		}
		if count < minP {
			out[t] = math.NaN()
		}
	}

	return out, nil
}

// EMARatioParams configures the fast/slow EMA ratio oscillator.
type EMARatioParams struct {
	Fast int
	Slow int
	Init InitMethod
}

// EMARatioResult carries the component EMAs alongside the ratio.
type EMARatioResult struct {
	Fast  []float64
	Slow  []float64
	Ratio []float64 // fast/slow - 1
}

// EMARatio computes fast EMA / slow EMA − 1, the trend oscillator consumed by
// the EMA-ratio strategy and used as the trend gate by the reversion
// strategies. Both EMAs share MinPeriods = slow span.
func EMARatio(close []float64, params EMARatioParams) (*EMARatioResult, error) {
	if params.Fast <= 0 || params.Slow <= 0 {
		return nil, fmt.Errorf("ema ratio: periods must be positive, got fast=%d slow=%d", params.Fast, params.Slow)
	}
	if params.Fast >= params.Slow {
		return nil, fmt.Errorf("ema ratio: requires fast < slow, got fast=%d slow=%d", params.Fast, params.Slow)
	}
	init := params.Init
	if init == "" {
		init = InitSMA
	}

	fast, err := EMA(close, EMAParams{Span: params.Fast, Init: init, MinPeriods: params.Slow})
	if err != nil {
		return nil, err
	}
	slow, err := EMA(close, EMAParams{Span: params.Slow, Init: init, MinPeriods: params.Slow})
	if err != nil {
		return nil, err
	}

	ratio := nanSlice(len(close))
	for i := range close {
		if finite(fast[i]) && finite(slow[i]) && slow[i] != 0 {
			ratio[i] = fast[i]/slow[i] - 1.0
		}
	}

	return &EMARatioResult{Fast: fast, Slow: slow, Ratio: ratio}, nil
}
