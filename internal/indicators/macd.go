package indicators

import "fmt"

// MACDParams configures the MACD computation.
type MACDParams struct {
	Fast   int
	Slow   int
	Signal int
	Init   InitMethod
}

// MACDResult holds the MACD lines plus variants normalized by the slow EMA.
// HistNorm is the series the MACD trend strategy trades on; EMASlow is its
// regime gate.
type MACDResult struct {
	EMAFast  []float64
	EMASlow  []float64
	MACD     []float64
	Signal   []float64
	Hist     []float64
	MACDNorm []float64
	HistNorm []float64
}

// MACD computes macd = EMA_fast − EMA_slow, signal = EMA_signal(macd), and
// hist = macd − signal, together with slow-EMA-normalized variants. All EMAs
// share MinPeriods = slow span.
func MACD(close []float64, params MACDParams) (*MACDResult, error) {
	if params.Fast <= 0 || params.Slow <= 0 || params.Signal <= 0 {
		return nil, fmt.Errorf("macd: periods must be positive, got fast=%d slow=%d signal=%d",
			params.Fast, params.Slow, params.Signal)
	}
	if params.Fast >= params.Slow {
		return nil, fmt.Errorf("macd: requires fast < slow, got fast=%d slow=%d", params.Fast, params.Slow)
	}
	init := params.Init
	if init == "" {
		init = InitPrice
	}

	emaFast, err := EMA(close, EMAParams{Span: params.Fast, Init: init, MinPeriods: params.Slow})
	if err != nil {
		return nil, err
	}
	emaSlow, err := EMA(close, EMAParams{Span: params.Slow, Init: init, MinPeriods: params.Slow})
	if err != nil {
		return nil, err
	}

	n := len(close)
	macdLine := nanSlice(n)
	for i := 0; i < n; i++ {
		if finite(emaFast[i]) && finite(emaSlow[i]) {
			macdLine[i] = emaFast[i] - emaSlow[i]
		}
	}

	signal, err := EMA(macdLine, EMAParams{Span: params.Signal, Init: init, MinPeriods: params.Slow})
	if err != nil {
		return nil, err
	}

	hist := nanSlice(n)
	macdNorm := nanSlice(n)
	histNorm := nanSlice(n)
	for i := 0; i < n; i++ {
		if finite(macdLine[i]) && finite(signal[i]) {
			hist[i] = macdLine[i] - signal[i]
		}
		if finite(emaSlow[i]) && emaSlow[i] != 0 {
			if finite(macdLine[i]) {
				macdNorm[i] = macdLine[i] / emaSlow[i]
			}
			if finite(hist[i]) {
				histNorm[i] = hist[i] / emaSlow[i]
			}
		}
	}

	return &MACDResult{
		EMAFast:  emaFast,
		EMASlow:  emaSlow,
		MACD:     macdLine,
		Signal:   signal,
		Hist:     hist,
		MACDNorm: macdNorm,
		HistNorm: histNorm,
	}, nil
}
