// Package backtest turns a per-bar position series into an accounting of
// strategy returns, trading costs, and equity curves, plus the risk
// statistics derived from them.
package backtest

import (
	"fmt"
	"math"
)

// Params configures the accounting pass.
type Params struct {
	// CostPerTurnover is the decimal cost per unit of notional traded,
	// e.g. 0.0005 = 5 bps.
	CostPerTurnover float64
	// ExecutionLag is the delay in bars between deciding a position and
	// holding it: 1 means trade at the next bar.
	ExecutionLag int
}

// Result holds the per-bar accounting columns, all aligned to the input
// index.
type Result struct {
	Ret           []float64 // simple bar return of the price series; NaN at bar 0
	PosExec       []float64 // executed position after the lag
	Turnover      []float64 // |pos_exec[t] - pos_exec[t-1]|
	Costs         []float64
	StratRetGross []float64
	StratRetNet   []float64
	EquityGross   []float64 // cumulative product of 1 + gross return, starting at 1
	EquityNet     []float64
}

// Run computes the full accounting for a close series and the position
// decided at each bar. Positions take effect ExecutionLag bars after they are
// decided; bars before the lag horizon execute flat.
func Run(close []float64, position []int, p Params) (*Result, error) {
	if p.ExecutionLag < 0 {
		return nil, fmt.Errorf("backtest: execution_lag must be >= 0, got %d", p.ExecutionLag)
	}
	if p.CostPerTurnover < 0 {
		return nil, fmt.Errorf("backtest: cost_per_turnover must be >= 0, got %f", p.CostPerTurnover)
	}
	if len(close) != len(position) {
		return nil, fmt.Errorf("backtest: length mismatch, close=%d position=%d",
			len(close), len(position))
	}

	n := len(close)
	r := &Result{
		Ret:           make([]float64, n),
		PosExec:       make([]float64, n),
		Turnover:      make([]float64, n),
		Costs:         make([]float64, n),
		StratRetGross: make([]float64, n),
		StratRetNet:   make([]float64, n),
		EquityGross:   make([]float64, n),
		EquityNet:     make([]float64, n),
	}

	for t := 0; t < n; t++ {
		if t == 0 {
			r.Ret[t] = math.NaN()
		} else {
			r.Ret[t] = close[t]/close[t-1] - 1
		}

		if t >= p.ExecutionLag {
			r.PosExec[t] = float64(position[t-p.ExecutionLag])
		}

		if t > 0 {
			r.Turnover[t] = math.Abs(r.PosExec[t] - r.PosExec[t-1])
		}
		r.Costs[t] = p.CostPerTurnover * r.Turnover[t]

		// A NaN bar return contributes zero rather than poisoning the
		// cumulative curve.
		gross := r.PosExec[t] * r.Ret[t]
		if math.IsNaN(gross) {
			gross = 0
		}
		r.StratRetGross[t] = gross
		r.StratRetNet[t] = gross - r.Costs[t]
	}

	eqG, eqN := 1.0, 1.0
	for t := 0; t < n; t++ {
		eqG *= 1 + r.StratRetGross[t]
		eqN *= 1 + r.StratRetNet[t]
		r.EquityGross[t] = eqG
		r.EquityNet[t] = eqN
	}

	return r, nil
}
