package backtest

import (
	"fmt"
	"math"
	"sort"
)

// RiskConfig sets the annualization and tail parameters for the summary
// statistics.
type RiskConfig struct {
	BarsPerYear float64
	VaRAlpha    float64
}

// dropNonFinite filters a series down to its finite observations.
func dropNonFinite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func meanStd(xs []float64) (mu, sd float64) {
	n := float64(len(xs))
	for _, v := range xs {
		mu += v
	}
	mu /= n
	var ss float64
	for _, v := range xs {
		d := v - mu
		ss += d * d
	}
	sd = math.Sqrt(ss / (n - 1))
	return mu, sd
}

// AnnualizedSharpe is sqrt(barsPerYear) * mean/std over the finite returns,
// with a sample (n-1) standard deviation. NaN when fewer than two
// observations remain or the deviation is not positive.
func AnnualizedSharpe(returns []float64, barsPerYear float64) float64 {
	r := dropNonFinite(returns)
	if len(r) < 2 {
		return math.NaN()
	}
	mu, sd := meanStd(r)
	if sd <= 0 {
		return math.NaN()
	}
	return math.Sqrt(barsPerYear) * mu / sd
}

// RealizedVol annualizes the sample standard deviation of the finite returns.
func RealizedVol(returns []float64, barsPerYear float64) float64 {
	r := dropNonFinite(returns)
	if len(r) < 2 {
		return math.NaN()
	}
	_, sd := meanStd(r)
	return math.Sqrt(barsPerYear) * sd
}

// MaxDrawdown is the most negative equity/peak - 1 over the finite equity
// observations.
func MaxDrawdown(equity []float64) float64 {
	eq := dropNonFinite(equity)
	if len(eq) < 2 {
		return math.NaN()
	}
	peak := eq[0]
	minDD := 0.0
	for _, v := range eq {
		if v > peak {
			peak = v
		}
		if dd := v/peak - 1; dd < minDD {
			minDD = dd
		}
	}
	return minDD
}

// quantile computes the linearly interpolated alpha-quantile of a sorted
// slice.
func quantile(sorted []float64, alpha float64) float64 {
	h := alpha * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// VaRES returns the alpha-quantile of the finite returns and the mean of the
// tail at or below it. Both are NaN when fewer than five observations remain.
func VaRES(returns []float64, alpha float64) (v, es float64) {
	r := dropNonFinite(returns)
	if len(r) < 5 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(r)
	v = quantile(r, alpha)

	var sum float64
	var n int
	for _, x := range r {
		if x > v {
			break
		}
		sum += x
		n++
	}
	if n == 0 {
		return v, math.NaN()
	}
	return v, sum / float64(n)
}

// TurnoverSum totals the finite turnover observations; an empty series sums
// to zero.
func TurnoverSum(turnover []float64) float64 {
	var sum float64
	for _, v := range dropNonFinite(turnover) {
		sum += v
	}
	return sum
}

// PctTimeInMarket is the fraction of finite executed-position bars that are
// non-flat.
func PctTimeInMarket(posExec []float64) float64 {
	p := dropNonFinite(posExec)
	if len(p) == 0 {
		return math.NaN()
	}
	var inMarket int
	for _, v := range p {
		if math.Abs(v) > 0 {
			inMarket++
		}
	}
	return float64(inMarket) / float64(len(p))
}

// Stats summarizes a backtest result into the flat metric map written to the
// result store: per-side sharpe, vol, VaR/ES, max drawdown and final equity,
// plus total turnover and time in market.
func Stats(r *Result, cfg RiskConfig) map[string]float64 {
	out := make(map[string]float64)

	sides := []struct {
		name   string
		rets   []float64
		equity []float64
	}{
		{"gross", r.StratRetGross, r.EquityGross},
		{"net", r.StratRetNet, r.EquityNet},
	}
	alphaPct := int(cfg.VaRAlpha * 100)

	for _, s := range sides {
		out["sharpe_"+s.name] = AnnualizedSharpe(s.rets, cfg.BarsPerYear)
		out["vol_"+s.name] = RealizedVol(s.rets, cfg.BarsPerYear)
		v, es := VaRES(s.rets, cfg.VaRAlpha)
		out[fmt.Sprintf("var_%dp_%s", alphaPct, s.name)] = v
		out[fmt.Sprintf("es_%dp_%s", alphaPct, s.name)] = es
		out["max_dd_"+s.name] = MaxDrawdown(s.equity)

		final := math.NaN()
		if eq := dropNonFinite(s.equity); len(eq) > 0 {
			final = eq[len(eq)-1]
		}
		out["final_equity_"+s.name] = final
	}

	out["total_turnover"] = TurnoverSum(r.Turnover)
	out["pct_time_in_market"] = PctTimeInMarket(r.PosExec)
	return out
}
