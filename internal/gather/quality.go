package gather

import (
	"math"
	"sort"
	"time"

	"tradewind/internal/domain"
)

// QualityConfig parameterizes the data audit.
type QualityConfig struct {
	Interval        time.Duration // expected bar spacing
	MaxAbsLogReturn float64       // hard cap flag on |log return|
	OutlierWindow   int           // rolling window for the sigma flag
	OutlierSigma    float64       // flag returns beyond sigma * rolling std
}

// DefaultQualityConfig matches 15-minute crypto bars.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		Interval:        15 * time.Minute,
		MaxAbsLogReturn: 0.35,
		OutlierWindow:   96,
		OutlierSigma:    10.0,
	}
}

// QualityReport summarizes a data audit.
type QualityReport struct {
	Rows              int
	Start             time.Time
	End               time.Time
	DuplicatesRemoved int
	Monotonic         bool
	NonPositivePrices int
	NegativeVolume    int
	MissingBars       int
	MissingPct        float64
	OutliersAbs       int
	OutliersSigma     int
}

// Audit checks a bar series for structural defects: duplicate or
// out-of-order open times, non-positive prices, negative volume, gaps in the
// expected time grid, and log-return outliers. It returns the cleaned
// (sorted, deduplicated) series alongside the report.
func Audit(bars []domain.Bar, cfg QualityConfig) ([]domain.Bar, QualityReport) {
	var rep QualityReport
	if len(bars) == 0 {
		rep.Monotonic = true
		return nil, rep
	}

	rep.Monotonic = sort.SliceIsSorted(bars, func(i, j int) bool {
		return bars[i].OpenTime.Before(bars[j].OpenTime)
	})

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	clean := sorted[:1]
	for _, b := range sorted[1:] {
		if b.OpenTime.Equal(clean[len(clean)-1].OpenTime) {
			rep.DuplicatesRemoved++
			continue
		}
		clean = append(clean, b)
	}

	rep.Rows = len(clean)
	rep.Start = clean[0].OpenTime
	rep.End = clean[len(clean)-1].OpenTime

	for _, b := range clean {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			rep.NonPositivePrices++
		}
		if b.Volume < 0 {
			rep.NegativeVolume++
		}
	}

	// Missing bars against the expected fixed-interval grid.
	if cfg.Interval > 0 {
		expected := int(rep.End.Sub(rep.Start)/cfg.Interval) + 1
		present := make(map[int64]bool, len(clean))
		for _, b := range clean {
			present[b.OpenTime.UnixMilli()] = true
		}
		for t := rep.Start; !t.After(rep.End); t = t.Add(cfg.Interval) {
			if !present[t.UnixMilli()] {
				rep.MissingBars++
			}
		}
		rep.MissingPct = float64(rep.MissingBars) / float64(max(expected, 1))
	}

	// Log-return outliers: a hard absolute cap plus a rolling-sigma flag.
	logret := make([]float64, len(clean))
	logret[0] = math.NaN()
	for i := 1; i < len(clean); i++ {
		if clean[i].Close > 0 && clean[i-1].Close > 0 {
			logret[i] = math.Log(clean[i].Close / clean[i-1].Close)
		} else {
			logret[i] = math.NaN()
		}
	}

	sigma := rollingStdMinPeriods(logret, cfg.OutlierWindow, max(5, cfg.OutlierWindow/5))
	for i, r := range logret {
		if math.IsNaN(r) {
			continue
		}
		if math.Abs(r) > cfg.MaxAbsLogReturn {
			rep.OutliersAbs++
		}
		if !math.IsNaN(sigma[i]) && math.Abs(r) > cfg.OutlierSigma*sigma[i] {
			rep.OutliersSigma++
		}
	}

	return clean, rep
}

// rollingStdMinPeriods is a trailing sample standard deviation over up to
// window observations, emitting a value once minPeriods finite observations
// are in the window.
func rollingStdMinPeriods(xs []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}

		var sum, sumsq float64
		var n int
		for j := lo; j <= i; j++ {
			if math.IsNaN(xs[j]) || math.IsInf(xs[j], 0) {
				continue
			}
			sum += xs[j]
			sumsq += xs[j] * xs[j]
			n++
		}
		if n < minPeriods || n < 2 {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(n)
		variance := (sumsq - float64(n)*mean*mean) / float64(n-1)
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}
