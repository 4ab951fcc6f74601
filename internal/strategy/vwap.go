package strategy

import (
	"fmt"
	"math"

	"tradewind/internal/domain"
)

// VWAPReversionParams configures the distance-from-VWAP mean-reversion
// machine. Entry/exit/stop bands scale with the per-bar volatility estimate,
// so the absolute thresholds move with the regime.
type VWAPReversionParams struct {
	KEntry       float64 // enter when |dist| >= k_entry * vol
	KExit        float64 // exit when dist crosses back through -/+ k_exit * vol
	StopK        float64 // force-exit when dist moves beyond stop_k * vol against the position
	TrendGate    float64
	MaxHoldBars  int
	ConfirmBars  int
	CooldownBars int
	Mode         domain.Mode
}

// Validate checks band ordering: exit < entry < stop.
func (p VWAPReversionParams) Validate() error {
	if p.KEntry <= 0 {
		return fmt.Errorf("vwap reversion: k_entry must be positive, got %f", p.KEntry)
	}
	if p.KExit < 0 || p.KExit >= p.KEntry {
		return fmt.Errorf("vwap reversion: k_exit must be in [0, k_entry), got %f (k_entry=%f)",
			p.KExit, p.KEntry)
	}
	if p.StopK <= p.KEntry {
		return fmt.Errorf("vwap reversion: stop_k %f must be > k_entry %f", p.StopK, p.KEntry)
	}
	if p.TrendGate < 0 {
		return fmt.Errorf("vwap reversion: trend_gate must be >= 0, got %f", p.TrendGate)
	}
	if p.MaxHoldBars < 1 {
		return fmt.Errorf("vwap reversion: max_hold_bars must be >= 1, got %d", p.MaxHoldBars)
	}
	if p.ConfirmBars < 1 {
		return fmt.Errorf("vwap reversion: confirm_bars must be >= 1, got %d", p.ConfirmBars)
	}
	if p.CooldownBars < 0 {
		return fmt.Errorf("vwap reversion: cooldown_bars must be >= 0, got %d", p.CooldownBars)
	}
	if _, err := normalizeMode(p.Mode); err != nil {
		return fmt.Errorf("vwap reversion: %w", err)
	}
	return nil
}

// VWAPReading is one bar of machine input.
type VWAPReading struct {
	Dist  float64 // close/vwap - 1
	Vol   float64 // rolling volatility of dist; must be finite and > 0
	Trend float64
}

// VWAPState is the per-bar machine state.
type VWAPState struct {
	Current      int
	Cooldown     int
	Hold         int
	ConfirmLong  int
	ConfirmShort int
}

// Step advances the machine by one bar. Stop-outs are evaluated before normal
// exits; a bar with unusable volatility holds the position.
func (p VWAPReversionParams) Step(st VWAPState, r VWAPReading) (VWAPState, int) {
	mode, _ := normalizeMode(p.Mode)

	if !finite(r.Dist) || !finite(r.Vol) || r.Vol <= 0 || !finite(r.Trend) {
		st.ConfirmLong = 0
		st.ConfirmShort = 0
		return st, st.Current
	}

	entry := p.KEntry * r.Vol
	exit := p.KExit * r.Vol
	stop := p.StopK * r.Vol

	st.ConfirmLong = bumpConfirm(st.ConfirmLong, r.Dist <= -entry)
	st.ConfirmShort = bumpConfirm(st.ConfirmShort, r.Dist >= entry)

	if st.Cooldown > 0 {
		st.Cooldown--
		return st, st.Current
	}

	if st.Current != domain.PositionFlat {
		st.Hold++
	}

	// Stop-outs: price ran further from VWAP against the position.
	if st.Current == domain.PositionLong && r.Dist < -stop {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	} else if st.Current == domain.PositionShort && r.Dist > stop {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	}

	// Normal exits: reversion target reached or time-stop hit.
	if st.Current == domain.PositionLong &&
		(r.Dist >= -exit || st.Hold >= p.MaxHoldBars) {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	} else if st.Current == domain.PositionShort &&
		(r.Dist <= exit || st.Hold >= p.MaxHoldBars) {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	}

	// Entries, only when flat and in a low-trend regime.
	if st.Current == domain.PositionFlat && math.Abs(r.Trend) <= p.TrendGate {
		if st.ConfirmLong >= p.ConfirmBars {
			st.Current = domain.PositionLong
			st.Hold = 0
			st.Cooldown = p.CooldownBars
		} else if mode == domain.ModeLongShort && st.ConfirmShort >= p.ConfirmBars {
			st.Current = domain.PositionShort
			st.Hold = 0
			st.Cooldown = p.CooldownBars
		}
	}

	return st, st.Current
}

// VWAPReversionPositions folds Step over aligned dist/vol/trend series.
func VWAPReversionPositions(dist, vol, trend []float64, p VWAPReversionParams) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(dist) != len(vol) || len(dist) != len(trend) {
		return nil, fmt.Errorf("vwap reversion: length mismatch, dist=%d vol=%d trend=%d",
			len(dist), len(vol), len(trend))
	}

	pos := make([]int, len(dist))
	var st VWAPState
	for t := range dist {
		st, pos[t] = p.Step(st, VWAPReading{Dist: dist[t], Vol: vol[t], Trend: trend[t]})
	}
	return pos, nil
}
