package strategy

import (
	"fmt"
	"math"

	"tradewind/internal/domain"
)

// ShockReversionParams configures the volatility-normalized mean-reversion
// machine: fade large standardized return shocks, but only in non-trending
// regimes.
type ShockReversionParams struct {
	KEntry       float64 // enter when |shock| >= k_entry
	KExit        float64 // exit when shock crosses back through -/+ k_exit
	TrendGate    float64 // only trade when |trend| <= trend_gate
	MaxHoldBars  int     // time-stop
	ConfirmBars  int
	CooldownBars int
	Mode         domain.Mode
}

// Validate checks the reversion band and counters.
func (p ShockReversionParams) Validate() error {
	if p.KEntry <= 0 {
		return fmt.Errorf("shock reversion: k_entry must be positive, got %f", p.KEntry)
	}
	if p.KExit < 0 || p.KExit >= p.KEntry {
		return fmt.Errorf("shock reversion: k_exit must be in [0, k_entry), got %f (k_entry=%f)",
			p.KExit, p.KEntry)
	}
	if p.TrendGate < 0 {
		return fmt.Errorf("shock reversion: trend_gate must be >= 0, got %f", p.TrendGate)
	}
	if p.MaxHoldBars < 1 {
		return fmt.Errorf("shock reversion: max_hold_bars must be >= 1, got %d", p.MaxHoldBars)
	}
	if p.ConfirmBars < 1 {
		return fmt.Errorf("shock reversion: confirm_bars must be >= 1, got %d", p.ConfirmBars)
	}
	if p.CooldownBars < 0 {
		return fmt.Errorf("shock reversion: cooldown_bars must be >= 0, got %d", p.CooldownBars)
	}
	if _, err := normalizeMode(p.Mode); err != nil {
		return fmt.Errorf("shock reversion: %w", err)
	}
	return nil
}

// ShockReading is one bar of machine input.
type ShockReading struct {
	Shock float64 // standardized return shock
	Trend float64 // trend oscillator for the regime gate
}

// ShockState is the per-bar machine state. Hold counts bars spent in the
// current non-flat position and resets on every transition.
type ShockState struct {
	Current      int
	Cooldown     int
	Hold         int
	ConfirmLong  int // shock <= -k_entry (fade the down-shock)
	ConfirmShort int // shock >= +k_entry
}

// Step advances the machine by one bar.
func (p ShockReversionParams) Step(st ShockState, r ShockReading) (ShockState, int) {
	mode, _ := normalizeMode(p.Mode)

	if !finite(r.Shock) || !finite(r.Trend) {
		st.ConfirmLong = 0
		st.ConfirmShort = 0
		return st, st.Current
	}

	st.ConfirmLong = bumpConfirm(st.ConfirmLong, r.Shock <= -p.KEntry)
	st.ConfirmShort = bumpConfirm(st.ConfirmShort, r.Shock >= p.KEntry)

	if st.Cooldown > 0 {
		st.Cooldown--
		return st, st.Current
	}

	gateOK := math.Abs(r.Trend) <= p.TrendGate

	if st.Current != domain.PositionFlat {
		st.Hold++
	}

	// Exits: reversion target reached or time-stop hit.
	if st.Current == domain.PositionLong &&
		(r.Shock >= -p.KExit || st.Hold >= p.MaxHoldBars) {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	} else if st.Current == domain.PositionShort &&
		(r.Shock <= p.KExit || st.Hold >= p.MaxHoldBars) {
		st.Current = domain.PositionFlat
		st.Hold = 0
		st.Cooldown = p.CooldownBars
	}

	// Entries, only when flat and the trend gate holds.
	if st.Current == domain.PositionFlat && gateOK {
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

// ShockReversionPositions folds Step over aligned shock/trend series.
func ShockReversionPositions(shock, trend []float64, p ShockReversionParams) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(shock) != len(trend) {
		return nil, fmt.Errorf("shock reversion: length mismatch, shock=%d trend=%d", len(shock), len(trend))
	}

	pos := make([]int, len(shock))
	var st ShockState
	for t := range shock {
		st, pos[t] = p.Step(st, ShockReading{Shock: shock[t], Trend: trend[t]})
	}
	return pos, nil
}
