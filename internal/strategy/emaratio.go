package strategy

import (
	"fmt"

	"tradewind/internal/domain"
)

// EMARatioTrendParams configures the trend-following machine over the
// fast/slow EMA ratio oscillator.
type EMARatioTrendParams struct {
	EntryThreshold float64 // enter when |ratio| >= entry, confirmed
	ExitThreshold  float64 // exit to flat when ratio is back inside the band
	ConfirmBars    int
	CooldownBars   int
	Mode           domain.Mode
}

// Validate checks the hysteresis band and counter parameters.
func (p EMARatioTrendParams) Validate() error {
	if p.ExitThreshold >= p.EntryThreshold {
		return fmt.Errorf("ema ratio trend: exit_threshold %f must be < entry_threshold %f",
			p.ExitThreshold, p.EntryThreshold)
	}
	if p.ConfirmBars < 1 {
		return fmt.Errorf("ema ratio trend: confirm_bars must be >= 1, got %d", p.ConfirmBars)
	}
	if p.CooldownBars < 0 {
		return fmt.Errorf("ema ratio trend: cooldown_bars must be >= 0, got %d", p.CooldownBars)
	}
	if _, err := normalizeMode(p.Mode); err != nil {
		return fmt.Errorf("ema ratio trend: %w", err)
	}
	return nil
}

// EMARatioState is the per-bar machine state. ConfirmUp/ConfirmDown count
// consecutive bars on which the long/short entry predicate held; they advance
// on every bar (including cooldown bars), so a confirmation window may span a
// cooldown boundary.
type EMARatioState struct {
	Current     int
	Cooldown    int
	ConfirmUp   int
	ConfirmDown int
}

// Step advances the machine by one bar and returns the new state and the
// position emitted for this bar.
func (p EMARatioTrendParams) Step(st EMARatioState, ratio float64) (EMARatioState, int) {
	mode, _ := normalizeMode(p.Mode)

	if !finite(ratio) {
		// Hold without decaying cooldown; a gap restarts confirmation.
		st.ConfirmUp = 0
		st.ConfirmDown = 0
		return st, st.Current
	}

	st.ConfirmUp = bumpConfirm(st.ConfirmUp, ratio >= p.EntryThreshold)
	st.ConfirmDown = bumpConfirm(st.ConfirmDown, ratio <= -p.EntryThreshold)

	if st.Cooldown > 0 {
		st.Cooldown--
		return st, st.Current
	}

	// Exit: go flat inside the deadband.
	if st.Current == domain.PositionLong && ratio <= p.ExitThreshold {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
	} else if st.Current == domain.PositionShort && ratio >= -p.ExitThreshold {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
	}

	// Entry, evaluated in the same bar an exit may have just fired.
	if st.Current == domain.PositionFlat {
		if st.ConfirmUp >= p.ConfirmBars {
			st.Current = domain.PositionLong
			st.Cooldown = p.CooldownBars
		} else if mode == domain.ModeLongShort && st.ConfirmDown >= p.ConfirmBars {
			st.Current = domain.PositionShort
			st.Cooldown = p.CooldownBars
		}
	}

	return st, st.Current
}

// EMARatioTrendPositions folds Step over the ratio series.
func EMARatioTrendPositions(ratio []float64, p EMARatioTrendParams) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	pos := make([]int, len(ratio))
	var st EMARatioState
	for t, v := range ratio {
		st, pos[t] = p.Step(st, v)
	}
	return pos, nil
}
