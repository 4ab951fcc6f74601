package strategy

import (
	"fmt"

	"tradewind/internal/domain"
)

// MACDTrendParams configures the trend-following machine over the normalized
// MACD histogram, with a slow-EMA regime gate.
type MACDTrendParams struct {
	EntryThreshold float64
	ExitThreshold  float64
	ConfirmBars    int
	CooldownBars   int
	Mode           domain.Mode
}

// Validate checks the hysteresis band and counter parameters. Unlike the EMA
// ratio machine, entry and exit thresholds may coincide (both default to the
// zero line).
func (p MACDTrendParams) Validate() error {
	if p.ExitThreshold > p.EntryThreshold {
		return fmt.Errorf("macd trend: exit_threshold %f must be <= entry_threshold %f",
			p.ExitThreshold, p.EntryThreshold)
	}
	if p.ConfirmBars < 1 {
		return fmt.Errorf("macd trend: confirm_bars must be >= 1, got %d", p.ConfirmBars)
	}
	if p.CooldownBars < 0 {
		return fmt.Errorf("macd trend: cooldown_bars must be >= 0, got %d", p.CooldownBars)
	}
	if _, err := normalizeMode(p.Mode); err != nil {
		return fmt.Errorf("macd trend: %w", err)
	}
	return nil
}

// MACDReading is one bar of machine input.
type MACDReading struct {
	Hist    float64 // normalized MACD histogram
	Close   float64
	EMASlow float64
}

// MACDState is the per-bar machine state. Entry and exit predicates are both
// window-confirmed, so four consecutive-satisfying counters are carried.
type MACDState struct {
	Current          int
	Cooldown         int
	ConfirmUp        int // hist >= +entry
	ConfirmDown      int // hist <= -entry
	ConfirmExitLong  int // hist <= +exit
	ConfirmExitShort int // hist >= -exit
}

// Step advances the machine by one bar. A regime flip against the held
// position force-exits immediately and ends the bar: entry logic is not
// evaluated again until the next bar.
func (p MACDTrendParams) Step(st MACDState, r MACDReading) (MACDState, int) {
	mode, _ := normalizeMode(p.Mode)

	if !finite(r.Hist) {
		st.ConfirmUp = 0
		st.ConfirmDown = 0
		st.ConfirmExitLong = 0
		st.ConfirmExitShort = 0
		return st, st.Current
	}

	st.ConfirmUp = bumpConfirm(st.ConfirmUp, r.Hist >= p.EntryThreshold)
	st.ConfirmDown = bumpConfirm(st.ConfirmDown, r.Hist <= -p.EntryThreshold)
	st.ConfirmExitLong = bumpConfirm(st.ConfirmExitLong, r.Hist <= p.ExitThreshold)
	st.ConfirmExitShort = bumpConfirm(st.ConfirmExitShort, r.Hist >= -p.ExitThreshold)

	regimeLongOK := finite(r.Close) && finite(r.EMASlow) && r.Close >= r.EMASlow
	regimeShortOK := finite(r.Close) && finite(r.EMASlow) && r.Close <= r.EMASlow

	if st.Cooldown > 0 {
		st.Cooldown--
		return st, st.Current
	}

	// Regime flipped against the held position: forced exit, bar ends here.
	if st.Current == domain.PositionLong && !regimeLongOK {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
		return st, st.Current
	}
	if st.Current == domain.PositionShort && !regimeShortOK {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
		return st, st.Current
	}

	// Normal exits.
	if st.Current == domain.PositionLong && st.ConfirmExitLong >= p.ConfirmBars {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
	} else if st.Current == domain.PositionShort && st.ConfirmExitShort >= p.ConfirmBars {
		st.Current = domain.PositionFlat
		st.Cooldown = p.CooldownBars
	}

	// Entries, gated by the regime.
	if st.Current == domain.PositionFlat {
		if regimeLongOK && st.ConfirmUp >= p.ConfirmBars {
			st.Current = domain.PositionLong
			st.Cooldown = p.CooldownBars
		} else if mode == domain.ModeLongShort && regimeShortOK && st.ConfirmDown >= p.ConfirmBars {
			st.Current = domain.PositionShort
			st.Cooldown = p.CooldownBars
		}
	}

	return st, st.Current
}

// MACDTrendPositions folds Step over the aligned hist/close/emaSlow series.
func MACDTrendPositions(hist, close, emaSlow []float64, p MACDTrendParams) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(hist) != len(close) || len(hist) != len(emaSlow) {
		return nil, fmt.Errorf("macd trend: length mismatch, hist=%d close=%d ema_slow=%d",
			len(hist), len(close), len(emaSlow))
	}

	pos := make([]int, len(hist))
	var st MACDState
	for t := range hist {
		st, pos[t] = p.Step(st, MACDReading{Hist: hist[t], Close: close[t], EMASlow: emaSlow[t]})
	}
	return pos, nil
}
