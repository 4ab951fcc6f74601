package strategy

import (
	"fmt"

	"tradewind/internal/domain"
	"tradewind/internal/indicators"
)

// Registered strategy names.
const (
	NameEMARatioTrend  = "ema_ratio_trend"
	NameMACDTrend      = "macd_trend"
	NameShockReversion = "shock_reversion"
	NameVWAPReversion  = "vwap_reversion"
)

// PipelineParams bundles the indicator settings and per-strategy parameters
// used to turn a bar series into position series.
type PipelineParams struct {
	EMARatio   indicators.EMARatioParams
	MACD       indicators.MACDParams
	EWMAVol    indicators.EWMAVolParams
	VWAPWindow int

	EMARatioTrend  EMARatioTrendParams
	MACDTrend      MACDTrendParams
	ShockReversion ShockReversionParams
	VWAPReversion  VWAPReversionParams
}

// DefaultPipelineParams returns the production parameter set for 15m bars.
func DefaultPipelineParams() PipelineParams {
	return PipelineParams{
		EMARatio:   indicators.EMARatioParams{Fast: 20, Slow: 100},
		MACD:       indicators.MACDParams{Fast: 12, Slow: 26, Signal: 9, Init: indicators.InitPrice},
		EWMAVol:    indicators.EWMAVolParams{Lambda: 0.94},
		VWAPWindow: 96,
		EMARatioTrend: EMARatioTrendParams{
			EntryThreshold: 0.0010,
			ExitThreshold:  0.0004,
			ConfirmBars:    2,
			CooldownBars:   1,
		},
		MACDTrend: MACDTrendParams{
			EntryThreshold: 0,
			ExitThreshold:  0,
			ConfirmBars:    3,
			CooldownBars:   0,
		},
		ShockReversion: ShockReversionParams{
			KEntry:       2.0,
			KExit:        0.5,
			TrendGate:    0.0010,
			MaxHoldBars:  16,
			ConfirmBars:  1,
			CooldownBars: 1,
		},
		VWAPReversion: VWAPReversionParams{
			KEntry:       2.0,
			KExit:        0.5,
			StopK:        4.0,
			TrendGate:    0.0020,
			MaxHoldBars:  16,
			ConfirmBars:  1,
			CooldownBars: 1,
		},
	}
}

// BuildInputs derives every indicator series the registered strategies
// consume from one bar series. The VWAP distance is standardized by the
// rolling std of the distance itself over the VWAP window.
func BuildInputs(bars []domain.Bar, p PipelineParams) (Inputs, error) {
	if len(bars) == 0 {
		return Inputs{}, fmt.Errorf("pipeline: no bars")
	}
	close := make([]float64, len(bars))
	volume := make([]float64, len(bars))
	for i, b := range bars {
		close[i] = b.Close
		volume[i] = b.Volume
	}

	ratio, err := indicators.EMARatio(close, p.EMARatio)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}
	macd, err := indicators.MACD(close, p.MACD)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}

	logret := indicators.LogReturns(close)
	vol, err := indicators.EWMAVol(logret, p.EWMAVol)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}
	shock, err := indicators.Shock(logret, vol)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}

	vwap, err := indicators.RollingVWAP(close, volume, p.VWAPWindow)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}
	dist, err := indicators.VWAPDistance(close, vwap)
	if err != nil {
		return Inputs{}, fmt.Errorf("pipeline: %w", err)
	}
	distSigma := indicators.RollingStd(dist, p.VWAPWindow)

	return Inputs{
		Close:    close,
		EMASlow:  macd.EMASlow,
		EMARatio: ratio.Ratio,
		HistNorm: macd.HistNorm,
		Shock:    shock,
		Dist:     dist,
		Vol:      distSigma,
	}, nil
}

// NewDefaultRegistry registers the four production strategies under their
// canonical names, bound to the given parameter set.
func NewDefaultRegistry(p PipelineParams) *Registry {
	r := NewRegistry()
	r.Register(NameEMARatioTrend, func(in Inputs) ([]int, error) {
		return EMARatioTrendPositions(in.EMARatio, p.EMARatioTrend)
	})
	r.Register(NameMACDTrend, func(in Inputs) ([]int, error) {
		return MACDTrendPositions(in.HistNorm, in.Close, in.EMASlow, p.MACDTrend)
	})
	r.Register(NameShockReversion, func(in Inputs) ([]int, error) {
		return ShockReversionPositions(in.Shock, in.EMARatio, p.ShockReversion)
	})
	r.Register(NameVWAPReversion, func(in Inputs) ([]int, error) {
		return VWAPReversionPositions(in.Dist, in.Vol, in.EMARatio, p.VWAPReversion)
	})
	return r
}
