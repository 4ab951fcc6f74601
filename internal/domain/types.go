// Package domain defines the core value objects shared across the tradewind
// system: OHLCV bars, discrete position signals, and order intents.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// Discrete position signal values. Strategies emit one of these per bar.
const (
	PositionShort = -1
	PositionFlat  = 0
	PositionLong  = 1
)

// Mode selects which side of the book a strategy may take.
type Mode string

const (
	// ModeLongOnly restricts a strategy to {0, +1}.
	ModeLongOnly Mode = "long_only"
	// ModeLongShort allows the full {-1, 0, +1} domain.
	ModeLongShort Mode = "long_short"
)

// Valid reports whether m is a recognised mode.
func (m Mode) Valid() bool {
	return m == ModeLongOnly || m == ModeLongShort
}

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is a single fixed-interval OHLCV observation. OpenTime is UTC, strictly
// increasing and unique within a series.
type Bar struct {
	Symbol      string
	OpenTime    time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	TradeCount  int64
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// Side is the order side as the exchange spells it.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderIntent is the immutable output of the order-decision function. Quantity
// and price are raw (unquantized); quantization to exchange tick/step happens
// only at the submission boundary.
type OrderIntent struct {
	Symbol         string
	Side           Side
	Quantity       float64
	Price          float64
	TimeInForce    string
	ClientOrderID  string
	Reason         string
	TargetPosition int
}

func (o OrderIntent) String() string {
	return fmt.Sprintf("%s %s qty=%.8f px=%.8f tif=%s cid=%s",
		o.Side, o.Symbol, o.Quantity, o.Price, o.TimeInForce, o.ClientOrderID)
}
