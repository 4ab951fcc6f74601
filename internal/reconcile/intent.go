package reconcile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tradewind/internal/domain"
)

const minPriceEps = 1e-12

// FarLimitPrice places a limit price farBPS basis points away from the
// market, on the passive side: buys below, sells above. farBPS=500 is 5%.
func FarLimitPrice(lastPx float64, side domain.Side, farBPS float64) float64 {
	frac := farBPS / 10000.0
	if side == domain.SideBuy {
		return lastPx * (1.0 - frac)
	}
	return lastPx * (1.0 + frac)
}

// NotionalToQty converts a quote-denominated order size into base quantity at
// the last price, clamped to non-negative.
func NotionalToQty(notional, lastPx float64) float64 {
	if lastPx < minPriceEps {
		lastPx = minPriceEps
	}
	qty := notional / lastPx
	if qty < 0 {
		return 0
	}
	return qty
}

// newClientOrderID builds a unique, journal-greppable client order ID.
func newClientOrderID(symbol string, side domain.Side, nowMS int64) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("tw_%s_%d_%s_%s", symbol, nowMS, side, short)
}

// DecideOrder turns a desired-vs-current position mismatch into a
// far-from-market limit order intent, or nil when no order is needed. In spot
// mode a negative desired position is treated as flat; flat means SELL the
// held base, long means BUY.
func DecideOrder(symbol string, lastPx float64, desired, current int, notional, farBPS float64, nowMS int64, spotMode bool) *domain.OrderIntent {
	if spotMode && desired < 0 {
		desired = 0
	}
	if desired == current {
		return nil
	}

	side := domain.SideBuy
	if desired == 0 {
		side = domain.SideSell
	}

	return &domain.OrderIntent{
		Symbol:        symbol,
		Side:          side,
		Quantity:      NotionalToQty(notional, lastPx),
		Price:         FarLimitPrice(lastPx, side, farBPS),
		TimeInForce:   "GTC",
		ClientOrderID: newClientOrderID(symbol, side, nowMS),
		Reason: fmt.Sprintf("spot_mode=%t desired=%d current=%d far_bps=%g",
			spotMode, desired, current, farBPS),
		TargetPosition: desired,
	}
}
