package broker

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SkipError reports an order that fails the exchange trading rules after
// quantization. It is a skip signal, not a fault: the live loop records it
// and moves on.
type SkipError struct {
	Rule   string // "minQty", "maxQty" or "minNotional"
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("order skipped (%s): %s", e.Rule, e.Reason)
}

// IsSkip reports whether err is a trading-rule skip.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}

// FloorToStep floors a quantity to an integer multiple of the lot step.
// A non-positive step passes the value through.
func FloorToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// RoundToTick rounds a price to the nearest tick, half away from zero.
func RoundToTick(px, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return px
	}
	return px.Div(tick).Round(0).Mul(tick)
}

// QuantizeOrder converts raw float quantity and price into the exact
// fixed-point strings the exchange accepts: quantity floored to the lot step,
// price rounded to the nearest tick. It returns a SkipError when the
// quantized order violates minQty, maxQty or minNotional.
//
// Decimal arithmetic throughout; float formatting would reintroduce the
// precision artifacts quantization exists to remove.
func QuantizeOrder(f SymbolFilters, quantity, price float64) (qtyStr, priceStr string, err error) {
	step, err := decimal.NewFromString(f.StepSizeStr)
	if err != nil {
		return "", "", fmt.Errorf("parsing stepSize %q: %w", f.StepSizeStr, err)
	}
	tick, err := decimal.NewFromString(f.TickSizeStr)
	if err != nil {
		return "", "", fmt.Errorf("parsing tickSize %q: %w", f.TickSizeStr, err)
	}

	q := FloorToStep(decimal.NewFromFloat(quantity), step)
	p := RoundToTick(decimal.NewFromFloat(price), tick)

	minQty := decimal.NewFromFloat(f.MinQty)
	maxQty := decimal.NewFromFloat(f.MaxQty)

	if q.LessThan(minQty) {
		return "", "", &SkipError{
			Rule:   "minQty",
			Reason: fmt.Sprintf("quantity %s < minQty %v (step=%s)", q, f.MinQty, f.StepSizeStr),
		}
	}
	if maxQty.Sign() > 0 && q.GreaterThan(maxQty) {
		return "", "", &SkipError{
			Rule:   "maxQty",
			Reason: fmt.Sprintf("quantity %s > maxQty %v", q, f.MaxQty),
		}
	}
	if f.MinNotional > 0 {
		notional := q.Mul(p)
		if notional.LessThan(decimal.NewFromFloat(f.MinNotional)) {
			return "", "", &SkipError{
				Rule:   "minNotional",
				Reason: fmt.Sprintf("notional %s < minNotional %v", notional, f.MinNotional),
			}
		}
	}

	return q.String(), p.String(), nil
}
