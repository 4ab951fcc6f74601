// Package reconcile infers the account's effective spot position from broker
// truth (balances, open orders, fills) and decides whether and what to trade.
// It never trusts local bookkeeping over what the exchange reports.
package reconcile

import (
	"fmt"
	"strings"

	"tradewind/internal/broker"
)

// ShadowResult is one balance-based position inference.
type ShadowResult struct {
	Symbol          string
	DesiredPosition int // -1/0/+1 from the strategy, recorded for the journal
	ShadowPosition  int // 0/1 inferred from balances; spot cannot be short
	BaseAsset       string
	QuoteAsset      string
	BaseFree        float64
	BaseLocked      float64
	QuoteFree       float64
	QuoteLocked     float64
	MarkPrice       float64
	BaseValueQuote  float64
	Threshold       float64
	Reason          string
}

// SplitSymbolSpot splits a spot symbol into base and quote assets. USDT
// quotes are the common case; anything else is assumed to carry a
// three-letter quote.
func SplitSymbolSpot(symbol string) (base, quote string) {
	if strings.HasSuffix(symbol, "USDT") {
		return symbol[:len(symbol)-4], "USDT"
	}
	return symbol[:len(symbol)-3], symbol[len(symbol)-3:]
}

// InferShadowSpot infers a coarse spot position in {0,1} from account
// balances: shadow is 1 when the base holding is worth at least
// max(minNotional, notional/2) in quote units at the mark price.
func InferShadowSpot(symbol string, acct *broker.AccountSnapshot, markPrice float64, desired int, notional, minNotional float64) ShadowResult {
	base, quote := SplitSymbolSpot(symbol)

	var r ShadowResult
	r.Symbol = symbol
	r.DesiredPosition = desired
	r.BaseAsset = base
	r.QuoteAsset = quote
	r.MarkPrice = markPrice

	for _, b := range acct.Balances {
		switch b.Asset {
		case base:
			r.BaseFree = b.FreeF()
			r.BaseLocked = b.LockedF()
		case quote:
			r.QuoteFree = b.FreeF()
			r.QuoteLocked = b.LockedF()
		}
	}

	baseTotal := r.BaseFree + r.BaseLocked
	r.BaseValueQuote = baseTotal * markPrice

	r.Threshold = minNotional
	if half := notional / 2; half > r.Threshold {
		r.Threshold = half
	}
	if r.BaseValueQuote >= r.Threshold {
		r.ShadowPosition = 1
	}

	r.Reason = fmt.Sprintf("base_total=%.8f %s (~%.2f %s) quote_total=%.2f %s threshold=%.2f",
		baseTotal, base, r.BaseValueQuote, quote,
		r.QuoteFree+r.QuoteLocked, quote, r.Threshold)
	return r
}

// SpotTarget maps the strategy's desired position onto what spot can hold: a
// short request means flat.
func SpotTarget(desired int) int {
	if desired > 0 {
		return 1
	}
	return 0
}

// ShouldTrade is the trade gate: no stacking on top of working orders, and no
// trading when the account already sits at the target.
func ShouldTrade(target, shadow, openOrders int) (bool, string) {
	if openOrders > 0 {
		return false, fmt.Sprintf("skip: open_orders_count=%d", openOrders)
	}
	if target == shadow {
		return false, fmt.Sprintf("skip: already at target_position=%d", target)
	}
	return true, "ok"
}
