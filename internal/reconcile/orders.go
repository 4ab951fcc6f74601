package reconcile

import (
	"fmt"
	"sort"

	"tradewind/internal/broker"
)

// OrderCheckResult summarizes a broker-truth pass over open orders and recent
// fills against the set of orders we believe we submitted.
type OrderCheckResult struct {
	OK                bool
	OpenOrdersCount   int
	OpenOrderIDs      map[int64]bool
	MissingExpected   []int64 // expected open but gone from the broker
	UnexpectedOpen    []int64 // open at the broker but not ours
	AnyExecutedQty    bool    // some open order is partially filled
	RecentTradesCount int     // -1 when the trades check was unavailable
	Reason            string
}

// CheckOrders compares the broker's open orders and recent trades with the
// expected open-order set. Partial fills, any recent trades, and unexpected
// open orders each fail the check. Missing expected orders are recorded but
// do not fail on their own: an order can legitimately disappear through a
// cancel or expiry.
func CheckOrders(openOrders []broker.OpenOrder, trades []broker.AccountTrade, tradesChecked bool, expected map[int64]bool) OrderCheckResult {
	r := OrderCheckResult{
		OK:              true,
		OpenOrdersCount: len(openOrders),
		OpenOrderIDs:    make(map[int64]bool, len(openOrders)),
		Reason:          "ok",
	}

	for _, o := range openOrders {
		r.OpenOrderIDs[o.OrderID] = true
		if o.ExecutedQtyF() > 0 {
			r.AnyExecutedQty = true
		}
	}

	for id := range expected {
		if !r.OpenOrderIDs[id] {
			r.MissingExpected = append(r.MissingExpected, id)
		}
	}
	for id := range r.OpenOrderIDs {
		if !expected[id] {
			r.UnexpectedOpen = append(r.UnexpectedOpen, id)
		}
	}
	sort.Slice(r.MissingExpected, func(i, j int) bool { return r.MissingExpected[i] < r.MissingExpected[j] })
	sort.Slice(r.UnexpectedOpen, func(i, j int) bool { return r.UnexpectedOpen[i] < r.UnexpectedOpen[j] })

	if tradesChecked {
		r.RecentTradesCount = len(trades)
	} else {
		r.RecentTradesCount = -1
	}

	if r.AnyExecutedQty {
		r.OK = false
		r.Reason = "unexpected executedQty>0 on open order (partial fill risk)"
	}
	if tradesChecked && len(trades) > 0 {
		r.OK = false
		r.Reason = fmt.Sprintf("unexpected trades detected (count=%d)", len(trades))
	}
	if len(r.UnexpectedOpen) > 0 && r.OK {
		r.OK = false
		r.Reason = fmt.Sprintf("unexpected open orders present (count=%d)", len(r.UnexpectedOpen))
	}

	return r
}
