package broker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tradewind/internal/domain"
)

// ---------------------------------------------------------------------------
// API errors
// ---------------------------------------------------------------------------

// APIError is a non-2xx response from the exchange, carrying the HTTP status
// and the Binance error payload when one was returned.
type APIError struct {
	Status int
	Code   int    // Binance error code, e.g. -1021
	Msg    string // Binance error message or raw body
	Method string
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance %s %s: HTTP %d code=%d msg=%q", e.Method, e.Path, e.Status, e.Code, e.Msg)
}

// retryStatus is the set of transient HTTP statuses worth retrying: the
// Binance teapot/backoff pair plus server-side errors.
var retryStatus = map[int]bool{
	418: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Kline is one exchange candlestick. Binance serves klines as positional JSON
// arrays with string-encoded decimals, so the type carries a custom
// unmarshaller.
type Kline struct {
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTime   int64
	QuoteVolume float64
	TradeCount  int64
}

// UnmarshalJSON decodes the positional kline array format:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...].
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("kline: %w", err)
	}
	if len(raw) < 9 {
		return fmt.Errorf("kline: expected at least 9 fields, got %d", len(raw))
	}

	fields := []struct {
		idx int
		dst any
	}{
		{0, &k.OpenTime},
		{6, &k.CloseTime},
		{8, &k.TradeCount},
	}
	for _, f := range fields {
		if err := json.Unmarshal(raw[f.idx], f.dst); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
	}

	strFields := []struct {
		idx int
		dst *float64
	}{
		{1, &k.Open},
		{2, &k.High},
		{3, &k.Low},
		{4, &k.Close},
		{5, &k.Volume},
		{7, &k.QuoteVolume},
	}
	for _, f := range strFields {
		var s string
		if err := json.Unmarshal(raw[f.idx], &s); err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("kline field %d: %w", f.idx, err)
		}
		*f.dst = v
	}
	return nil
}

// Bar converts the kline into the domain bar for the given symbol.
func (k Kline) Bar(symbol string) domain.Bar {
	return domain.Bar{
		Symbol:      symbol,
		OpenTime:    time.UnixMilli(k.OpenTime).UTC(),
		Open:        k.Open,
		High:        k.High,
		Low:         k.Low,
		Close:       k.Close,
		Volume:      k.Volume,
		QuoteVolume: k.QuoteVolume,
		TradeCount:  k.TradeCount,
	}
}

// ---------------------------------------------------------------------------
// Exchange info
// ---------------------------------------------------------------------------

// SymbolFilters is the trading-rule subset the order path needs: price tick,
// lot step and bounds, and the minimum notional. The raw tick/step strings
// are kept because their decimal exponent defines the output precision.
type SymbolFilters struct {
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	MinNotional float64 // 0 when the exchange does not publish one
	TickSizeStr string
	StepSizeStr string
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MaxQty      string `json:"maxQty"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// parseSymbolFilters extracts the PRICE_FILTER, LOT_SIZE and notional filters
// for one symbol out of an exchangeInfo response.
func parseSymbolFilters(info *exchangeInfoResponse, symbol string) (SymbolFilters, error) {
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		var f SymbolFilters
		var haveTick, haveLot bool
		for _, flt := range s.Filters {
			switch flt.FilterType {
			case "PRICE_FILTER":
				v, err := strconv.ParseFloat(flt.TickSize, 64)
				if err != nil {
					return SymbolFilters{}, fmt.Errorf("parsing tickSize %q: %w", flt.TickSize, err)
				}
				f.TickSize = v
				f.TickSizeStr = flt.TickSize
				haveTick = true
			case "LOT_SIZE":
				step, err := strconv.ParseFloat(flt.StepSize, 64)
				if err != nil {
					return SymbolFilters{}, fmt.Errorf("parsing stepSize %q: %w", flt.StepSize, err)
				}
				minQty, err := strconv.ParseFloat(flt.MinQty, 64)
				if err != nil {
					return SymbolFilters{}, fmt.Errorf("parsing minQty %q: %w", flt.MinQty, err)
				}
				maxQty, err := strconv.ParseFloat(flt.MaxQty, 64)
				if err != nil {
					return SymbolFilters{}, fmt.Errorf("parsing maxQty %q: %w", flt.MaxQty, err)
				}
				f.StepSize = step
				f.StepSizeStr = flt.StepSize
				f.MinQty = minQty
				f.MaxQty = maxQty
				haveLot = true
			case "MIN_NOTIONAL", "NOTIONAL":
				if flt.MinNotional != "" {
					v, err := strconv.ParseFloat(flt.MinNotional, 64)
					if err != nil {
						return SymbolFilters{}, fmt.Errorf("parsing minNotional %q: %w", flt.MinNotional, err)
					}
					f.MinNotional = v
				}
			}
		}
		if !haveTick || !haveLot {
			return SymbolFilters{}, fmt.Errorf("incomplete filters for %s: price_filter=%v lot_size=%v",
				symbol, haveTick, haveLot)
		}
		return f, nil
	}
	return SymbolFilters{}, fmt.Errorf("symbol %s not found in exchangeInfo", symbol)
}

// ---------------------------------------------------------------------------
// Account and orders
// ---------------------------------------------------------------------------

// Balance is one asset line from the account snapshot. Free and Locked stay
// as exchange strings; use the float accessors for arithmetic.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// FreeF returns the free amount, or 0 when the field does not parse.
func (b Balance) FreeF() float64 { return lenientFloat(b.Free) }

// LockedF returns the locked amount, or 0 when the field does not parse.
func (b Balance) LockedF() float64 { return lenientFloat(b.Locked) }

// lenientFloat parses exchange decimal strings, treating garbage as zero so a
// malformed balance line cannot take down a reconciliation pass.
func lenientFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// AccountSnapshot is the signed /account response subset used for shadow
// position inference.
type AccountSnapshot struct {
	CanTrade   bool      `json:"canTrade"`
	UpdateTime int64     `json:"updateTime"`
	Balances   []Balance `json:"balances"`
}

// OpenOrder is one working order from the signed openOrders endpoint.
type OpenOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"timeInForce"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Time          int64  `json:"time"`
}

// ExecutedQtyF returns the executed quantity, or 0 when unparsable.
func (o OpenOrder) ExecutedQtyF() float64 { return lenientFloat(o.ExecutedQty) }

// OrderAck is the response to a new-order submission.
type OrderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	TransactTime  int64  `json:"transactTime"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Side          string `json:"side"`
}

// AccountTrade is one fill from the signed myTrades endpoint.
type AccountTrade struct {
	Symbol   string `json:"symbol"`
	ID       int64  `json:"id"`
	OrderID  int64  `json:"orderId"`
	Price    string `json:"price"`
	Qty      string `json:"qty"`
	QuoteQty string `json:"quoteQty"`
	Time     int64  `json:"time"`
	IsBuyer  bool   `json:"isBuyer"`
}
