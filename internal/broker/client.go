// Package broker is a minimal Binance spot REST client for the testnet:
// public market-data endpoints plus the HMAC-signed account and order
// endpoints the reconciliation loop needs. Order quantity and price are
// submitted as fixed-point strings quantized to the symbol's exchange
// filters; the exchange rejects excess precision.
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradewind/internal/config"
	"tradewind/internal/domain"
	"tradewind/internal/util"
)

// Client talks to one Binance spot REST endpoint. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int
	maxRetries int
	retryBase  time.Duration

	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger

	mu      sync.Mutex
	filters map[string]SymbolFilters
}

// NewClient builds a client from the broker configuration block. Credentials
// may be empty for public-endpoint-only use.
func NewClient(cfg config.Broker) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: cfg.RecvWindowMS,
		maxRetries: cfg.MaxRetries,
		retryBase:  time.Duration(cfg.RetryBaseMS) * time.Millisecond,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: util.NewRateLimiter(cfg.RateLimitPerMin),
		log:     slog.Default().With("component", "broker"),
		filters: make(map[string]SymbolFilters),
	}
}

// retryable reports whether an error is worth another attempt: transient
// exchange statuses or anything that is not an APIError (network failures,
// timeouts, truncated bodies).
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryStatus[apiErr.Status]
	}
	return true
}

// do performs one endpoint call with rate limiting and retry, decoding the
// JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	return util.RetryIf(ctx, c.maxRetries, c.retryBase, retryable, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.doOnce(ctx, method, path, params, signed, out)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}

	if signed {
		if c.apiKey == "" || c.apiSecret == "" {
			return fmt.Errorf("binance %s %s: API key/secret required", method, path)
		}
		// Timestamp and signature must be computed per attempt so a retry
		// does not replay a stale signature outside the recv window.
		params.Del("signature")
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.Itoa(c.recvWindow))
		qs := params.Encode()
		params.Set("signature", c.sign(qs))
	}

	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance %s %s: reading body: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Msg: string(body), Method: method, Path: path}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Msg != "" {
			apiErr.Code = payload.Code
			apiErr.Msg = payload.Msg
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance %s %s: decoding response: %w", method, path, err)
	}
	return nil
}

func (c *Client) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// ---------------------------------------------------------------------------
// Public endpoints
// ---------------------------------------------------------------------------

// ServerTime returns the exchange clock in epoch milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/time", nil, false, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// TickerPrice returns the last traded price for the symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", params, false, &resp); err != nil {
		return 0, err
	}
	px, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ticker price %q: %w", resp.Price, err)
	}
	return px, nil
}

// Klines fetches up to limit candles for the symbol/interval. startMS and
// endMS bound the window in epoch milliseconds; zero means unbounded on that
// side.
func (c *Client) Klines(ctx context.Context, symbol, interval string, startMS, endMS int64, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if startMS > 0 {
		params.Set("startTime", strconv.FormatInt(startMS, 10))
	}
	if endMS > 0 {
		params.Set("endTime", strconv.FormatInt(endMS, 10))
	}

	var klines []Kline
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", params, false, &klines); err != nil {
		return nil, err
	}
	return klines, nil
}

// SymbolFilters returns the trading rules for the symbol, consulting a
// process-lifetime cache since exchange filters change rarely.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	c.mu.Lock()
	if f, ok := c.filters[symbol]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)

	var info exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &info); err != nil {
		return SymbolFilters{}, err
	}
	f, err := parseSymbolFilters(&info, symbol)
	if err != nil {
		return SymbolFilters{}, err
	}

	c.mu.Lock()
	c.filters[symbol] = f
	c.mu.Unlock()
	c.log.Info("symbol filters loaded",
		"symbol", symbol,
		"tickSize", f.TickSizeStr,
		"stepSize", f.StepSizeStr,
		"minQty", f.MinQty,
		"minNotional", f.MinNotional)
	return f, nil
}

// ---------------------------------------------------------------------------
// Signed endpoints
// ---------------------------------------------------------------------------

// Account returns the signed account snapshot with per-asset balances.
func (c *Client) Account(ctx context.Context) (*AccountSnapshot, error) {
	var snap AccountSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, true, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// OpenOrders lists the working orders for the symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var orders []OpenOrder
	if err := c.do(ctx, http.MethodGet, "/api/v3/openOrders", params, true, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// NewLimitOrder submits a GTC-style limit order. Quantity and price must
// already be quantized fixed-point strings.
func (c *Client) NewLimitOrder(ctx context.Context, symbol string, side domain.Side, quantity, price, timeInForce, clientOrderID string) (*OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", timeInForce)
	params.Set("quantity", quantity)
	params.Set("price", price)
	if clientOrderID != "" {
		params.Set("newClientOrderId", clientOrderID)
	}

	var ack OrderAck
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// CancelOrder cancels one order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	return c.do(ctx, http.MethodDelete, "/api/v3/order", params, true, nil)
}

// MyTrades returns the most recent fills for the symbol, newest last.
func (c *Client) MyTrades(ctx context.Context, symbol string, limit int) ([]AccountTrade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var trades []AccountTrade
	if err := c.do(ctx, http.MethodGet, "/api/v3/myTrades", params, true, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}
