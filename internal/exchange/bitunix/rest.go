// Package bitunix provides a REST client implementation of the
// ExchangeAdapter interface (internal/exchange) for the Bitunix exchange.
// It handles request signing, order placement with timeout/retry tracking,
// leverage and margin-mode configuration, and position/balance queries.
package bitunix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitunix-bot/coretrader/internal/errs"

	"github.com/go-resty/resty/v2"
)

// Client provides REST API access to the Bitunix exchange. It includes HTTP
// connection pooling, retry mechanisms, and optional order tracking with
// timeout handling for reliable order execution.
type Client struct {
	key, secret, base string
	rest              *resty.Client
	orderTracker      *OrderTracker
}

// NewREST creates a new REST client with optimized HTTP transport settings.
func NewREST(key, secret, base string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)

	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}

	r.SetRetryCount(3)
	r.SetRetryWaitTime(1 * time.Second)
	r.SetRetryMaxWaitTime(5 * time.Second)
	r.EnableTrace()

	return &Client{
		key:    key,
		secret: secret,
		base:   base,
		rest:   r,
	}
}

// NewRESTWithOrderTracking creates a REST client with order tracking enabled.
func NewRESTWithOrderTracking(key, secret, base string, timeout, executionTimeout, statusCheckInterval time.Duration, maxRetries int) *Client {
	client := NewREST(key, secret, base, timeout)
	client.orderTracker = NewOrderTracker(client, executionTimeout, statusCheckInterval, maxRetries)
	return client
}

// NewRESTWithOrderTrackingAndMetrics creates a REST client with order
// tracking and metrics enabled.
func NewRESTWithOrderTrackingAndMetrics(key, secret, base string, timeout, executionTimeout, statusCheckInterval time.Duration, maxRetries int, metrics MetricsInterface) *Client {
	client := NewREST(key, secret, base, timeout)
	client.orderTracker = NewOrderTracker(client, executionTimeout, statusCheckInterval, maxRetries)
	if metrics != nil {
		client.orderTracker.SetMetrics(metrics)
	}
	return client
}

// GetOrderTracker returns the order tracker if available.
func (c *Client) GetOrderTracker() *OrderTracker {
	return c.orderTracker
}

// PlaceWithTimeout places an order with timeout tracking if available.
func (c *Client) PlaceWithTimeout(o OrderReq) error {
	if c.orderTracker == nil {
		return c.Place(o)
	}
	return c.orderTracker.PlaceOrderWithTimeout(o)
}

// Close closes the client and stops any background processes.
func (c *Client) Close() error {
	if c.orderTracker != nil {
		c.orderTracker.Stop()
	}
	return nil
}

// OrderReq represents an order request to the Bitunix exchange.
type OrderReq struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`      // "BUY" or "SELL"
	TradeSide     string `json:"tradeSide"` // "OPEN" or "CLOSE"
	Qty           string `json:"qty"`
	OrderType     string `json:"orderType"` // "MARKET", "STOP_LOSS", "TAKE_PROFIT"
	StopPrice     string `json:"stopPrice,omitempty"`
	ClientOrderID string `json:"clientId,omitempty"`
	ReduceOnly    bool   `json:"reduceOnly,omitempty"`
}

type orderResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

func (c *Client) Place(o OrderReq) error {
	_, err := c.placeOrder(o)
	return err
}

func (c *Client) placeOrder(o OrderReq) (string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := ts

	sign := Sign(c.secret, nonce, c.key, ts)
	path := "/api/v1/futures/trade/place_order"

	resp := &orderResp{}
	httpResp, err := c.rest.R().
		SetHeader("api-key", c.key).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign).
		SetBody(o).
		SetResult(resp).
		Post(c.base + path)
	if err != nil {
		return "", errs.Transient("network error placing order", err)
	}
	if status := httpResp.StatusCode(); status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return "", errs.Transient(fmt.Sprintf("bitunix: http status %d", status), nil)
	}
	if httpResp.IsError() {
		return "", errs.Validation(fmt.Sprintf("bitunix: http status %d", httpResp.StatusCode()))
	}
	if resp.Code != 0 {
		return "", classifyOrderError(httpResp.StatusCode(), resp.Code, resp.Msg)
	}
	return resp.Data.OrderID, nil
}

// classifyOrderError turns a Bitunix order-rejection response into a typed
// error so callers can distinguish retry-worthy failures (network problems,
// rate limiting) from permanent rejections (invalid order, insufficient
// funds) instead of retrying every failure uniformly. Grounded on
// ccxt's NetworkError/RateLimitExceeded/InvalidOrder/InsufficientFunds split
// used throughout original_source/workspace/features/trade_executor/executor_service.py.
func classifyOrderError(httpStatus, code int, msg string) error {
	detail := fmt.Sprintf("bitunix: %d %s", code, msg)
	lower := strings.ToLower(msg)
	switch {
	case httpStatus == http.StatusTooManyRequests || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return errs.Transient(detail, nil)
	case strings.Contains(lower, "insufficient"):
		return errs.Validation(detail)
	default:
		return errs.Validation(detail)
	}
}

// CancelOrder cancels a previously placed order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	payload := map[string]string{"symbol": symbol, "orderId": orderID}
	resp, err := c.doRequest("POST", "/api/v1/futures/trade/cancel_order", payload)
	if err != nil {
		return err
	}
	return respHasError(resp)
}

// PositionInfo is the exchange's view of an open position for a symbol.
type PositionInfo struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Qty           string `json:"qty"`
	EntryPrice    string `json:"entryPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealizedPnL string `json:"unrealizedPnl"`
	Leverage      int    `json:"leverage"`
}

// GetPosition fetches the exchange's current position for a symbol. Returns
// a zero-quantity PositionInfo, not an error, when there is no open position.
func (c *Client) GetPosition(ctx context.Context, symbol string) (PositionInfo, error) {
	path := "/api/v1/futures/position/single"
	params := map[string]string{"symbol": symbol}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := Sign(c.secret, ts, c.key, ts)

	var body struct {
		Code int          `json:"code"`
		Msg  string       `json:"msg"`
		Data PositionInfo `json:"data"`
	}
	resp, err := c.rest.R().
		SetHeader("api-key", c.key).
		SetHeader("nonce", ts).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign).
		SetQueryParams(params).
		SetResult(&body).
		Get(c.base + path)
	if err != nil {
		return PositionInfo{}, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || body.Code != 0 {
		return PositionInfo{}, fmt.Errorf("bitunix: status %d code %d: %s", resp.StatusCode(), body.Code, body.Msg)
	}
	return body.Data, nil
}

// GetBalance fetches the account's available USDT balance.
func (c *Client) GetBalance(ctx context.Context) (string, error) {
	path := "/api/v1/futures/account/balance"
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := Sign(c.secret, ts, c.key, ts)

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Available string `json:"available"`
		} `json:"data"`
	}
	resp, err := c.rest.R().
		SetHeader("api-key", c.key).
		SetHeader("nonce", ts).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign).
		SetResult(&body).
		Get(c.base + path)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || body.Code != 0 {
		return "", fmt.Errorf("bitunix: status %d code %d: %s", resp.StatusCode(), body.Code, body.Msg)
	}
	return body.Data.Available, nil
}

// Response is the generic envelope returned by Bitunix account endpoints.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doRequest signs and issues a request against an account/trade endpoint,
// the shared low-level helper used by leverage and margin-mode changes.
func (c *Client) doRequest(method, path string, payload interface{}) (*Response, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := Sign(c.secret, ts, c.key, ts)

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req := c.rest.R().
		SetHeader("api-key", c.key).
		SetHeader("nonce", ts).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign).
		SetHeader("Content-Type", "application/json").
		SetBody(bytes.NewReader(buf))

	result := &Response{}
	req.SetResult(result)

	var resp *resty.Response
	switch method {
	case http.MethodGet:
		resp, err = req.Get(c.base + path)
	default:
		resp, err = req.Post(c.base + path)
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		b, _ := io.ReadAll(bytes.NewReader(resp.Body()))
		return nil, fmt.Errorf("bitunix: http status %d: %s", resp.StatusCode(), string(b))
	}
	return result, nil
}
