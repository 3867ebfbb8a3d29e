// Package oms is the REST client of the order management gateway that sits
// in front of the exchanges. Orders are accepted synchronously; their fills
// arrive later on the signal bus.
package oms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jthomazinho/vimana-arbitrage/internal/crypto"
	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// Limiter throttles requests per key.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Client talks to the OMS gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	limiter    Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter throttles order sends per exchange.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a Client. auth may be nil for an unauthenticated
// gateway.
func NewClient(baseURL string, auth *crypto.HMACAuth, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendOrderRequest struct {
	AlgoInstanceID       int64            `json:"algoInstanceId"`
	Exchange             string           `json:"exchange"`
	Symbol               string           `json:"symbol"`
	Side                 domain.OrderSide `json:"side"`
	Type                 domain.OrderType `json:"type"`
	Quantity             string           `json:"quantity"`
	Price                string           `json:"price,omitempty"`
	ArbitrageExecutionID int64            `json:"arbitrageExecutionId,omitempty"`
}

// SendOrder sends an order and returns it as accepted by the exchange. A
// failure is a *domain.SendOrderError carrying the gateway status code.
func (c *Client) SendOrder(ctx context.Context, params domain.OrderParams) (domain.Order, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "oms:"+params.Exchange); err != nil {
			return domain.Order{}, fmt.Errorf("oms: send order: %w", err)
		}
	}

	req := sendOrderRequest{
		AlgoInstanceID:       params.AlgoInstanceID,
		Exchange:             params.Exchange,
		Symbol:               params.Symbol,
		Side:                 params.Side,
		Type:                 params.Type,
		Quantity:             params.Quantity.StringFixed(8),
		ArbitrageExecutionID: params.ExecutionID,
	}
	if !params.Price.IsZero() {
		req.Price = params.Price.String()
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/orders", req)
	if err != nil {
		return domain.Order{}, sendError(err)
	}

	var order domain.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return domain.Order{}, fmt.Errorf("oms: decode order: %w", err)
	}
	return order, nil
}

// OrderHistory returns the recent order history of an instance on one
// exchange.
func (c *Client) OrderHistory(ctx context.Context, exchange string, instanceID int64) ([]domain.OrderHistory, error) {
	q := url.Values{}
	q.Set("algo_instance_id", strconv.FormatInt(instanceID, 10))
	path := "/v1/exchanges/" + url.PathEscape(exchange) + "/orders/history?" + q.Encode()

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("oms: order history %s: %w", exchange, err)
	}

	var history []domain.OrderHistory
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("oms: decode order history: %w", err)
	}
	return history, nil
}

// statusError is a non-2xx answer of the gateway.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.message)
}

func sendError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &domain.SendOrderError{Code: se.code, Message: se.message, Err: err}
	}
	return &domain.SendOrderError{Message: err.Error(), Err: err}
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, &statusError{code: domain.GatewayTimeoutCode, message: err.Error()}
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// checkHTTPStatus maps non-2xx status codes to errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if eb.Message != "" {
			msg = eb.Message
		} else if eb.Error != "" {
			msg = eb.Error
		}
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return &statusError{code: statusCode, message: msg}
	}
}
