// Package kalshi provides a REST client for the Kalshi exchange API.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production trade API root.
	DefaultBaseURL = "https://api.elections.kalshi.com"
	// DemoBaseURL is the paper-money demo environment.
	DemoBaseURL = "https://demo-api.kalshi.co"

	apiPrefix = "/trade-api/v2"

	// Kalshi allows 10 req/s on the basic tier.
	defaultRateLimit = 10.0
	defaultBurst     = 5
)

// Client is a Kalshi trade API client.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (e.g. DemoBaseURL).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock overrides the timestamp source for signing.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Kalshi client. The signer may be nil for
// unauthenticated market-data access.
func NewClient(signer *Signer, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		signer:  signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListMarkets fetches markets matching the filter.
func (c *Client) ListMarkets(ctx context.Context, filter *MarketsFilter) ([]Market, string, error) {
	params := url.Values{}
	if filter != nil {
		if filter.EventTicker != "" {
			params.Set("event_ticker", filter.EventTicker)
		}
		if filter.SeriesTicker != "" {
			params.Set("series_ticker", filter.SeriesTicker)
		}
		if filter.Status != "" {
			params.Set("status", filter.Status)
		}
		if filter.Category != "" {
			params.Set("category", filter.Category)
		}
		if filter.Tickers != "" {
			params.Set("tickers", filter.Tickers)
		}
		if filter.Limit > 0 {
			params.Set("limit", strconv.Itoa(filter.Limit))
		}
		if filter.Cursor != "" {
			params.Set("cursor", filter.Cursor)
		}
	}

	var resp struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets", params, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Markets, resp.Cursor, nil
}

// GetMarket fetches a single market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var resp struct {
		Market Market `json:"market"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Market, nil
}

// GetOrderbook fetches the resting orderbook for a market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*Orderbook, error) {
	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	path := "/markets/" + url.PathEscape(ticker) + "/orderbook"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	resp.Orderbook.Ticker = ticker
	resp.Orderbook.Timestamp = c.now()
	return &resp.Orderbook, nil
}

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("kalshi: order count must be positive, got %d", req.Count)
	}
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := "/portfolio/orders/" + url.PathEscape(orderID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// GetPositions fetches all portfolio positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"market_positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetBalance fetches the account cash balance.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var resp Balance
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do signs, sends, and decodes a request. path is relative to the
// trade API prefix. The signature covers the path without the query
// string, which is what the server verifies.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, reqBody, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	signPath := apiPrefix + path

	u := c.baseURL + signPath
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.signer != nil {
		headers, err := c.signer.Headers(method, signPath, c.now())
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the exchange.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi api error %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
