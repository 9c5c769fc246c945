// Package protrade provides a Go client for the gateway's REST API. The
// types here mirror the server's JSON wire format so the package stays
// importable outside this module.
package protrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Broker identifiers accepted by the gateway.
const (
	BrokerStock  = "stock"
	BrokerCrypto = "crypto"
)

// Order is a unified order request.
type Order struct {
	Symbol        string           `json:"symbol"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Side          string           `json:"side"`
	OrderType     string           `json:"orderType"`
	TimeInForce   string           `json:"timeInForce,omitempty"`
	BrokerID      string           `json:"brokerId"`
	ClientOrderID string           `json:"clientOrderId,omitempty"`
	LimitPrice    *decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice     *decimal.Decimal `json:"stopPrice,omitempty"`
}

// OrderResult is the normalized outcome of an order operation.
type OrderResult struct {
	BrokerOrderID string          `json:"brokerOrderId"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Status        string          `json:"status"`
	FilledQty     decimal.Decimal `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	Raw           string          `json:"raw,omitempty"`
}

// AccountSnapshot is a point-in-time view of account financials.
type AccountSnapshot struct {
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buyingPower"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
	Equity         decimal.Decimal `json:"equity"`
}

// Position is an open holding.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPL  decimal.Decimal `json:"unrealizedPL"`
}

// Bar is a single OHLCV bar.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Quote is the latest trade or quote for a symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BarsResponse holds historical bars for one symbol.
type BarsResponse struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bars      []Bar  `json:"bars"`
}

// BrokerStatus reports whether a broker has credentials configured.
type BrokerStatus struct {
	Configured bool `json:"configured"`
}

// StatusResponse maps broker IDs to their configuration state.
type StatusResponse struct {
	Brokers map[string]BrokerStatus `json:"brokers"`
}

// Portfolio is the combined account and positions view. Each part carries
// its own error when the underlying query failed.
type Portfolio struct {
	Account        *AccountSnapshot `json:"account,omitempty"`
	AccountError   *ErrorBody       `json:"accountError,omitempty"`
	Positions      []Position       `json:"positions,omitempty"`
	PositionsError *ErrorBody       `json:"positionsError,omitempty"`
}

// JournalEntry is one recorded placement attempt.
type JournalEntry struct {
	ID            string    `json:"id"`
	BrokerID      string    `json:"brokerId"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	OrderType     string    `json:"orderType"`
	Quantity      string    `json:"quantity"`
	ClientOrderID string    `json:"clientOrderId,omitempty"`
	BrokerOrderID string    `json:"brokerOrderId,omitempty"`
	Status        string    `json:"status,omitempty"`
	ErrorKind     string    `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type journalResponse struct {
	Entries []JournalEntry `json:"entries"`
}

// ErrorBody is the gateway's uniform error payload.
type ErrorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	BrokerID string `json:"brokerId,omitempty"`
	Op       string `json:"op,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// APIError is a non-2xx response decoded into the gateway's error payload.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	BrokerID   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s (%s, HTTP %d)", e.Message, e.Kind, e.StatusCode)
}

// Client talks to a running gateway server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a gateway API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.get(ctx, "/health", nil, &resp)
}

// Status reports which brokers have credentials configured.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.get(ctx, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccount retrieves the account snapshot for a broker.
func (c *Client) GetAccount(ctx context.Context, broker string) (*AccountSnapshot, error) {
	var snap AccountSnapshot
	if err := c.get(ctx, "/account", url.Values{"broker": {broker}}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetPositions retrieves open positions for a broker.
func (c *Client) GetPositions(ctx context.Context, broker string) ([]Position, error) {
	var positions []Position
	if err := c.get(ctx, "/positions", url.Values{"broker": {broker}}, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetPortfolio retrieves the combined account and positions view.
func (c *Client) GetPortfolio(ctx context.Context, broker string) (*Portfolio, error) {
	var p Portfolio
	if err := c.get(ctx, "/portfolio", url.Values{"broker": {broker}}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrders retrieves recent orders for a broker.
func (c *Client) GetOrders(ctx context.Context, broker string) ([]OrderResult, error) {
	var orders []OrderResult
	if err := c.get(ctx, "/orders", url.Values{"broker": {broker}}, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PlaceOrder submits a unified order.
func (c *Client) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshalling order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res OrderResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBars retrieves historical bars for a symbol, ascending by timestamp.
func (c *Client) GetBars(ctx context.Context, broker, symbol, timeframe string, limit int) (*BarsResponse, error) {
	q := url.Values{"broker": {broker}}
	if timeframe != "" {
		q.Set("timeframe", timeframe)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp BarsResponse
	if err := c.get(ctx, "/bars/"+url.PathEscape(symbol), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQuote retrieves the latest quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, broker, symbol string) (*Quote, error) {
	var quote Quote
	if err := c.get(ctx, "/quote/"+url.PathEscape(symbol), url.Values{"broker": {broker}}, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// GetJournal retrieves recorded placement attempts, newest first.
func (c *Client) GetJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {fmt.Sprint(limit)}}
	}
	var resp journalResponse
	if err := c.get(ctx, "/orders/journal", q, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, query url.Values, into any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, into)
}

func (c *Client) do(req *http.Request, into any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Kind:       "unknown",
			Message:    string(body),
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Kind:       payload.Error.Kind,
		Message:    payload.Error.Message,
		BrokerID:   payload.Error.BrokerID,
	}
}
