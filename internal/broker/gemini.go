package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"protrade/internal/auth"
	"protrade/internal/domain"
	"protrade/internal/util"
)

// Gemini REST endpoints used by the adapter. Private endpoints are POSTed
// with an empty body; the request payload travels base64-encoded in the
// signed header envelope.
const (
	geminiBalancesEndpoint = "/v1/balances"
	geminiOrdersEndpoint   = "/v1/orders"
	geminiNewOrderEndpoint = "/v1/order/new"
)

// Compile-time interface check.
var _ Broker = (*GeminiBroker)(nil)

// GeminiBroker implements the Broker capability set against the Gemini
// crypto exchange. Every private endpoint goes through the signing engine;
// the public ticker and candle endpoints are unauthenticated and
// rate-limited client-side.
type GeminiBroker struct {
	creds      *auth.Store
	signer     *auth.Signer
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
}

// NewGeminiBroker creates a GeminiBroker. Credentials are looked up lazily
// per call, so missing keys surface as auth errors at first use.
func NewGeminiBroker(creds *auth.Store, signer *auth.Signer, baseURL string) *GeminiBroker {
	return &GeminiBroker{
		creds:      creds,
		signer:     signer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// Public API allowance is 120 requests/minute, metered in
		// 5-request bursts.
		limiter: util.NewRateLimiter(120, 5),
	}
}

// Name returns the crypto broker identifier.
func (b *GeminiBroker) Name() string { return domain.BrokerCrypto }

// SupportsClientOrderID returns false: the exchange echoes a client order
// ID but does not deduplicate on it, so place-order retries are unsafe.
func (b *GeminiBroker) SupportsClientOrderID() bool { return false }

// GetAccount derives the account snapshot from the USD balance. The
// exchange reports per-currency balances without portfolio valuation, so
// cash and buying power are the available USD and equity mirrors the USD
// total.
func (b *GeminiBroker) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	balances, err := b.fetchBalances(ctx)
	if err != nil {
		return nil, err
	}
	snap := &domain.AccountSnapshot{}
	for _, bal := range balances {
		if !strings.EqualFold(bal.Currency, "USD") {
			continue
		}
		snap.Cash = parseDecimal(bal.Amount)
		snap.BuyingPower = parseDecimal(bal.Available)
		snap.PortfolioValue = snap.Cash
		snap.Equity = snap.Cash
	}
	return snap, nil
}

// GetPositions maps non-USD balances onto positions. The exchange keeps no
// cost basis, so entry price and unrealized P&L stay zero; the current
// price is filled in from the public ticker on a best-effort basis.
func (b *GeminiBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	balances, err := b.fetchBalances(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(balances))
	for _, bal := range balances {
		if strings.EqualFold(bal.Currency, "USD") {
			continue
		}
		qty := parseDecimal(bal.Amount)
		if qty.IsZero() {
			continue
		}
		pos := domain.Position{
			Symbol: strings.ToLower(bal.Currency) + "usd",
			Qty:    qty,
		}
		if quote, qerr := b.GetQuote(ctx, pos.Symbol); qerr == nil {
			pos.CurrentPrice = quote.Price
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetOrders returns the active orders.
func (b *GeminiBroker) GetOrders(ctx context.Context) ([]domain.OrderResult, error) {
	body, err := b.private(ctx, geminiOrdersEndpoint, nil)
	if err != nil {
		return nil, err
	}
	var raw []geminiOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, domain.BrokerCrypto, fmt.Errorf("decoding orders: %w", err))
	}
	orders := make([]domain.OrderResult, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, o.result())
	}
	return orders, nil
}

// PlaceOrder submits an exchange-limit order. Price and amount are
// transmitted as decimal strings, never binary floats, to match the
// exchange's fixed-point accounting.
func (b *GeminiBroker) PlaceOrder(ctx context.Context, order domain.UnifiedOrder) (*domain.OrderResult, error) {
	if order.Type != domain.OrderTypeLimit {
		return nil, domain.Errf(domain.KindValidation, domain.BrokerCrypto,
			"crypto exchange supports limit orders only, got %q", order.Type)
	}
	if order.LimitPrice == nil || !order.LimitPrice.IsPositive() {
		return nil, domain.Errf(domain.KindValidation, domain.BrokerCrypto,
			"limit price required for crypto orders")
	}

	payload := map[string]any{
		"symbol": strings.ToLower(order.Symbol),
		"amount": order.Qty.String(),
		"price":  order.LimitPrice.String(),
		"side":   string(order.Side),
		"type":   "exchange limit",
	}
	if order.ClientOrderID != "" {
		payload["client_order_id"] = order.ClientOrderID
	}

	body, err := b.private(ctx, geminiNewOrderEndpoint, payload)
	if err != nil {
		return nil, err
	}
	var placed geminiOrder
	if err := json.Unmarshal(body, &placed); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, domain.BrokerCrypto, fmt.Errorf("decoding order: %w", err))
	}
	res := placed.result()
	res.Raw = string(body)
	return &res, nil
}

// GetBars fetches candles from the public v2 endpoint. The exchange returns
// newest-first; the result is the most recent limit bars, ascending.
func (b *GeminiBroker) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	tf, err := geminiTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	body, err := b.public(ctx, "/v2/candles/"+strings.ToLower(symbol)+"/"+tf)
	if err != nil {
		return nil, err
	}

	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, domain.BrokerCrypto, fmt.Errorf("decoding candles: %w", err))
	}
	bars := make([]domain.Bar, 0, len(raw))
	for _, c := range raw {
		if len(c) < 6 {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.UnixMilli(int64(c[0])).UTC(),
			Open:      c[1],
			High:      c[2],
			Low:       c[3],
			Close:     c[4],
			Volume:    c[5],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// GetQuote returns the public ticker for the symbol. The ticker's volume
// object is keyed by currency names, so the fields are probed with gjson
// rather than a fixed struct.
func (b *GeminiBroker) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	body, err := b.public(ctx, "/v1/pubticker/"+strings.ToLower(symbol))
	if err != nil {
		return nil, err
	}
	quote := &domain.Quote{
		Symbol: strings.ToLower(symbol),
		Price:  parseDecimal(gjson.GetBytes(body, "last").String()),
	}
	if ts := gjson.GetBytes(body, "volume.timestamp"); ts.Exists() {
		quote.Timestamp = time.UnixMilli(ts.Int()).UTC()
	}
	return quote, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// private POSTs to a signed endpoint. Credential lookup, nonce acquisition,
// and signing happen before the network call; the critical section never
// spans the request itself.
func (b *GeminiBroker) private(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	cred, err := b.creds.Lookup(domain.BrokerCrypto)
	if err != nil {
		return nil, err
	}
	signed, err := b.signer.Sign(endpoint, payload, cred)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+endpoint, nil)
	if err != nil {
		return nil, domain.WrapErr(domain.KindValidation, domain.BrokerCrypto, err)
	}
	req.Header = signed.Headers()
	return b.do(req)
}

// public GETs an unauthenticated endpoint through the client-side rate
// limiter.
func (b *GeminiBroker) public(ctx context.Context, path string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, domain.WrapErr(domain.KindNetwork, domain.BrokerCrypto, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, domain.WrapErr(domain.KindValidation, domain.BrokerCrypto, err)
	}
	return b.do(req)
}

func (b *GeminiBroker) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapErr(domain.KindNetwork, domain.BrokerCrypto, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapErr(domain.KindNetwork, domain.BrokerCrypto, err)
	}
	if resp.StatusCode >= 400 {
		return nil, classifyGemini(resp.StatusCode, body)
	}
	return body, nil
}

// classifyGemini maps an exchange error payload ({"result":"error",
// "reason":..., "message":...}) into the taxonomy, preserving the broker's
// own message.
func classifyGemini(status int, body []byte) error {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if reason := gjson.GetBytes(body, "reason").String(); reason != "" {
		message = reason + ": " + message
	}

	kind := domain.KindUpstream
	if status == 401 || status == 403 {
		kind = domain.KindAuth
	}
	return &domain.Error{
		Kind:           kind,
		Message:        message,
		BrokerID:       domain.BrokerCrypto,
		UpstreamStatus: status,
	}
}

// ---------------------------------------------------------------------------
// Wire shapes and mapping
// ---------------------------------------------------------------------------

type geminiBalance struct {
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Available string `json:"available"`
}

func (b *GeminiBroker) fetchBalances(ctx context.Context) ([]geminiBalance, error) {
	body, err := b.private(ctx, geminiBalancesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	var balances []geminiBalance
	if err := json.Unmarshal(body, &balances); err != nil {
		return nil, domain.WrapErr(domain.KindUpstream, domain.BrokerCrypto, fmt.Errorf("decoding balances: %w", err))
	}
	return balances, nil
}

type geminiOrder struct {
	OrderID           string `json:"order_id"`
	ClientOrderID     string `json:"client_order_id"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	AvgExecutionPrice string `json:"avg_execution_price"`
	ExecutedAmount    string `json:"executed_amount"`
	OriginalAmount    string `json:"original_amount"`
	IsLive            bool   `json:"is_live"`
	IsCancelled       bool   `json:"is_cancelled"`
}

// result normalizes the exchange's order state into the unified shape. The
// status is derived purely from broker-reported fields.
func (o geminiOrder) result() domain.OrderResult {
	executed := parseDecimal(o.ExecutedAmount)
	original := parseDecimal(o.OriginalAmount)

	var status domain.OrderStatus
	switch {
	case o.IsCancelled:
		status = domain.OrderStatusCancelled
	case original.IsPositive() && executed.Equal(original):
		status = domain.OrderStatusFilled
	case executed.IsPositive():
		status = domain.OrderStatusPartiallyFilled
	case o.IsLive:
		status = domain.OrderStatusAccepted
	default:
		status = domain.OrderStatusRejected
	}

	return domain.OrderResult{
		BrokerOrderID: o.OrderID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Status:        status,
		FilledQty:     executed,
		AvgFillPrice:  parseDecimal(o.AvgExecutionPrice),
	}
}

// parseDecimal parses the exchange's decimal strings, treating empty or
// malformed values as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// geminiTimeframe maps the unified timeframe strings onto the exchange's
// candle granularity path segments.
func geminiTimeframe(timeframe string) (string, error) {
	switch strings.ToLower(timeframe) {
	case "", "1day", "day":
		return "1day", nil
	case "1min", "1m", "min":
		return "1m", nil
	case "5min", "5m":
		return "5m", nil
	case "15min", "15m":
		return "15m", nil
	case "30min", "30m":
		return "30m", nil
	case "1hour", "1hr", "hour":
		return "1hr", nil
	case "6hour", "6hr":
		return "6hr", nil
	default:
		return "", domain.Errf(domain.KindValidation, domain.BrokerCrypto, "unsupported timeframe %q", timeframe)
	}
}
