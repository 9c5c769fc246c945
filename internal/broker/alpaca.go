package broker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"protrade/internal/auth"
	"protrade/internal/domain"
)

// Compile-time interface checks.
var _ Broker = (*AlpacaBroker)(nil)
var _ OrderFinder = (*AlpacaBroker)(nil)
var _ alpacaTrading = (*alpaca.Client)(nil)
var _ alpacaData = (*marketdata.Client)(nil)

// alpacaTrading is the slice of the Alpaca trading client the adapter uses.
// Narrowing to an interface keeps the adapter testable with stubs.
type alpacaTrading interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrderByClientOrderID(clientOrderID string) (*alpaca.Order, error)
}

// alpacaData is the slice of the Alpaca market-data client the adapter uses.
type alpacaData interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaBroker implements the Broker capability set against the Alpaca
// brokerage API. Authentication is static API-key headers handled by the
// SDK; no request signing or nonces are involved.
type AlpacaBroker struct {
	creds   *auth.Store
	trading alpacaTrading
	data    alpacaData
}

// NewAlpacaBroker creates an AlpacaBroker from the credential store and the
// configured endpoints. Credentials are looked up lazily on each call, so a
// missing key is reported as an auth error at first use rather than at
// startup.
func NewAlpacaBroker(creds *auth.Store, apiKey, apiSecret, baseURL, dataURL string) *AlpacaBroker {
	return &AlpacaBroker{
		creds: creds,
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   dataURL,
		}),
	}
}

// Name returns the stock broker identifier.
func (b *AlpacaBroker) Name() string { return domain.BrokerStock }

// SupportsClientOrderID returns true: Alpaca enforces client order ID
// uniqueness and supports lookup by it.
func (b *AlpacaBroker) SupportsClientOrderID() bool { return true }

// GetAccount returns the account snapshot.
func (b *AlpacaBroker) GetAccount(_ context.Context) (*domain.AccountSnapshot, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	acct, err := b.trading.GetAccount()
	if err != nil {
		return nil, classifyAlpaca(err)
	}
	return &domain.AccountSnapshot{
		Cash:           acct.Cash,
		BuyingPower:    acct.BuyingPower,
		PortfolioValue: acct.PortfolioValue,
		Equity:         acct.Equity,
	}, nil
}

// GetPositions returns all open positions, refreshed wholesale.
func (b *AlpacaBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	raw, err := b.trading.GetPositions()
	if err != nil {
		return nil, classifyAlpaca(err)
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		pos := domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
		}
		if p.CurrentPrice != nil {
			pos.CurrentPrice = *p.CurrentPrice
		}
		if p.UnrealizedPL != nil {
			pos.UnrealizedPL = *p.UnrealizedPL
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetOrders returns the 50 most recent orders across all statuses.
func (b *AlpacaBroker) GetOrders(_ context.Context) ([]domain.OrderResult, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	raw, err := b.trading.GetOrders(alpaca.GetOrdersRequest{Status: "all", Limit: 50})
	if err != nil {
		return nil, classifyAlpaca(err)
	}
	orders := make([]domain.OrderResult, 0, len(raw))
	for i := range raw {
		orders = append(orders, alpacaOrderResult(&raw[i]))
	}
	return orders, nil
}

// PlaceOrder submits the order to Alpaca. Market, limit, and stop types are
// supported; time in force defaults to gtc.
func (b *AlpacaBroker) PlaceOrder(_ context.Context, order domain.UnifiedOrder) (*domain.OrderResult, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}

	tif := alpaca.GTC
	if order.TimeInForce != "" {
		tif = alpaca.TimeInForce(order.TimeInForce)
	}
	qty := order.Qty
	req := alpaca.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(order.Side),
		Type:          alpaca.OrderType(order.Type),
		TimeInForce:   tif,
		LimitPrice:    order.LimitPrice,
		StopPrice:     order.StopPrice,
		ClientOrderID: order.ClientOrderID,
	}

	placed, err := b.trading.PlaceOrder(req)
	if err != nil {
		return nil, classifyAlpaca(err)
	}
	res := alpacaOrderResult(placed)
	return &res, nil
}

// FindOrderByClientID looks up an order by its client order ID. A 404 from
// the broker means no record exists and returns (nil, nil).
func (b *AlpacaBroker) FindOrderByClientID(_ context.Context, clientOrderID string) (*domain.OrderResult, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	found, err := b.trading.GetOrderByClientOrderID(clientOrderID)
	if err != nil {
		classified := classifyAlpaca(err)
		if e := domain.AsError(classified); e != nil && e.UpstreamStatus == 404 {
			return nil, nil
		}
		return nil, classified
	}
	res := alpacaOrderResult(found)
	return &res, nil
}

// GetBars fetches up to limit bars for the symbol. The SDK walks the
// upstream page tokens until the stream is exhausted, so the returned slice
// is the fully drained sequence; it is sorted ascending by timestamp before
// returning.
func (b *AlpacaBroker) GetBars(_ context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	tf, err := parseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	raw, err := b.data.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      barLookbackStart(tf, limit),
		TotalLimit: limit,
		Sort:       marketdata.SortAsc,
	})
	if err != nil {
		return nil, classifyAlpaca(err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, bar := range raw {
		bars = append(bars, domain.Bar{
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    float64(bar.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// GetQuote returns the latest trade for the symbol.
func (b *AlpacaBroker) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	if _, err := b.creds.Lookup(domain.BrokerStock); err != nil {
		return nil, err
	}
	trade, err := b.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, classifyAlpaca(err)
	}
	return &domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(trade.Price),
		Size:      decimal.NewFromInt(int64(trade.Size)),
		Timestamp: trade.Timestamp,
	}, nil
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

// alpacaOrderResult normalizes an Alpaca order into the unified result
// shape. The broker's own status string is preserved in Raw.
func alpacaOrderResult(o *alpaca.Order) domain.OrderResult {
	res := domain.OrderResult{
		BrokerOrderID: o.ID,
		Symbol:        o.Symbol,
		Side:          domain.OrderSide(o.Side),
		Status:        alpacaStatus(o.Status),
		FilledQty:     o.FilledQty,
		Raw:           o.Status,
	}
	if o.FilledAvgPrice != nil {
		res.AvgFillPrice = *o.FilledAvgPrice
	}
	return res
}

// alpacaStatus maps Alpaca's order lifecycle states onto the unified set.
func alpacaStatus(status string) domain.OrderStatus {
	switch status {
	case "filled":
		return domain.OrderStatusFilled
	case "partially_filled":
		return domain.OrderStatusPartiallyFilled
	case "canceled", "expired", "done_for_day":
		return domain.OrderStatusCancelled
	case "rejected", "stopped", "suspended":
		return domain.OrderStatusRejected
	default:
		// new, accepted, pending_new, pending_cancel, calculated, held...
		return domain.OrderStatusAccepted
	}
}

// parseTimeframe converts the API's timeframe strings ("1Min", "15Min",
// "1Hour", "1Day", ...) into SDK timeframes.
func parseTimeframe(timeframe string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(timeframe) {
	case "", "1day", "day":
		return marketdata.OneDay, nil
	case "1min", "min":
		return marketdata.OneMin, nil
	case "5min":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15min":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30min":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1hour", "hour":
		return marketdata.OneHour, nil
	case "1week", "week":
		return marketdata.OneWeek, nil
	case "1month", "month":
		return marketdata.OneMonth, nil
	default:
		return marketdata.TimeFrame{}, domain.Errf(domain.KindValidation, domain.BrokerStock, "unsupported timeframe %q", timeframe)
	}
}

// barLookbackStart computes a window start generous enough to cover limit
// bars of the given timeframe, including weekends and holidays.
func barLookbackStart(tf marketdata.TimeFrame, limit int) time.Time {
	if limit <= 0 {
		limit = 100
	}
	var per time.Duration
	switch tf.Unit {
	case marketdata.Min:
		per = time.Duration(tf.N) * time.Minute
	case marketdata.Hour:
		per = time.Duration(tf.N) * time.Hour
	case marketdata.Week:
		per = time.Duration(tf.N) * 7 * 24 * time.Hour
	case marketdata.Month:
		per = time.Duration(tf.N) * 31 * 24 * time.Hour
	default:
		per = time.Duration(tf.N) * 24 * time.Hour
	}
	// Triple the nominal span to absorb non-trading days.
	return time.Now().Add(-3 * time.Duration(limit) * per)
}

// classifyAlpaca maps SDK errors into the taxonomy: structured API errors
// become auth (401/403) or upstream errors with the broker message
// preserved; anything else is a transport-level network error. Both the
// trading and market-data clients surface *alpaca.APIError.
func classifyAlpaca(err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return alpacaAPIError(apiErr.StatusCode, apiErr.Message, err)
	}
	return domain.WrapErr(domain.KindNetwork, domain.BrokerStock, err)
}

func alpacaAPIError(status int, message string, cause error) error {
	kind := domain.KindUpstream
	if status == 401 || status == 403 {
		kind = domain.KindAuth
	}
	return &domain.Error{
		Kind:           kind,
		Message:        message,
		BrokerID:       domain.BrokerStock,
		UpstreamStatus: status,
		Err:            cause,
	}
}
