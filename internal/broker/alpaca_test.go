package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"protrade/internal/auth"
	"protrade/internal/domain"
)

// stubTrading implements alpacaTrading with canned responses and call
// counters.
type stubTrading struct {
	calls int

	account   *alpaca.Account
	positions []alpaca.Position
	orders    []alpaca.Order
	placed    *alpaca.Order
	lastPlace alpaca.PlaceOrderRequest
	byClient  *alpaca.Order
	err       error
}

func (s *stubTrading) GetAccount() (*alpaca.Account, error) {
	s.calls++
	return s.account, s.err
}

func (s *stubTrading) GetPositions() ([]alpaca.Position, error) {
	s.calls++
	return s.positions, s.err
}

func (s *stubTrading) GetOrders(_ alpaca.GetOrdersRequest) ([]alpaca.Order, error) {
	s.calls++
	return s.orders, s.err
}

func (s *stubTrading) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	s.calls++
	s.lastPlace = req
	return s.placed, s.err
}

func (s *stubTrading) GetOrderByClientOrderID(_ string) (*alpaca.Order, error) {
	s.calls++
	return s.byClient, s.err
}

// stubData implements alpacaData.
type stubData struct {
	calls    int
	bars     []marketdata.Bar
	lastBars marketdata.GetBarsRequest
	trade    *marketdata.Trade
	err      error
}

func (s *stubData) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	s.calls++
	s.lastBars = req
	return s.bars, s.err
}

func (s *stubData) GetLatestTrade(_ string, _ marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	s.calls++
	return s.trade, s.err
}

func stockStore() *auth.Store {
	return auth.NewStore(auth.NewCredential(domain.BrokerStock, "PKTEST", "stock-secret", "trading"))
}

func newStubbedAlpaca(trading *stubTrading, data *stubData) *AlpacaBroker {
	return &AlpacaBroker{creds: stockStore(), trading: trading, data: data}
}

func TestAlpacaGetAccountMapsFields(t *testing.T) {
	trading := &stubTrading{account: &alpaca.Account{
		Cash:           decimal.NewFromInt(1000),
		BuyingPower:    decimal.NewFromInt(4000),
		PortfolioValue: decimal.NewFromInt(5500),
		Equity:         decimal.NewFromInt(5500),
	}}
	b := newStubbedAlpaca(trading, &stubData{})

	snap, err := b.GetAccount(context.Background())
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if !snap.Cash.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Cash = %s, want 1000", snap.Cash)
	}
	if !snap.BuyingPower.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("BuyingPower = %s, want 4000", snap.BuyingPower)
	}
	if !snap.Equity.Equal(decimal.NewFromInt(5500)) {
		t.Errorf("Equity = %s, want 5500", snap.Equity)
	}
}

func TestAlpacaGetPositionsMapsFields(t *testing.T) {
	price := decimal.NewFromInt(190)
	pl := decimal.NewFromInt(150)
	trading := &stubTrading{positions: []alpaca.Position{{
		Symbol:        "AAPL",
		Qty:           decimal.NewFromInt(10),
		AvgEntryPrice: decimal.NewFromInt(175),
		CurrentPrice:  &price,
		UnrealizedPL:  &pl,
	}}}
	b := newStubbedAlpaca(trading, &stubData{})

	positions, err := b.GetPositions(context.Background())
	if err != nil {
		t.Fatalf("GetPositions returned error: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	if p.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", p.Symbol)
	}
	if !p.AvgEntryPrice.Equal(decimal.NewFromInt(175)) {
		t.Errorf("AvgEntryPrice = %s, want 175", p.AvgEntryPrice)
	}
	if !p.CurrentPrice.Equal(price) {
		t.Errorf("CurrentPrice = %s, want %s", p.CurrentPrice, price)
	}
	if !p.UnrealizedPL.Equal(pl) {
		t.Errorf("UnrealizedPL = %s, want %s", p.UnrealizedPL, pl)
	}
}

func TestAlpacaMissingCredentialSkipsNetwork(t *testing.T) {
	trading := &stubTrading{}
	b := &AlpacaBroker{creds: auth.NewStore(), trading: trading, data: &stubData{}}

	_, err := b.GetAccount(context.Background())
	if !domain.IsKind(err, domain.KindAuth) {
		t.Fatalf("error kind = %q, want %q", domain.KindOf(err), domain.KindAuth)
	}
	if trading.calls != 0 {
		t.Errorf("trading client called %d times, want 0", trading.calls)
	}
}

func TestAlpacaPlaceOrderDefaultsAndResult(t *testing.T) {
	trading := &stubTrading{placed: &alpaca.Order{
		ID:        "order-1",
		Symbol:    "AAPL",
		Side:      alpaca.Buy,
		Status:    "accepted",
		FilledQty: decimal.Zero,
	}}
	b := newStubbedAlpaca(trading, &stubData{})

	res, err := b.PlaceOrder(context.Background(), domain.UnifiedOrder{
		Symbol:        "AAPL",
		Qty:           decimal.NewFromInt(10),
		Side:          domain.OrderSideBuy,
		Type:          domain.OrderTypeMarket,
		BrokerID:      domain.BrokerStock,
		ClientOrderID: "dedupe-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if trading.lastPlace.TimeInForce != alpaca.GTC {
		t.Errorf("TimeInForce = %q, want %q (default)", trading.lastPlace.TimeInForce, alpaca.GTC)
	}
	if trading.lastPlace.Type != alpaca.Market {
		t.Errorf("Type = %q, want %q", trading.lastPlace.Type, alpaca.Market)
	}
	if trading.lastPlace.ClientOrderID != "dedupe-1" {
		t.Errorf("ClientOrderID = %q, want %q", trading.lastPlace.ClientOrderID, "dedupe-1")
	}
	if trading.lastPlace.Qty == nil || !trading.lastPlace.Qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Qty = %v, want 10", trading.lastPlace.Qty)
	}

	if res.Status != domain.OrderStatusAccepted {
		t.Errorf("Status = %q, want %q", res.Status, domain.OrderStatusAccepted)
	}
	if !res.FilledQty.IsZero() {
		t.Errorf("FilledQty = %s, want 0", res.FilledQty)
	}
	if res.BrokerOrderID != "order-1" {
		t.Errorf("BrokerOrderID = %q, want %q", res.BrokerOrderID, "order-1")
	}
}

func TestAlpacaStatusMapping(t *testing.T) {
	cases := []struct {
		broker string
		want   domain.OrderStatus
	}{
		{"new", domain.OrderStatusAccepted},
		{"accepted", domain.OrderStatusAccepted},
		{"pending_new", domain.OrderStatusAccepted},
		{"filled", domain.OrderStatusFilled},
		{"partially_filled", domain.OrderStatusPartiallyFilled},
		{"canceled", domain.OrderStatusCancelled},
		{"expired", domain.OrderStatusCancelled},
		{"rejected", domain.OrderStatusRejected},
	}
	for _, c := range cases {
		if got := alpacaStatus(c.broker); got != c.want {
			t.Errorf("alpacaStatus(%q) = %q, want %q", c.broker, got, c.want)
		}
	}
}

func TestAlpacaGetBarsAscending(t *testing.T) {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	var raw []marketdata.Bar
	for i := 0; i < 50; i++ {
		raw = append(raw, marketdata.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      100 + float64(i),
			Close:     101 + float64(i),
			Volume:    1000,
		})
	}
	data := &stubData{bars: raw}
	b := newStubbedAlpaca(&stubTrading{}, data)

	bars, err := b.GetBars(context.Background(), "AAPL", "1Day", 50)
	if err != nil {
		t.Fatalf("GetBars returned error: %v", err)
	}
	if len(bars) > 50 {
		t.Fatalf("len(bars) = %d, want <= 50", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("bars not strictly ascending at index %d", i)
		}
	}
	if data.lastBars.TotalLimit != 50 {
		t.Errorf("TotalLimit = %d, want 50", data.lastBars.TotalLimit)
	}
}

func TestAlpacaGetBarsRejectsUnknownTimeframe(t *testing.T) {
	data := &stubData{}
	b := newStubbedAlpaca(&stubTrading{}, data)

	_, err := b.GetBars(context.Background(), "AAPL", "7Lightyears", 10)
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("error kind = %q, want %q", domain.KindOf(err), domain.KindValidation)
	}
	if data.calls != 0 {
		t.Errorf("data client called %d times, want 0", data.calls)
	}
}

func TestAlpacaErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantKind  domain.ErrorKind
		retryable bool
	}{
		{"api 503", &alpaca.APIError{StatusCode: 503, Message: "unavailable"}, domain.KindUpstream, true},
		{"api 422", &alpaca.APIError{StatusCode: 422, Message: "invalid qty"}, domain.KindUpstream, false},
		{"api 401", &alpaca.APIError{StatusCode: 401, Message: "unauthorized"}, domain.KindAuth, false},
		{"transport", errors.New("dial tcp: connection refused"), domain.KindNetwork, true},
	}
	for _, c := range cases {
		got := classifyAlpaca(c.err)
		if domain.KindOf(got) != c.wantKind {
			t.Errorf("%s: kind = %q, want %q", c.name, domain.KindOf(got), c.wantKind)
		}
		if domain.Retryable(got) != c.retryable {
			t.Errorf("%s: Retryable = %v, want %v", c.name, domain.Retryable(got), c.retryable)
		}
	}
}

func TestAlpacaFindOrderByClientID(t *testing.T) {
	filledQty := decimal.NewFromInt(10)
	avg := decimal.NewFromFloat(189.5)
	trading := &stubTrading{byClient: &alpaca.Order{
		ID:             "order-9",
		Symbol:         "AAPL",
		Status:         "filled",
		FilledQty:      filledQty,
		FilledAvgPrice: &avg,
	}}
	b := newStubbedAlpaca(trading, &stubData{})

	res, err := b.FindOrderByClientID(context.Background(), "dedupe-9")
	if err != nil {
		t.Fatalf("FindOrderByClientID returned error: %v", err)
	}
	if res.Status != domain.OrderStatusFilled {
		t.Errorf("Status = %q, want filled", res.Status)
	}
	if !res.AvgFillPrice.Equal(avg) {
		t.Errorf("AvgFillPrice = %s, want %s", res.AvgFillPrice, avg)
	}

	// A 404 means the broker has no record: not an error, just absent.
	trading.byClient = nil
	trading.err = &alpaca.APIError{StatusCode: 404, Message: "order not found"}
	res, err = b.FindOrderByClientID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindOrderByClientID(missing) returned error: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil for unknown client order ID", res)
	}
}
