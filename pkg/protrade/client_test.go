package protrade

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := NewClient(srv.URL).Health(context.Background()); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
}

func TestGetAccountPassesBrokerParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("broker"); got != "stock" {
			t.Errorf("broker param = %q, want stock", got)
		}
		w.Write([]byte(`{"cash":"1000","buyingPower":"4000","portfolioValue":"5500","equity":"5500"}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL).GetAccount(context.Background(), BrokerStock)
	if err != nil {
		t.Fatalf("GetAccount returned error: %v", err)
	}
	if snap.Cash.String() != "1000" {
		t.Errorf("Cash = %s, want 1000", snap.Cash)
	}
}

func TestPlaceOrderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"brokerOrderId":"order-1","symbol":"AAPL","status":"accepted","filledQty":"0"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).PlaceOrder(context.Background(), Order{
		Symbol:    "AAPL",
		Quantity:  decimal.NewFromInt(10),
		Side:      "buy",
		OrderType: "market",
		BrokerID:  BrokerStock,
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if res.BrokerOrderID != "order-1" {
		t.Errorf("BrokerOrderID = %q, want order-1", res.BrokerOrderID)
	}
	if res.Status != "accepted" {
		t.Errorf("Status = %q, want accepted", res.Status)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"kind":"ambiguous_outcome","message":"order outcome unconfirmed","brokerId":"stock"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetOrders(context.Background(), BrokerStock)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Kind != "ambiguous_outcome" {
		t.Errorf("Kind = %q, want ambiguous_outcome", apiErr.Kind)
	}
	if apiErr.BrokerID != "stock" {
		t.Errorf("BrokerID = %q, want stock", apiErr.BrokerID)
	}
}

func TestAPIErrorUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetOrders(context.Background(), BrokerStock)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Kind != "unknown" {
		t.Errorf("Kind = %q, want unknown", apiErr.Kind)
	}
	if apiErr.Message != "upstream exploded" {
		t.Errorf("Message = %q, want raw body", apiErr.Message)
	}
}

func TestGetBarsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bars/AAPL" {
			t.Errorf("path = %s, want /bars/AAPL", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("timeframe") != "1Hour" || q.Get("limit") != "10" {
			t.Errorf("query = %v, want timeframe=1Hour limit=10", q)
		}
		w.Write([]byte(`{"symbol":"AAPL","timeframe":"1Hour","bars":[]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).GetBars(context.Background(), BrokerStock, "AAPL", "1Hour", 10)
	if err != nil {
		t.Fatalf("GetBars returned error: %v", err)
	}
	if resp.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", resp.Symbol)
	}
}

func TestGetPortfolioPartialErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"account":{"cash":"1000","buyingPower":"4000","portfolioValue":"5500","equity":"5500"},
			"positionsError":{"kind":"upstream_error","message":"positions endpoint down"}
		}`))
	}))
	defer srv.Close()

	p, err := NewClient(srv.URL).GetPortfolio(context.Background(), BrokerStock)
	if err != nil {
		t.Fatalf("GetPortfolio returned error: %v", err)
	}
	if p.Account == nil || p.Account.Cash.String() != "1000" {
		t.Errorf("Account = %+v, want cash 1000", p.Account)
	}
	if p.PositionsError == nil || p.PositionsError.Kind != "upstream_error" {
		t.Errorf("PositionsError = %+v, want upstream_error", p.PositionsError)
	}
}
