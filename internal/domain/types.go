// Package domain defines the unified data model shared by the broker
// adapters, the order gateway, and the HTTP API: orders, order results,
// account snapshots, positions, bars, and quotes, plus the error taxonomy
// every broker failure is normalized into.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether the side is one of the supported values.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// Valid reports whether the order type is one of the supported values.
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit || t == OrderTypeStop
}

// OrderStatus is the broker-reported state of an order. Statuses are never
// inferred locally; adapters map the broker's own state into one of these.
type OrderStatus string

const (
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Broker identifiers used for adapter dispatch.
const (
	BrokerStock  = "stock"
	BrokerCrypto = "crypto"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// UnifiedOrder is the client-facing order shape accepted by the gateway and
// translated by each adapter into its broker's wire protocol.
type UnifiedOrder struct {
	Symbol      string          `json:"symbol"`
	Qty         decimal.Decimal `json:"quantity"`
	Side        OrderSide       `json:"side"`
	Type        OrderType       `json:"orderType"`
	TimeInForce string          `json:"timeInForce,omitempty"`
	BrokerID    string          `json:"brokerId"`

	// ClientOrderID is an optional caller-supplied idempotency token. When
	// the broker protocol supports it, the adapter uses it to deduplicate
	// resubmissions after an ambiguous failure.
	ClientOrderID string `json:"clientOrderId,omitempty"`

	// LimitPrice is required for limit orders (and for every crypto order,
	// since the exchange only accepts limit orders).
	LimitPrice *decimal.Decimal `json:"limitPrice,omitempty"`
	// StopPrice is required for stop orders.
	StopPrice *decimal.Decimal `json:"stopPrice,omitempty"`
}

// OrderResult is the normalized outcome of an order operation. Raw carries
// the broker's own message for diagnostics.
type OrderResult struct {
	BrokerOrderID string          `json:"brokerOrderId"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filledQty"`
	AvgFillPrice  decimal.Decimal `json:"avgFillPrice"`
	Raw           string          `json:"raw,omitempty"`
}

// ---------------------------------------------------------------------------
// Account and market data
// ---------------------------------------------------------------------------

// AccountSnapshot is a point-in-time view of account financials. It is never
// mutated after construction.
type AccountSnapshot struct {
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buyingPower"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
	Equity         decimal.Decimal `json:"equity"`
}

// Position is an open holding. Positions are refreshed wholesale on each
// query; there is no incremental mutation.
type Position struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	UnrealizedPL  decimal.Decimal `json:"unrealizedPL"`
}

// Bar is a single OHLCV bar. Sequences of bars are ordered ascending by
// timestamp.
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
