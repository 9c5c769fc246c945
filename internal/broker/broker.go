// Package broker defines the capability set shared by every brokerage
// back end and provides the two concrete adapters: Alpaca for stocks and
// Gemini for crypto. Adapters translate the unified operations into each
// broker's wire protocol and normalize every failure into the domain error
// taxonomy before returning.
package broker

import (
	"context"

	"protrade/internal/domain"
)

// Broker is the capability set the gateway dispatches against. Adapters are
// stateless apart from references to the credential store and signer;
// results are normalized into the unified domain shapes.
type Broker interface {
	// Name returns the broker identifier (e.g. "stock", "crypto").
	Name() string

	// SupportsClientOrderID reports whether the broker can deduplicate
	// order submissions by a caller-supplied client order ID. Only brokers
	// that support it are eligible for place-order retries.
	SupportsClientOrderID() bool

	// GetAccount returns a point-in-time snapshot of account financials.
	GetAccount(ctx context.Context) (*domain.AccountSnapshot, error)

	// GetPositions returns all open positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetOrders returns recent orders in the unified result shape.
	GetOrders(ctx context.Context) ([]domain.OrderResult, error)

	// PlaceOrder submits an order for execution. The gateway validates the
	// order before calling; the adapter maps it onto the broker's order
	// model and returns the broker-reported result.
	PlaceOrder(ctx context.Context, order domain.UnifiedOrder) (*domain.OrderResult, error)

	// GetBars returns up to limit historical bars, ascending by timestamp.
	// The adapter drains any upstream pagination before returning.
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error)

	// GetQuote returns the latest trade/quote for a symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// OrderFinder is implemented by adapters that can look up an order by the
// caller-supplied client order ID. The gateway uses it to resolve an
// ambiguous placement outcome before resubmitting.
type OrderFinder interface {
	// FindOrderByClientID returns the order with the given client order ID,
	// or (nil, nil) when the broker has no record of it.
	FindOrderByClientID(ctx context.Context, clientOrderID string) (*domain.OrderResult, error)
}
