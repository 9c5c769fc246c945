// Package gateway is the public façade over the broker adapters: it
// validates caller input, dispatches by broker ID, retries idempotent
// reads, and guards order placement against duplicate submission.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"protrade/internal/broker"
	"protrade/internal/domain"
)

// OrderRecorder receives every order placement outcome for the audit
// journal. Recording is best effort; a recorder failure never fails the
// placement itself.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order domain.UnifiedOrder, result *domain.OrderResult, callErr error) error
}

// Gateway routes unified operations to the adapter registered for each
// broker ID and normalizes what comes back. It holds no per-request state.
type Gateway struct {
	brokers  map[string]broker.Broker
	retry    RetryPolicy
	recorder OrderRecorder
	log      *slog.Logger
}

// New creates a Gateway over the given adapters. recorder may be nil.
func New(log *slog.Logger, retry RetryPolicy, recorder OrderRecorder, brokers ...broker.Broker) *Gateway {
	m := make(map[string]broker.Broker, len(brokers))
	for _, b := range brokers {
		m[b.Name()] = b
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{brokers: m, retry: retry, recorder: recorder, log: log}
}

// Brokers returns the registered broker IDs.
func (g *Gateway) Brokers() []string {
	ids := make([]string, 0, len(g.brokers))
	for id := range g.brokers {
		ids = append(ids, id)
	}
	return ids
}

// ---------------------------------------------------------------------------
// Reads (idempotent, retried)
// ---------------------------------------------------------------------------

// GetAccount returns the account snapshot for a broker.
func (g *Gateway) GetAccount(ctx context.Context, brokerID string) (*domain.AccountSnapshot, error) {
	b, err := g.adapter(brokerID)
	if err != nil {
		return nil, err
	}
	var snap *domain.AccountSnapshot
	err = g.retry.Do(ctx, func() error {
		var e error
		snap, e = b.GetAccount(ctx)
		return e
	})
	if err != nil {
		return nil, g.fail("getAccount", brokerID, err)
	}
	return snap, nil
}

// GetPositions returns all open positions for a broker.
func (g *Gateway) GetPositions(ctx context.Context, brokerID string) ([]domain.Position, error) {
	b, err := g.adapter(brokerID)
	if err != nil {
		return nil, err
	}
	var positions []domain.Position
	err = g.retry.Do(ctx, func() error {
		var e error
		positions, e = b.GetPositions(ctx)
		return e
	})
	if err != nil {
		return nil, g.fail("getPositions", brokerID, err)
	}
	return positions, nil
}

// GetOrders returns recent orders for a broker.
func (g *Gateway) GetOrders(ctx context.Context, brokerID string) ([]domain.OrderResult, error) {
	b, err := g.adapter(brokerID)
	if err != nil {
		return nil, err
	}
	var orders []domain.OrderResult
	err = g.retry.Do(ctx, func() error {
		var e error
		orders, e = b.GetOrders(ctx)
		return e
	})
	if err != nil {
		return nil, g.fail("getOrders", brokerID, err)
	}
	return orders, nil
}

// GetBars returns up to limit historical bars, ascending by timestamp.
// limit defaults to 100.
func (g *Gateway) GetBars(ctx context.Context, brokerID, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	b, err := g.adapter(brokerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(symbol) == "" {
		return nil, domain.Errf(domain.KindValidation, brokerID, "symbol required")
	}
	if limit <= 0 {
		limit = 100
	}
	var bars []domain.Bar
	err = g.retry.Do(ctx, func() error {
		var e error
		bars, e = b.GetBars(ctx, symbol, timeframe, limit)
		return e
	})
	if err != nil {
		return nil, g.fail("getBars", brokerID, err)
	}
	return bars, nil
}

// GetQuote returns the latest trade/quote for a symbol.
func (g *Gateway) GetQuote(ctx context.Context, brokerID, symbol string) (*domain.Quote, error) {
	b, err := g.adapter(brokerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(symbol) == "" {
		return nil, domain.Errf(domain.KindValidation, brokerID, "symbol required")
	}
	var quote *domain.Quote
	err = g.retry.Do(ctx, func() error {
		var e error
		quote, e = b.GetQuote(ctx, symbol)
		return e
	})
	if err != nil {
		return nil, g.fail("getQuote", brokerID, err)
	}
	return quote, nil
}

// Portfolio combines the account snapshot and positions for one broker.
// The two queries run concurrently and fail independently: one failing
// never blanks the other.
type Portfolio struct {
	Account        *domain.AccountSnapshot `json:"account,omitempty"`
	AccountError   *domain.Error           `json:"accountError,omitempty"`
	Positions      []domain.Position       `json:"positions,omitempty"`
	PositionsError *domain.Error           `json:"positionsError,omitempty"`
}

// GetPortfolio fans out the account and position queries for a broker.
func (g *Gateway) GetPortfolio(ctx context.Context, brokerID string) (*Portfolio, error) {
	if _, err := g.adapter(brokerID); err != nil {
		return nil, err
	}

	p := &Portfolio{}
	var eg errgroup.Group
	eg.Go(func() error {
		snap, err := g.GetAccount(ctx, brokerID)
		if err != nil {
			p.AccountError = domain.AsError(err)
		} else {
			p.Account = snap
		}
		return nil
	})
	eg.Go(func() error {
		positions, err := g.GetPositions(ctx, brokerID)
		if err != nil {
			p.PositionsError = domain.AsError(err)
		} else {
			p.Positions = positions
		}
		return nil
	})
	_ = eg.Wait() // goroutines report through the Portfolio fields
	return p, nil
}

// ---------------------------------------------------------------------------
// Order placement (not idempotent)
// ---------------------------------------------------------------------------

// PlaceOrder validates the order and submits it through the broker's
// adapter. Retries are disabled unless the caller supplied a client order
// ID and the broker can deduplicate on it; otherwise a transport failure
// with unknown broker-side outcome surfaces as an ambiguous-outcome error,
// distinct from a clean rejection.
func (g *Gateway) PlaceOrder(ctx context.Context, order domain.UnifiedOrder) (*domain.OrderResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	b, err := g.adapter(order.BrokerID)
	if err != nil {
		return nil, err
	}

	res, err := b.PlaceOrder(ctx, order)
	if err != nil && domain.IsKind(err, domain.KindNetwork) {
		// The request may or may not have reached the broker.
		if order.ClientOrderID != "" && b.SupportsClientOrderID() {
			res, err = g.resolveAmbiguousPlacement(ctx, b, order, err)
		} else {
			err = ambiguous(order.BrokerID, err)
		}
	}

	g.record(ctx, order, res, err)
	if err != nil {
		return nil, g.fail("placeOrder", order.BrokerID, err)
	}
	g.log.Info("order placed",
		"broker", order.BrokerID,
		"symbol", order.Symbol,
		"side", order.Side,
		"status", res.Status,
		"brokerOrderId", res.BrokerOrderID)
	return res, nil
}

// resolveAmbiguousPlacement queries the broker by client order ID after a
// transport failure. If the order is found it did reach the broker; if it
// is confirmed absent, exactly one resubmission is made. Anything that
// cannot be confirmed stays ambiguous.
func (g *Gateway) resolveAmbiguousPlacement(ctx context.Context, b broker.Broker, order domain.UnifiedOrder, cause error) (*domain.OrderResult, error) {
	finder, ok := b.(broker.OrderFinder)
	if !ok {
		return nil, ambiguous(order.BrokerID, cause)
	}

	found, err := finder.FindOrderByClientID(ctx, order.ClientOrderID)
	if err != nil {
		return nil, ambiguous(order.BrokerID, cause)
	}
	if found != nil {
		g.log.Warn("ambiguous placement resolved: order reached broker",
			"broker", order.BrokerID, "clientOrderId", order.ClientOrderID)
		return found, nil
	}

	g.log.Warn("ambiguous placement resolved: order absent, resubmitting once",
		"broker", order.BrokerID, "clientOrderId", order.ClientOrderID)
	res, err := b.PlaceOrder(ctx, order)
	if err != nil {
		if domain.IsKind(err, domain.KindNetwork) {
			return nil, ambiguous(order.BrokerID, err)
		}
		return nil, err
	}
	return res, nil
}

// validateOrder rejects malformed orders before any network call.
func validateOrder(order domain.UnifiedOrder) error {
	switch {
	case strings.TrimSpace(order.Symbol) == "":
		return domain.Errf(domain.KindValidation, order.BrokerID, "symbol required")
	case !order.Qty.IsPositive():
		return domain.Errf(domain.KindValidation, order.BrokerID, "quantity must be positive, got %s", order.Qty)
	case !order.Side.Valid():
		return domain.Errf(domain.KindValidation, order.BrokerID, "side must be buy or sell, got %q", order.Side)
	case !order.Type.Valid():
		return domain.Errf(domain.KindValidation, order.BrokerID, "unsupported order type %q", order.Type)
	case order.BrokerID == "":
		return domain.Errf(domain.KindValidation, "", "brokerId required")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (g *Gateway) adapter(brokerID string) (broker.Broker, error) {
	b, ok := g.brokers[brokerID]
	if !ok {
		return nil, domain.Errf(domain.KindValidation, brokerID, "unknown broker %q", brokerID)
	}
	return b, nil
}

func (g *Gateway) record(ctx context.Context, order domain.UnifiedOrder, res *domain.OrderResult, callErr error) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordOrder(ctx, order, res, callErr); err != nil {
		g.log.Warn("journal write failed", "broker", order.BrokerID, "error", err)
	}
}

// fail annotates an already-classified error with the operation and broker
// without re-wrapping it; unclassified errors (which adapters should never
// leak) are treated as network failures. The adapter's error value is never
// mutated: concurrent operations may observe the same value, so annotation
// works on a copy.
func (g *Gateway) fail(op, brokerID string, err error) error {
	e := domain.AsError(err)
	if e == nil {
		e = domain.WrapErr(domain.KindNetwork, brokerID, err)
	} else {
		cp := *e
		e = &cp
	}
	if e.Op == "" {
		e.Op = op
	}
	if e.BrokerID == "" {
		e.BrokerID = brokerID
	}
	g.log.Warn("broker operation failed", "op", op, "broker", brokerID, "kind", e.Kind, "error", e.Message)
	return e
}

func ambiguous(brokerID string, cause error) error {
	return &domain.Error{
		Kind:     domain.KindAmbiguous,
		Message:  "order outcome unconfirmed after transport failure; query order status before resubmitting",
		BrokerID: brokerID,
		Err:      cause,
	}
}
