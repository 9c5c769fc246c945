// Package httpapi exposes the order gateway as a JSON REST API: account,
// positions, orders, and market data per broker, plus placement and the
// order journal.
package httpapi

import (
	"time"

	"protrade/internal/domain"
	"protrade/internal/journal"
)

// HealthResponse reports process liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// BrokerStatus reports whether a broker has credentials configured. The
// credentials themselves never appear in any response.
type BrokerStatus struct {
	Configured bool `json:"configured"`
}

// StatusResponse maps broker IDs to their configuration state.
type StatusResponse struct {
	Brokers map[string]BrokerStatus `json:"brokers"`
}

// BarsResponse holds historical bars for one symbol, ascending by time.
type BarsResponse struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Bars      []domain.Bar `json:"bars"`
}

// JournalResponse lists recorded placement attempts, newest first.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// ErrorBody is the uniform error payload.
type ErrorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	BrokerID string `json:"brokerId,omitempty"`
	Op       string `json:"op,omitempty"`
}

// ErrorResponse wraps an ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
