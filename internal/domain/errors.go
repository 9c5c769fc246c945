package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure. Adapters translate transport and
// broker-level failures into exactly one kind; the gateway and HTTP layer
// never re-classify, they only add context.
type ErrorKind string

const (
	// KindAuth: missing or invalid credential, caught before any network call.
	KindAuth ErrorKind = "auth_error"
	// KindValidation: malformed caller input, no network call issued.
	KindValidation ErrorKind = "validation_error"
	// KindUpstream: the broker returned a structured failure (4xx/5xx).
	KindUpstream ErrorKind = "upstream_error"
	// KindNetwork: timeout, connection reset, DNS failure.
	KindNetwork ErrorKind = "network_error"
	// KindAmbiguous: order placement where the outcome could not be
	// confirmed; the caller should query order status before resubmitting.
	KindAmbiguous ErrorKind = "ambiguous_outcome"
)

// Error is the structured error shape every failure reaches the caller as.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	BrokerID string    `json:"brokerId,omitempty"`
	Op       string    `json:"op,omitempty"`

	// UpstreamStatus is the broker's HTTP status for upstream errors, zero
	// otherwise. Retry decisions key off it.
	UpstreamStatus int `json:"-"`

	// Err is the underlying cause, preserved for errors.Is/As chains.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.BrokerID != "" {
		msg = e.BrokerID + ": " + msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Errf constructs a classified Error with a formatted message.
func Errf(kind ErrorKind, brokerID, format string, args ...any) *Error {
	return &Error{Kind: kind, BrokerID: brokerID, Message: fmt.Sprintf(format, args...)}
}

// WrapErr constructs a classified Error around an underlying cause.
func WrapErr(kind ErrorKind, brokerID string, err error) *Error {
	return &Error{Kind: kind, BrokerID: brokerID, Message: err.Error(), Err: err}
}

// AsError extracts the classified *Error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the classification of err, or "" when err is nil or
// unclassified.
func KindOf(err error) ErrorKind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether err represents a transient failure that an
// idempotent read may retry: network errors and upstream 5xx responses.
// 4xx responses are permanent and never retried.
func Retryable(err error) bool {
	e := AsError(err)
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindNetwork:
		return true
	case KindUpstream:
		return e.UpstreamStatus >= 500
	default:
		return false
	}
}
