package gateway

import (
	"context"
	"time"

	"protrade/internal/domain"
)

// RetryPolicy bounds retries for idempotent read operations. Transient
// failures (network errors, upstream 5xx) are retried with exponential
// backoff; 4xx responses are permanent and returned immediately. Order
// placement never goes through this policy.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the broker APIs' tolerance for short bursts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond}
}

// Do calls fn up to MaxAttempts times, doubling the delay between attempts.
// It returns nil on the first success, the error unchanged on a permanent
// failure, and the last observed error when all attempts are exhausted.
// Context cancellation is respected between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil || !domain.Retryable(err) {
			return err
		}
		// Don't sleep after the last failed attempt.
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return domain.WrapErr(domain.KindNetwork, "", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return err
}
