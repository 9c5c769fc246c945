package auth

import (
	"sync"
	"time"
)

// NonceSequencer issues strictly increasing nonces per credential. A raw
// wall-clock nonce collides when two signed requests fall in the same
// millisecond, and the exchange rejects any nonce that does not exceed the
// previous one, so the sequencer returns max(lastIssued+1, nowMillis) under
// a mutex. The critical section contains only the increment-and-read; the
// subsequent network call happens outside it.
type NonceSequencer struct {
	mu   sync.Mutex
	last map[string]int64
	now  func() int64
}

// NewNonceSequencer creates a NonceSequencer backed by the wall clock.
func NewNonceSequencer() *NonceSequencer {
	return &NonceSequencer{
		last: make(map[string]int64),
		now:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Next returns the next nonce for the credential and records it as issued.
func (s *NonceSequencer) Next(credentialID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.now()
	if last := s.last[credentialID]; n <= last {
		n = last + 1
	}
	s.last[credentialID] = n
	return n
}
