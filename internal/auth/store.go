// Package auth holds broker credentials and produces the signed request
// envelopes required by the crypto exchange. The raw secret never leaves
// this package: the signer reads it directly, everything else only sees a
// masked view.
package auth

import (
	"fmt"

	"protrade/internal/domain"
)

// Credential identifies one broker API key pair. The secret is unexported
// and excluded from every serialized or printed form.
type Credential struct {
	BrokerID string
	KeyID    string
	Scope    string
	secret   string
}

// NewCredential creates a Credential for the given broker.
func NewCredential(brokerID, keyID, secret, scope string) Credential {
	return Credential{BrokerID: brokerID, KeyID: keyID, Scope: scope, secret: secret}
}

// Configured reports whether both the key ID and the secret are present.
func (c Credential) Configured() bool {
	return c.KeyID != "" && c.secret != ""
}

// Masked returns a diagnostic view of the secret with only the last 4
// characters visible.
func (c Credential) Masked() string {
	if c.secret == "" {
		return ""
	}
	if len(c.secret) <= 4 {
		return "****"
	}
	return "****" + c.secret[len(c.secret)-4:]
}

// String implements fmt.Stringer with the secret redacted.
func (c Credential) String() string {
	return fmt.Sprintf("credential{broker=%s key=%s secret=%s}", c.BrokerID, c.KeyID, c.Masked())
}

// Store is the process-wide credential holder, built once at startup and
// read-only afterwards.
type Store struct {
	creds map[string]Credential
}

// NewStore creates a Store from the given credentials, keyed by broker ID.
// Credentials with empty key material are still stored so Lookup can report
// them as unconfigured.
func NewStore(creds ...Credential) *Store {
	m := make(map[string]Credential, len(creds))
	for _, c := range creds {
		m[c.BrokerID] = c
	}
	return &Store{creds: m}
}

// Lookup returns the credential for a broker. A missing or empty credential
// is an auth error, detected before any network call is attempted.
func (s *Store) Lookup(brokerID string) (Credential, error) {
	c, ok := s.creds[brokerID]
	if !ok || !c.Configured() {
		return Credential{}, domain.Errf(domain.KindAuth, brokerID, "credential not configured")
	}
	return c, nil
}

// Configured reports whether a usable credential exists for the broker.
// Used by the status endpoint, which only ever exposes booleans.
func (s *Store) Configured(brokerID string) bool {
	c, ok := s.creds[brokerID]
	return ok && c.Configured()
}
