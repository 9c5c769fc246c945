package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"protrade/internal/domain"
)

// Header names of the exchange's authenticated request envelope.
const (
	headerAPIKey    = "X-GEMINI-APIKEY"
	headerPayload   = "X-GEMINI-PAYLOAD"
	headerSignature = "X-GEMINI-SIGNATURE"
)

// SignedRequest is the authenticated envelope for a single outbound call.
// It is immutable once constructed; one SignedRequest maps to exactly one
// HTTP request.
type SignedRequest struct {
	Endpoint  string
	KeyID     string
	Payload   string // base64 of the canonical JSON payload
	Signature string // hex HMAC-SHA384 of Payload
	Nonce     int64
	IssuedAt  time.Time
}

// Headers returns the exchange's required header set for this envelope.
func (r SignedRequest) Headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set(headerAPIKey, r.KeyID)
	h.Set(headerPayload, r.Payload)
	h.Set(headerSignature, r.Signature)
	h.Set("Cache-Control", "no-cache")
	return h
}

// Signer computes the exchange's authenticated request envelope. Apart from
// nonce acquisition, the signature is a pure function of (endpoint, payload,
// nonce, secret).
type Signer struct {
	nonces *NonceSequencer
}

// NewSigner creates a Signer drawing nonces from the given sequencer.
func NewSigner(nonces *NonceSequencer) *Signer {
	return &Signer{nonces: nonces}
}

// Sign acquires a nonce and signs the payload for the endpoint in one
// logical step, so two concurrent calls can never compute signatures from
// out-of-order nonces. The payload map is not modified.
func (s *Signer) Sign(endpoint string, payload map[string]any, cred Credential) (SignedRequest, error) {
	if !cred.Configured() {
		return SignedRequest{}, domain.Errf(domain.KindAuth, cred.BrokerID, "credential not configured")
	}
	return s.signWithNonce(endpoint, payload, cred, s.nonces.Next(cred.BrokerID))
}

// signWithNonce builds the envelope deterministically for a known nonce:
// merge {nonce, request} into the payload, marshal canonical JSON (map keys
// sorted), base64-encode, then HMAC-SHA384 the base64 string with the
// credential secret, hex-encoded.
func (s *Signer) signWithNonce(endpoint string, payload map[string]any, cred Credential, nonce int64) (SignedRequest, error) {
	merged := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		merged[k] = v
	}
	merged["nonce"] = nonce
	merged["request"] = endpoint

	canonical, err := json.Marshal(merged)
	if err != nil {
		return SignedRequest{}, domain.WrapErr(domain.KindValidation, cred.BrokerID, err)
	}
	encoded := base64.StdEncoding.EncodeToString(canonical)

	mac := hmac.New(sha512.New384, []byte(cred.secret))
	mac.Write([]byte(encoded))

	return SignedRequest{
		Endpoint:  endpoint,
		KeyID:     cred.KeyID,
		Payload:   encoded,
		Signature: hex.EncodeToString(mac.Sum(nil)),
		Nonce:     nonce,
		IssuedAt:  time.Now(),
	}, nil
}
