package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Envelope header names. The client attaches these to every protected call;
// the authentication gate reads them back.
const (
	HeaderNonce       = "X-Auth-Nonce"
	HeaderTimestamp   = "X-Auth-Timestamp"
	HeaderSignature   = "X-Auth-Signature"
	HeaderIdentityKey = "X-Auth-Identity-Key"
)

// DefaultSkewWindow bounds how far an envelope timestamp may drift from
// server time in either direction.
const DefaultSkewWindow = 5 * time.Minute

// Envelope is the signed metadata attached to a protected request. It is
// constructed per call and never persisted.
type Envelope struct {
	Method      string
	Path        string
	Body        []byte
	Nonce       string
	Timestamp   time.Time
	Signature   string // hex, 64-byte r||s
	IdentityKey string
}

// CanonicalMessage builds the exact byte string the signature covers. Both
// the client signer and the server gate must produce identical output, so the
// body is collapsed to its SHA-256 and the timestamp is serialized as unix
// milliseconds.
func (e *Envelope) CanonicalMessage() []byte {
	bodySum := sha256.Sum256(e.Body)
	msg := fmt.Sprintf("%s\n%s\n%s\n%s\n%d",
		e.Method,
		e.Path,
		hex.EncodeToString(bodySum[:]),
		e.Nonce,
		e.Timestamp.UnixMilli(),
	)
	return []byte(msg)
}

// TimestampString renders the envelope timestamp the way it travels on the
// wire.
func (e *Envelope) TimestampString() string {
	return strconv.FormatInt(e.Timestamp.UnixMilli(), 10)
}

// NewNonce returns a unique per-request nonce.
func NewNonce() string {
	return uuid.New().String()
}

// ParseEnvelopeTimestamp parses a wire timestamp (unix milliseconds).
func ParseEnvelopeTimestamp(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad envelope timestamp %q: %w", s, ErrInvalidInput)
	}
	return time.UnixMilli(ms), nil
}

// WithinSkew reports whether the envelope timestamp is within the allowed
// window around now.
func (e *Envelope) WithinSkew(now time.Time, window time.Duration) bool {
	d := now.Sub(e.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= window
}
