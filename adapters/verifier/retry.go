package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// Retrying wraps a SignatureVerifier whose transport may fail transiently.
// Verification rejections pass through untouched; any other error is retried
// a small fixed number of times with backoff and then surfaced as
// core.ErrVerifierUnavailable, never as a verification failure.
type Retrying struct {
	inner    ports.SignatureVerifier
	attempts uint64
	backoff  time.Duration
}

// NewRetrying wraps inner with maxAttempts total attempts and an initial
// backoff that doubles per retry.
func NewRetrying(inner ports.SignatureVerifier, maxAttempts uint64, backoff time.Duration) *Retrying {
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Retrying{inner: inner, attempts: maxAttempts, backoff: backoff}
}

var _ ports.SignatureVerifier = (*Retrying)(nil)

// Verify delegates to the wrapped verifier, retrying transient failures.
func (r *Retrying) Verify(ctx context.Context, message, signature []byte, publicKey string) error {
	b := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.inner.Verify(ctx, message, signature, publicKey)
		if err == nil || errors.Is(err, core.ErrVerificationFailed) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil || errors.Is(err, core.ErrVerificationFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrVerifierUnavailable, err)
}
