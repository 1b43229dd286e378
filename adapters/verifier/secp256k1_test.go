package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

func TestVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	v := NewSecp256k1()
	ctx := context.Background()

	msg := []byte("challenge-id-to-sign")
	sig, err := signer.Sign(ctx, msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	assert.NoError(t, v.Verify(ctx, msg, sig, signer.PublicKey()))
}

func TestVerifyWrongKey(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	other, err := GenerateSigner()
	require.NoError(t, err)
	v := NewSecp256k1()
	ctx := context.Background()

	sig, err := signer.Sign(ctx, []byte("message"))
	require.NoError(t, err)

	err = v.Verify(ctx, []byte("message"), sig, other.PublicKey())
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestVerifyTamperedMessage(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	v := NewSecp256k1()
	ctx := context.Background()

	sig, err := signer.Sign(ctx, []byte("message"))
	require.NoError(t, err)

	err = v.Verify(ctx, []byte("Message"), sig, signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestVerifyMalformedInputs(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	v := NewSecp256k1()
	ctx := context.Background()

	sig, err := signer.Sign(ctx, []byte("message"))
	require.NoError(t, err)

	tests := []struct {
		name string
		sig  []byte
		key  string
	}{
		{"short signature", sig[:32], signer.PublicKey()},
		{"non-hex key", sig, "zz" + signer.PublicKey()[2:]},
		{"uncompressed length key", sig, signer.PublicKey() + "aabb"},
		{"bad prefix", sig, "05" + signer.PublicKey()[2:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(ctx, []byte("message"), tt.sig, tt.key)
			assert.ErrorIs(t, err, core.ErrVerificationFailed)
		})
	}
}

// flaky fails with a transport error a fixed number of times before
// delegating to the real verifier.
type flaky struct {
	inner     ports.SignatureVerifier
	failures  int
	callCount int
}

func (f *flaky) Verify(ctx context.Context, message, signature []byte, publicKey string) error {
	f.callCount++
	if f.callCount <= f.failures {
		return errors.New("connection refused")
	}
	return f.inner.Verify(ctx, message, signature, publicKey)
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	ctx := context.Background()

	sig, err := signer.Sign(ctx, []byte("message"))
	require.NoError(t, err)

	f := &flaky{inner: NewSecp256k1(), failures: 2}
	r := NewRetrying(f, 3, time.Millisecond)

	assert.NoError(t, r.Verify(ctx, []byte("message"), sig, signer.PublicKey()))
	assert.Equal(t, 3, f.callCount)
}

func TestRetryingSurfacesUnavailable(t *testing.T) {
	f := &flaky{inner: NewSecp256k1(), failures: 100}
	r := NewRetrying(f, 3, time.Millisecond)

	err := r.Verify(context.Background(), []byte("m"), make([]byte, 64), "02ab")
	assert.ErrorIs(t, err, core.ErrVerifierUnavailable)
	assert.NotErrorIs(t, err, core.ErrVerificationFailed)
	assert.Equal(t, 3, f.callCount)
}

func TestRetryingDoesNotRetryRejections(t *testing.T) {
	signer, err := GenerateSigner()
	require.NoError(t, err)
	ctx := context.Background()

	f := &flaky{inner: NewSecp256k1()}
	r := NewRetrying(f, 3, time.Millisecond)

	err = r.Verify(ctx, []byte("message"), make([]byte, 64), signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
	assert.Equal(t, 1, f.callCount)
}
