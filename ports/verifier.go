package ports

import "context"

// SignatureVerifier checks that signature was produced over message by the
// holder of publicKey. The service treats this as an external capability: it
// returns core.ErrVerificationFailed for a bad signature and a transport
// error (mapped to core.ErrVerifierUnavailable by the caller) when the
// capability itself cannot answer.
type SignatureVerifier interface {
	Verify(ctx context.Context, message, signature []byte, publicKey string) error
}

// Signer is the client-side counterpart of SignatureVerifier: the opaque
// capability a wallet exposes for producing signatures. The server never sees
// the key material behind it.
type Signer interface {
	// Sign returns a 64-byte r||s signature over message.
	Sign(ctx context.Context, message []byte) ([]byte, error)

	// PublicKey returns the compressed public key, hex encoded.
	PublicKey() string
}
