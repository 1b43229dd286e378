package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clearshot/handshake/ports"
)

// LocalSigner is the signing counterpart of Secp256k1Verifier: a wallet
// capability backed by an in-process secp256k1 key. The production mobile
// client delegates to an external wallet instead; this implementation serves
// tests and development tooling.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner wraps an existing secp256k1 private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// GenerateSigner creates a LocalSigner with a fresh secp256k1 key.
func GenerateSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &LocalSigner{key: key}, nil
}

var _ ports.Signer = (*LocalSigner)(nil)

// Sign produces a 64-byte r||s signature over the SHA-256 digest of message.
func (s *LocalSigner) Sign(ctx context.Context, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	// drop the recovery byte; the verifier works from the public key
	return sig[:64], nil
}

// PublicKey returns the compressed public key, hex encoded.
func (s *LocalSigner) PublicKey() string {
	return hex.EncodeToString(crypto.CompressPubkey(&s.key.PublicKey))
}
