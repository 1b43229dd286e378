// Package verifier implements the signature verification capability on
// secp256k1, the curve behind compressed identity keys, plus a retrying
// wrapper for remote verifier deployments.
package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// Secp256k1Verifier checks 64-byte r||s signatures over the SHA-256 digest
// of the message against a compressed secp256k1 public key.
type Secp256k1Verifier struct{}

// NewSecp256k1 creates the local secp256k1 verifier.
func NewSecp256k1() *Secp256k1Verifier { return &Secp256k1Verifier{} }

var _ ports.SignatureVerifier = (*Secp256k1Verifier)(nil)

// Verify returns nil when signature matches message under publicKey, and
// core.ErrVerificationFailed otherwise. Verification never mutates state.
func (v *Secp256k1Verifier) Verify(ctx context.Context, message, signature []byte, publicKey string) error {
	raw, err := hex.DecodeString(publicKey)
	if err != nil || len(raw) != 33 {
		return fmt.Errorf("malformed public key: %w", core.ErrVerificationFailed)
	}
	if _, err := crypto.DecompressPubkey(raw); err != nil {
		return fmt.Errorf("public key is not a curve point: %w", core.ErrVerificationFailed)
	}
	if len(signature) != 64 {
		return fmt.Errorf("signature must be 64 bytes, got %d: %w", len(signature), core.ErrVerificationFailed)
	}

	digest := sha256.Sum256(message)
	if !crypto.VerifySignature(raw, digest[:], signature) {
		return core.ErrVerificationFailed
	}
	return nil
}
