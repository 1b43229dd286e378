package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is a registered user, recognized by the compressed secp256k1
// public key their desktop wallet controls.
type Identity struct {
	PublicKey    string
	RegisteredAt time.Time
	LastActiveAt time.Time
}

// ValidateIdentityKey checks that key is a compressed secp256k1 public key in
// hex form (33 bytes, 02/03 prefix) and actually decodes to a curve point.
// Malformed keys are rejected here, before any storage lookup.
func ValidateIdentityKey(key string) error {
	key = strings.TrimSpace(key)
	if len(key) != 66 {
		return fmt.Errorf("identity key must be 66 hex chars, got %d: %w", len(key), ErrInvalidInput)
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("identity key is not hex: %w", ErrInvalidInput)
	}
	if raw[0] != 0x02 && raw[0] != 0x03 {
		return fmt.Errorf("identity key has invalid compression prefix 0x%02x: %w", raw[0], ErrInvalidInput)
	}
	if _, err := crypto.DecompressPubkey(raw); err != nil {
		return fmt.Errorf("identity key is not a curve point: %w", ErrInvalidInput)
	}
	return nil
}
