package ports

import (
	"context"

	"github.com/clearshot/handshake/core"
)

// IdentityRepository stores registered identities durably, keyed by public
// key. Callers validate key format before reaching the repository.
type IdentityRepository interface {
	// Upsert registers publicKey on first use and returns the record. If the
	// key is already registered it returns the existing record unchanged;
	// concurrent first registrations of the same key must not error.
	Upsert(ctx context.Context, publicKey string) (*core.Identity, error)

	// Get returns the identity for publicKey, or core.ErrNotFound.
	Get(ctx context.Context, publicKey string) (*core.Identity, error)

	// TouchLastActive records that publicKey made an authenticated request.
	TouchLastActive(ctx context.Context, publicKey string) error
}
