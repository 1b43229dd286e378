package ports

import (
	"context"

	"github.com/clearshot/handshake/core"
)

// ChallengeStore holds outstanding authentication challenges keyed by id.
// Entries are transient (TTL on the order of minutes) and may live purely in
// memory; a redis-backed implementation exists for multi-instance
// deployments.
type ChallengeStore interface {
	// Create generates a fresh Pending challenge with a new unguessable id
	// and stores it.
	Create(ctx context.Context) (*core.Challenge, error)

	// Get returns the challenge for id, or core.ErrNotFound.
	Get(ctx context.Context, id string) (*core.Challenge, error)

	// Complete transitions id from Pending to Completed and binds identity.
	// It must be atomic under concurrent callers: exactly one succeeds, the
	// rest observe core.ErrConflict. A challenge at or past its expiry fails
	// with core.ErrExpired; a missing one with core.ErrNotFound. Failure
	// never mutates the entry.
	Complete(ctx context.Context, id, identity string) error

	// Retire deletes the entry. Idempotent; retiring an unknown id is a
	// no-op.
	Retire(ctx context.Context, id string) error
}
