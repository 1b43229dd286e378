package identity

import (
	"context"
	"sync"
	"time"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// MemoryRepo is an in-memory IdentityRepository for standalone runs and
// tests. It does not survive restarts.
type MemoryRepo struct {
	mu         sync.Mutex
	identities map[string]*core.Identity
}

// NewMemoryRepo creates an empty in-memory identity repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{identities: make(map[string]*core.Identity)}
}

var _ ports.IdentityRepository = (*MemoryRepo)(nil)

// Upsert registers publicKey on first use; an existing record is returned
// unchanged. Safe under concurrent first registrations of the same key.
func (r *MemoryRepo) Upsert(ctx context.Context, publicKey string) (*core.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.identities[publicKey]; ok {
		cpy := *id
		return &cpy, nil
	}

	now := time.Now()
	id := &core.Identity{
		PublicKey:    publicKey,
		RegisteredAt: now,
		LastActiveAt: now,
	}
	r.identities[publicKey] = id

	cpy := *id
	return &cpy, nil
}

// Get returns the identity for publicKey.
func (r *MemoryRepo) Get(ctx context.Context, publicKey string) (*core.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[publicKey]
	if !ok {
		return nil, core.ErrNotFound
	}
	cpy := *id
	return &cpy, nil
}

// TouchLastActive stamps LastActiveAt for publicKey.
func (r *MemoryRepo) TouchLastActive(ctx context.Context, publicKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[publicKey]
	if !ok {
		return core.ErrNotFound
	}
	id.LastActiveAt = time.Now()
	return nil
}
