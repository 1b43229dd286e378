package store

import (
	"context"
	"sync"
	"time"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// MemoryStore is an in-memory implementation of the ChallengeStore interface
// for single-process deployments. Expiry is observed lazily: entries past
// their TTL report expired on read and are deleted on Retire or the next
// sweep.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*core.Challenge

	ttl time.Duration
	now func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL overrides the default challenge TTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// WithClock overrides the time source. Tests use this to cross the expiry
// boundary without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a new in-memory challenge store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		challenges: make(map[string]*core.Challenge),
		ttl:        core.DefaultChallengeTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.ChallengeStore = (*MemoryStore)(nil)

// Create generates and stores a fresh Pending challenge.
func (s *MemoryStore) Create(ctx context.Context) (*core.Challenge, error) {
	id, err := core.NewChallengeID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	ch := &core.Challenge{
		ID:        id,
		State:     core.StatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	s.challenges[id] = ch

	cpy := *ch
	return &cpy, nil
}

// Get returns a copy of the challenge for id. A stored entry past its expiry
// is reported with State set to Expired; the entry itself stays until Retire
// deletes it.
func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return nil, core.ErrNotFound
	}

	cpy := *ch
	if cpy.State == core.StatePending && ch.Expired(s.now()) {
		cpy.State = core.StateExpired
	}
	return &cpy, nil
}

// Complete transitions id from Pending to Completed under the store lock, so
// exactly one of any number of concurrent callers wins. The expiry check
// precedes the state check.
func (s *MemoryStore) Complete(ctx context.Context, id, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return core.ErrNotFound
	}
	if ch.Expired(s.now()) {
		return core.ErrExpired
	}
	if ch.State != core.StatePending {
		return core.ErrConflict
	}

	ch.State = core.StateCompleted
	ch.BoundIdentity = identity
	return nil
}

// Retire deletes the entry for id. Unknown ids are a no-op.
func (s *MemoryStore) Retire(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
	return nil
}

// sweepLocked drops entries whose TTL elapsed. Called opportunistically on
// Create so abandoned challenges do not accumulate. Must hold mu.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, id)
		}
	}
}
