package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// RedisStore is a redis implementation of the ChallengeStore interface for
// multi-instance deployments. Challenges live in hashes keyed by id; redis
// key TTL handles the sweep, and the Pending->Completed transition runs as a
// Lua script so it stays atomic across instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// completeScript performs the compare-and-swap transition. Return values:
// 1 completed, 0 missing, -1 already completed, -2 expired.
var completeScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 0
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at_ms'))
if tonumber(ARGV[2]) >= expires then
  return -2
end
if state ~= 'pending' then
  return -1
end
redis.call('HSET', KEYS[1], 'state', 'completed', 'identity', ARGV[1])
return 1
`)

// NewRedisStore creates a redis-backed challenge store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = core.DefaultChallengeTTL
	}
	return &RedisStore{
		client: client,
		prefix: "handshake:challenge:",
		ttl:    ttl,
	}
}

var _ ports.ChallengeStore = (*RedisStore)(nil)

func (s *RedisStore) key(id string) string { return s.prefix + id }

// Create generates and stores a fresh Pending challenge. The redis key TTL
// is padded slightly past the logical expiry so a just-expired challenge is
// still observable as expired rather than missing.
func (s *RedisStore) Create(ctx context.Context) (*core.Challenge, error) {
	id, err := core.NewChallengeID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ch := &core.Challenge{
		ID:        id,
		State:     core.StatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	key := s.key(id)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"state", string(core.StatePending),
		"identity", "",
		"created_at_ms", now.UnixMilli(),
		"expires_at_ms", ch.ExpiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, s.ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	return ch, nil
}

// Get returns the challenge for id, mapping a past-expiry Pending entry to
// the Expired state.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Challenge, error) {
	vals, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if len(vals) == 0 {
		return nil, core.ErrNotFound
	}

	createdMs, _ := strconv.ParseInt(vals["created_at_ms"], 10, 64)
	expiresMs, err := strconv.ParseInt(vals["expires_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt challenge entry for %s: %w", id, err)
	}

	ch := &core.Challenge{
		ID:            id,
		State:         core.ChallengeState(vals["state"]),
		BoundIdentity: vals["identity"],
		CreatedAt:     time.UnixMilli(createdMs),
		ExpiresAt:     time.UnixMilli(expiresMs),
	}
	if ch.State == core.StatePending && ch.Expired(time.Now()) {
		ch.State = core.StateExpired
	}
	return ch, nil
}

// Complete runs the compare-and-swap script against redis.
func (s *RedisStore) Complete(ctx context.Context, id, identity string) error {
	res, err := completeScript.Run(ctx, s.client,
		[]string{s.key(id)},
		identity, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrNotFound
		}
		return fmt.Errorf("failed to complete challenge: %w", err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return core.ErrNotFound
	case -1:
		return core.ErrConflict
	case -2:
		return core.ErrExpired
	default:
		return fmt.Errorf("unexpected completion result %d", res)
	}
}

// Retire deletes the entry. Idempotent.
func (s *RedisStore) Retire(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to retire challenge: %w", err)
	}
	return nil
}
