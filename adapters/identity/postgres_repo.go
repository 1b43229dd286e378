// Package identity provides IdentityRepository implementations. Registered
// identities are durable state and survive restarts; the postgres repository
// is the production backend.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// Querier is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepo implements IdentityRepository using PostgreSQL.
type PostgresRepo struct{ db Querier }

// NewPostgresRepo constructs an identity repository on top of a pgx pool.
func NewPostgresRepo(db Querier) *PostgresRepo { return &PostgresRepo{db: db} }

var _ ports.IdentityRepository = (*PostgresRepo)(nil)

// Upsert registers publicKey on first use. ON CONFLICT DO NOTHING tolerates
// concurrent first registrations; the follow-up select returns whichever row
// won.
func (r *PostgresRepo) Upsert(ctx context.Context, publicKey string) (*core.Identity, error) {
	const ins = `
INSERT INTO identities (public_key, registered_at, last_active_at)
VALUES ($1, now(), now())
ON CONFLICT (public_key) DO NOTHING`
	if _, err := r.db.Exec(ctx, ins, publicKey); err != nil {
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return r.Get(ctx, publicKey)
}

// Get selects an identity by public key.
func (r *PostgresRepo) Get(ctx context.Context, publicKey string) (*core.Identity, error) {
	const q = `
SELECT public_key, registered_at, last_active_at
FROM identities WHERE public_key = $1`
	var id core.Identity
	row := r.db.QueryRow(ctx, q, publicKey)
	if err := row.Scan(&id.PublicKey, &id.RegisteredAt, &id.LastActiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &id, nil
}

// TouchLastActive stamps last_active_at for publicKey.
func (r *PostgresRepo) TouchLastActive(ctx context.Context, publicKey string) error {
	const q = `UPDATE identities SET last_active_at = now() WHERE public_key = $1`
	tag, err := r.db.Exec(ctx, q, publicKey)
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
