package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/clearshot/handshake/core"
)

const mockKey = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func TestPostgresRepoUpsertFirstUse(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPostgresRepo(mock)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(mockKey).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT public_key, registered_at, last_active_at FROM identities WHERE public_key = \$1`).
		WithArgs(mockKey).
		WillReturnRows(pgxmock.NewRows([]string{"public_key", "registered_at", "last_active_at"}).
			AddRow(mockKey, now, now))

	id, err := r.Upsert(context.Background(), mockKey)
	require.NoError(t, err)
	require.Equal(t, mockKey, id.PublicKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepoUpsertExisting(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPostgresRepo(mock)
	registered := time.Now().Add(-24 * time.Hour)

	// conflict path: insert affects no rows, select returns the old record
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs(mockKey).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT public_key, registered_at, last_active_at FROM identities WHERE public_key = \$1`).
		WithArgs(mockKey).
		WillReturnRows(pgxmock.NewRows([]string{"public_key", "registered_at", "last_active_at"}).
			AddRow(mockKey, registered, registered))

	id, err := r.Upsert(context.Background(), mockKey)
	require.NoError(t, err)
	require.WithinDuration(t, registered, id.RegisteredAt, time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepoGetNotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPostgresRepo(mock)

	mock.ExpectQuery(`SELECT public_key, registered_at, last_active_at FROM identities WHERE public_key = \$1`).
		WithArgs(mockKey).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(context.Background(), mockKey)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresRepoTouchLastActive(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	r := NewPostgresRepo(mock)

	mock.ExpectExec(`UPDATE identities SET last_active_at = now\(\) WHERE public_key = \$1`).
		WithArgs(mockKey).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.TouchLastActive(context.Background(), mockKey))

	mock.ExpectExec(`UPDATE identities SET last_active_at = now\(\) WHERE public_key = \$1`).
		WithArgs(mockKey).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := r.TouchLastActive(context.Background(), mockKey)
	require.ErrorIs(t, err, core.ErrNotFound)
}
