package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearshot/handshake/adapters/identity"
	"github.com/clearshot/handshake/adapters/replay"
	"github.com/clearshot/handshake/adapters/store"
	"github.com/clearshot/handshake/adapters/tokenizer"
	"github.com/clearshot/handshake/adapters/verifier"
	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

type recordingEvents struct {
	mu        sync.Mutex
	completed []string
	sessions  []string
}

var _ ports.EventPublisher = (*recordingEvents)(nil)

func (r *recordingEvents) PublishChallengeCompleted(_ context.Context, challengeID, identityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, challengeID)
	return nil
}

func (r *recordingEvents) PublishSessionIssued(_ context.Context, identityKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, identityKey)
	return nil
}

type fixture struct {
	svc    *AuthService
	store  *store.MemoryStore
	repo   *identity.MemoryRepo
	events *recordingEvents
	signer *verifier.LocalSigner
	guard  *replay.Cache

	clock   *time.Time
	clockMu *sync.Mutex
}

func (f *fixture) advance(d time.Duration) {
	f.clockMu.Lock()
	defer f.clockMu.Unlock()
	*f.clock = f.clock.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := time.Now()
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	chStore := store.NewMemoryStore(store.WithClock(now))
	repo := identity.NewMemoryRepo()
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := tokenizer.NewJWTTokenizer(signKey, time.Hour)
	signer, err := verifier.GenerateSigner()
	require.NoError(t, err)
	guard := replay.NewCache(10 * time.Minute)
	t.Cleanup(guard.Close)
	events := &recordingEvents{}

	svc := NewAuthService(
		chStore, repo, tk, verifier.NewSecp256k1(), guard, events,
		zap.NewNop(), "http://localhost:9000/auth/callback",
		WithClock(now),
	)
	return &fixture{
		svc: svc, store: chStore, repo: repo, events: events,
		signer: signer, guard: guard,
		clock: &clock, clockMu: &mu,
	}
}

// completeViaCallback signs the challenge id with the fixture wallet and
// runs proof verification plus completion, the way the callback route does.
func (f *fixture) completeViaCallback(t *testing.T, challengeID string) {
	t.Helper()
	ctx := context.Background()

	sig, err := f.signer.Sign(ctx, []byte(challengeID))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyCallbackProof(ctx, challengeID, f.signer.PublicKey(), hex.EncodeToString(sig)))
	require.NoError(t, f.svc.CompleteChallenge(ctx, challengeID, f.signer.PublicKey()))
}

func TestStartThenImmediatePollIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)
	assert.Len(t, grant.ChallengeID, 64)
	assert.Equal(t, "http://localhost:9000/auth/callback", grant.CallbackURL)
	assert.Equal(t, int64(5*60*1000), grant.ExpiresInMs)

	res, err := f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestPollAfterTTLIsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)

	f.advance(core.DefaultChallengeTTL)

	res, err := f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)

	// idempotent: re-polling an expired challenge keeps answering expired
	res, err = f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
}

func TestCallbackThenPollSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)

	f.completeViaCallback(t, grant.ChallengeID)
	assert.Equal(t, []string{grant.ChallengeID}, f.events.completed)

	res, err := f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, f.signer.PublicKey(), res.IdentityKey)
	assert.Equal(t, []string{f.signer.PublicKey()}, f.events.sessions)

	// first-use registration happened as part of the callback
	_, err = f.repo.Get(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	// the challenge is retired: a second poll reports expired, not success
	res, err = f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
}

func TestCompletedButExpiredNeverSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)
	f.completeViaCallback(t, grant.ChallengeID)

	// callback landed in time, but the client polls too late
	f.advance(core.DefaultChallengeTTL)

	res, err := f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
}

func TestCompleteUnknownChallenge(t *testing.T) {
	f := newFixture(t)

	id, err := core.NewChallengeID()
	require.NoError(t, err)

	err = f.svc.CompleteChallenge(context.Background(), id, f.signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCompleteTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)
	f.completeViaCallback(t, grant.ChallengeID)

	err = f.svc.CompleteChallenge(ctx, grant.ChallengeID, f.signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrConflict)
}

func TestCompleteExpiredChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)

	f.advance(core.DefaultChallengeTTL + time.Second)

	err = f.svc.CompleteChallenge(ctx, grant.ChallengeID, f.signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrExpired)
}

func TestCompleteRejectsMalformedInputBeforeStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.CompleteChallenge(ctx, "not-a-challenge", f.signer.PublicKey())
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)
	err = f.svc.CompleteChallenge(ctx, grant.ChallengeID, "04deadbeef")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	// challenge untouched
	res, err := f.svc.ResolveStatus(ctx, grant.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestVerifyCallbackProofRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grant, err := f.svc.StartChallenge(ctx)
	require.NoError(t, err)

	other, err := verifier.GenerateSigner()
	require.NoError(t, err)
	sig, err := other.Sign(ctx, []byte(grant.ChallengeID))
	require.NoError(t, err)

	// signature from a different wallet than the claimed key
	err = f.svc.VerifyCallbackProof(ctx, grant.ChallengeID, f.signer.PublicKey(), hex.EncodeToString(sig))
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestRegisterIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, f.signer.PublicKey(), id.PublicKey)

	// find-or-create: re-registering returns the same record
	again, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, id.RegisteredAt, again.RegisteredAt)

	_, err = f.svc.RegisterIdentity(ctx, "junk")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestVerifyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.VerifyKey(ctx, f.signer.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	ok, err = f.svc.VerifyKey(ctx, f.signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func (f *fixture) signedEnvelope(t *testing.T, method, path string, body []byte) *core.Envelope {
	t.Helper()

	env := &core.Envelope{
		Method:      method,
		Path:        path,
		Body:        body,
		Nonce:       core.NewNonce(),
		Timestamp:   time.Now(),
		IdentityKey: f.signer.PublicKey(),
	}
	sig, err := f.signer.Sign(context.Background(), env.CanonicalMessage())
	require.NoError(t, err)
	env.Signature = hex.EncodeToString(sig)
	return env
}

func TestAuthenticateHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	env := f.signedEnvelope(t, "GET", "/api/profile", nil)
	id, err := f.svc.Authenticate(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, f.signer.PublicKey(), id.PublicKey)
}

func TestAuthenticateRejectsUnregisteredIdentity(t *testing.T) {
	f := newFixture(t)

	// cryptographically valid signature, but the key was never registered
	env := f.signedEnvelope(t, "GET", "/api/profile", nil)
	_, err := f.svc.Authenticate(context.Background(), env)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthenticateRejectsStaleTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	env := &core.Envelope{
		Method:      "GET",
		Path:        "/api/profile",
		Nonce:       core.NewNonce(),
		Timestamp:   time.Now().Add(-core.DefaultSkewWindow - time.Minute),
		IdentityKey: f.signer.PublicKey(),
	}
	sig, err := f.signer.Sign(ctx, env.CanonicalMessage())
	require.NoError(t, err)
	env.Signature = hex.EncodeToString(sig)

	_, err = f.svc.Authenticate(ctx, env)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthenticateRejectsReplayedNonce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	env := f.signedEnvelope(t, "GET", "/api/profile", nil)
	_, err = f.svc.Authenticate(ctx, env)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, env)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthenticateRejectsTamperedBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterIdentity(ctx, f.signer.PublicKey())
	require.NoError(t, err)

	env := f.signedEnvelope(t, "POST", "/api/media", []byte(`{"title":"sunset"}`))
	env.Body = []byte(`{"title":"forged"}`)

	_, err = f.svc.Authenticate(ctx, env)
	assert.ErrorIs(t, err, core.ErrVerificationFailed)
}

func TestAuthenticateRejectsIncompleteEnvelope(t *testing.T) {
	f := newFixture(t)

	env := &core.Envelope{Method: "GET", Path: "/api/profile"}
	_, err := f.svc.Authenticate(context.Background(), env)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}
