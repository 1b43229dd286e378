package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// ChallengeGrant is what a client receives when it starts authentication.
type ChallengeGrant struct {
	ChallengeID string
	CallbackURL string
	ExpiresInMs int64
}

// Status values reported to polling clients.
const (
	StatusPending = "pending"
	StatusExpired = "expired"
	StatusSuccess = "success"
)

// StatusResult is the outcome of a poll. Token and IdentityKey are set only
// when Status is StatusSuccess.
type StatusResult struct {
	Status         string
	Token          string
	TokenExpiresAt time.Time
	IdentityKey    string
}

// AuthService implements the identity authentication handshake: challenge
// issuance, callback completion, polling resolution, registration, and
// envelope authentication for protected calls.
type AuthService struct {
	store      ports.ChallengeStore
	identities ports.IdentityRepository
	tokenizer  ports.Tokenizer
	verifier   ports.SignatureVerifier
	replay     ports.ReplayGuard
	events     ports.EventPublisher
	logger     *zap.Logger

	callbackURL string
	skewWindow  time.Duration
	now         func() time.Time
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithSkewWindow overrides the envelope timestamp skew window.
func WithSkewWindow(window time.Duration) Option {
	return func(s *AuthService) { s.skewWindow = window }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService wires the handshake service. callbackURL is the address the
// external signer is told to deliver its assertion to.
func NewAuthService(
	store ports.ChallengeStore,
	identities ports.IdentityRepository,
	tokenizer ports.Tokenizer,
	verifier ports.SignatureVerifier,
	replay ports.ReplayGuard,
	events ports.EventPublisher,
	logger *zap.Logger,
	callbackURL string,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		store:       store,
		identities:  identities,
		tokenizer:   tokenizer,
		verifier:    verifier,
		replay:      replay,
		events:      events,
		logger:      logger,
		callbackURL: callbackURL,
		skewWindow:  core.DefaultSkewWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartChallenge issues a fresh challenge. Calling it requires no
// authentication; the challenge grants no capability by itself.
func (s *AuthService) StartChallenge(ctx context.Context) (*ChallengeGrant, error) {
	ch, err := s.store.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.logger.Debug("challenge issued", zap.String("challenge_id", ch.ID))
	return &ChallengeGrant{
		ChallengeID: ch.ID,
		CallbackURL: s.callbackURL,
		ExpiresInMs: ch.ExpiresAt.Sub(ch.CreatedAt).Milliseconds(),
	}, nil
}

// VerifyCallbackProof checks the external signer's signature over the raw
// challenge id against the claimed identity key. It runs before
// CompleteChallenge, as the trust gate for the callback route.
func (s *AuthService) VerifyCallbackProof(ctx context.Context, challengeID, identityKey, signatureHex string) error {
	if !core.ValidChallengeID(challengeID) {
		return fmt.Errorf("malformed challenge id: %w", core.ErrInvalidInput)
	}
	if err := core.ValidateIdentityKey(identityKey); err != nil {
		return err
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("signature is not hex: %w", core.ErrInvalidInput)
	}
	return s.verifier.Verify(ctx, []byte(challengeID), sig, identityKey)
}

// CompleteChallenge binds identityKey to a pending challenge. The caller is
// responsible for having verified the signer's proof first. On success the
// identity is upserted so first-time wallets are registered as part of the
// handshake.
func (s *AuthService) CompleteChallenge(ctx context.Context, challengeID, identityKey string) error {
	if !core.ValidChallengeID(challengeID) {
		return fmt.Errorf("malformed challenge id: %w", core.ErrInvalidInput)
	}
	if err := core.ValidateIdentityKey(identityKey); err != nil {
		return err
	}

	if err := s.store.Complete(ctx, challengeID, identityKey); err != nil {
		return err
	}

	if _, err := s.identities.Upsert(ctx, identityKey); err != nil {
		// the challenge is already completed; a registration failure here
		// must surface so the wallet retries rather than the user polling a
		// success that cannot mint a usable session
		return fmt.Errorf("failed to register identity: %w", err)
	}

	if err := s.events.PublishChallengeCompleted(ctx, challengeID, identityKey); err != nil {
		s.logger.Warn("failed to publish challenge completion",
			zap.String("challenge_id", challengeID), zap.Error(err))
	}

	s.logger.Info("challenge completed",
		zap.String("challenge_id", challengeID), zap.String("identity", identityKey))
	return nil
}

// ResolveStatus answers a poll for challengeID. The expiry check precedes
// the state check, so a poll at or after expiresAt never resolves success.
// Resolving a completed challenge mints a session token and retires the
// challenge, so the success branch fires at most once.
func (s *AuthService) ResolveStatus(ctx context.Context, challengeID string) (*StatusResult, error) {
	if !core.ValidChallengeID(challengeID) {
		return nil, fmt.Errorf("malformed challenge id: %w", core.ErrInvalidInput)
	}

	ch, err := s.store.Get(ctx, challengeID)
	if errors.Is(err, core.ErrNotFound) {
		return &StatusResult{Status: StatusExpired}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if ch.Expired(s.now()) || ch.State == core.StateExpired {
		if err := s.store.Retire(ctx, challengeID); err != nil {
			s.logger.Warn("failed to retire expired challenge",
				zap.String("challenge_id", challengeID), zap.Error(err))
		}
		return &StatusResult{Status: StatusExpired}, nil
	}

	if ch.State == core.StateCompleted {
		token, expiresAt, err := s.tokenizer.IssueSession(ch.BoundIdentity)
		if err != nil {
			return nil, fmt.Errorf("failed to issue session token: %w", err)
		}
		if err := s.store.Retire(ctx, challengeID); err != nil {
			return nil, fmt.Errorf("failed to retire challenge: %w", err)
		}
		if err := s.events.PublishSessionIssued(ctx, ch.BoundIdentity); err != nil {
			s.logger.Warn("failed to publish session issuance",
				zap.String("identity", ch.BoundIdentity), zap.Error(err))
		}

		s.logger.Info("session issued", zap.String("identity", ch.BoundIdentity))
		return &StatusResult{
			Status:         StatusSuccess,
			Token:          token,
			TokenExpiresAt: expiresAt,
			IdentityKey:    ch.BoundIdentity,
		}, nil
	}

	return &StatusResult{Status: StatusPending}, nil
}

// RegisterIdentity is the explicit public registration path: find-or-create
// by identity key.
func (s *AuthService) RegisterIdentity(ctx context.Context, identityKey string) (*core.Identity, error) {
	if err := core.ValidateIdentityKey(identityKey); err != nil {
		return nil, err
	}
	id, err := s.identities.Upsert(ctx, identityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to register identity: %w", err)
	}
	return id, nil
}

// VerifyKey reports whether identityKey is registered, without
// authenticating the caller.
func (s *AuthService) VerifyKey(ctx context.Context, identityKey string) (bool, error) {
	if err := core.ValidateIdentityKey(identityKey); err != nil {
		return false, err
	}
	_, err := s.identities.Get(ctx, identityKey)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up identity: %w", err)
	}
	return true, nil
}

// Authenticate verifies a signed request envelope. On success it returns the
// registered identity (with LastActiveAt refreshed); every failure mode maps
// to a sentinel in core and leaves no state behind.
func (s *AuthService) Authenticate(ctx context.Context, env *core.Envelope) (*core.Identity, error) {
	if env.IdentityKey == "" || env.Nonce == "" || env.Signature == "" || env.Timestamp.IsZero() {
		return nil, fmt.Errorf("incomplete envelope: %w", core.ErrUnauthenticated)
	}
	if err := core.ValidateIdentityKey(env.IdentityKey); err != nil {
		return nil, fmt.Errorf("malformed identity key: %w", core.ErrUnauthenticated)
	}
	if !env.WithinSkew(s.now(), s.skewWindow) {
		return nil, fmt.Errorf("envelope timestamp outside allowed window: %w", core.ErrUnauthenticated)
	}

	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("envelope signature is not hex: %w", core.ErrUnauthenticated)
	}
	if err := s.verifier.Verify(ctx, env.CanonicalMessage(), sig, env.IdentityKey); err != nil {
		return nil, err
	}

	// only requests with a valid signature burn a nonce
	if s.replay.Seen(env.IdentityKey, env.Nonce) {
		return nil, fmt.Errorf("replayed nonce: %w", core.ErrUnauthenticated)
	}

	// never auto-register here: a protected call must not forge identities
	// into existence
	id, err := s.identities.Get(ctx, env.IdentityKey)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("identity not registered: %w", core.ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if err := s.identities.TouchLastActive(ctx, env.IdentityKey); err != nil {
		s.logger.Warn("failed to update last-active",
			zap.String("identity", env.IdentityKey), zap.Error(err))
	} else {
		id.LastActiveAt = s.now()
	}

	return id, nil
}
