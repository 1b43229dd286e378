package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// AudienceSession scopes session tokens so they cannot be confused with any
// other token this service might mint later.
const AudienceSession = "session:access"

// DefaultSessionTTL is the validity window for minted session tokens.
const DefaultSessionTTL = 7 * 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs. Tokens
// are self-contained: the subject carries the bound identity key, so
// validation needs no store lookup.
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	ttl     time.Duration
}

// NewJWTTokenizer creates a tokenizer signing with signKey. A zero ttl falls
// back to DefaultSessionTTL.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, ttl time.Duration) *JWTTokenizer {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTTokenizer{signKey: signKey, ttl: ttl}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// IssueSession mints a session token bound to identityKey.
func (j *JWTTokenizer) IssueSession(identityKey string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityKey,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSession validates a session token and returns the bound identity key.
func (j *JWTTokenizer) ParseSession(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", core.ErrTokenExpired
		}
		return "", fmt.Errorf("failed to parse session token: %w", core.ErrInvalidToken)
	}
	if !token.Valid {
		return "", core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return "", core.ErrInvalidToken
	}
	return claims.Subject, nil
}
