package core

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ChallengeState tracks where a challenge is in its lifecycle.
type ChallengeState string

const (
	// StatePending means the challenge has been issued and is waiting for the
	// external signer's callback.
	StatePending ChallengeState = "pending"

	// StateCompleted means a valid callback bound an identity to the
	// challenge before it expired.
	StateCompleted ChallengeState = "completed"

	// StateExpired means the TTL elapsed before completion. Terminal.
	StateExpired ChallengeState = "expired"
)

const (
	// DefaultChallengeTTL is how long a challenge stays usable after issuance.
	DefaultChallengeTTL = 5 * time.Minute

	// challengeIDBytes gives 256 bits of entropy per challenge id.
	challengeIDBytes = 32
)

// Challenge is a short-lived, unguessable token issued to start an
// authentication attempt. The id doubles as the message the external signer
// signs over.
type Challenge struct {
	ID            string
	State         ChallengeState
	BoundIdentity string // identity key, set once State == StateCompleted
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the challenge's TTL has elapsed at t. A challenge
// observed exactly at ExpiresAt counts as expired.
func (c *Challenge) Expired(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// NewChallengeID generates a fresh 256-bit random challenge id, hex encoded.
func NewChallengeID() (string, error) {
	buf := make([]byte, challengeIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidChallengeID reports whether s has the shape of an issued challenge id.
// Used to reject junk before touching the store.
func ValidChallengeID(s string) bool {
	if len(s) != challengeIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
