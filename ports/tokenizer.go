package ports

import "time"

// Tokenizer mints and validates bearer session tokens bound to an identity
// key. Tokens are self-contained: validation needs no store lookup.
type Tokenizer interface {
	// IssueSession returns a signed token bound to identityKey together with
	// its expiry.
	IssueSession(identityKey string) (token string, expiresAt time.Time, err error)

	// ParseSession validates token and returns the bound identity key.
	// Returns core.ErrTokenExpired or core.ErrInvalidToken on failure.
	ParseSession(token string) (identityKey string, err error)
}
