package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the standard claims for session tokens; the subject is
// the bound identity key.
type SessionClaims struct {
	jwt.RegisteredClaims
}
