package core

import "errors"

var (
	// ErrInvalidInput is returned for malformed identity keys or challenge ids,
	// before any store access happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a challenge or identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a challenge has already been completed,
	// including by the loser of a concurrent completion race.
	ErrConflict = errors.New("challenge already completed")

	// ErrExpired is returned when a challenge's TTL has elapsed.
	ErrExpired = errors.New("challenge expired")

	// ErrUnauthenticated is returned when a request carries a missing or
	// invalid envelope, or claims an unregistered identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrVerificationFailed is returned when a signature does not match the
	// claimed identity key.
	ErrVerificationFailed = errors.New("signature verification failed")

	// ErrVerifierUnavailable is returned when the signature verifier could not
	// be reached after retries. Distinct from ErrVerificationFailed so callers
	// never mistake an outage for a bad signature.
	ErrVerifierUnavailable = errors.New("signature verifier unavailable")

	// ErrInvalidToken is returned when a session token cannot be parsed or
	// fails validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a session token's expiry has passed.
	ErrTokenExpired = errors.New("token has expired")
)
