package ports

// ReplayGuard tracks envelope nonces seen within the skew window so a
// captured request cannot be replayed even with a fresh-enough timestamp.
type ReplayGuard interface {
	// Seen atomically records the nonce for identityKey and reports whether
	// it had already been recorded within the window.
	Seen(identityKey, nonce string) bool
}
