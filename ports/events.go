package ports

import "context"

// EventPublisher notifies other instances and downstream services about
// authentication lifecycle milestones.
type EventPublisher interface {
	// PublishChallengeCompleted announces that a callback bound identityKey
	// to challengeID.
	PublishChallengeCompleted(ctx context.Context, challengeID, identityKey string) error

	// PublishSessionIssued announces that a session token was minted for
	// identityKey.
	PublishSessionIssued(ctx context.Context, identityKey string) error
}
