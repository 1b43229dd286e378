package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/clearshot/handshake/ports"
)

const (
	// TopicChallengeCompleted carries callback completions.
	TopicChallengeCompleted = "handshake.challenge_completed"

	// TopicSessionIssued carries session token mints.
	TopicSessionIssued = "handshake.session_issued"
)

// ChallengeCompletedEvent announces that a wallet callback bound an identity
// to a challenge.
type ChallengeCompletedEvent struct {
	ChallengeID string    `json:"challenge_id"`
	IdentityKey string    `json:"identity_key"`
	At          time.Time `json:"at"`
}

// SessionIssuedEvent announces that a session token was minted.
type SessionIssuedEvent struct {
	IdentityKey string    `json:"identity_key"`
	At          time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface on a watermill
// publisher, so the transport (redis streams in production, go channels in
// tests) stays swappable.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new watermill-backed event publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishChallengeCompleted publishes a challenge completion event.
func (p *WatermillPublisher) PublishChallengeCompleted(ctx context.Context, challengeID, identityKey string) error {
	return p.publish(TopicChallengeCompleted, ChallengeCompletedEvent{
		ChallengeID: challengeID,
		IdentityKey: identityKey,
		At:          time.Now(),
	})
}

// PublishSessionIssued publishes a session issuance event.
func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, identityKey string) error {
	return p.publish(TopicSessionIssued, SessionIssuedEvent{
		IdentityKey: identityKey,
		At:          time.Now(),
	})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
