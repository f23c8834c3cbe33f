package network

import (
	"context"

	"github.com/raymoo/monoidal-effects/logging"
)

const (
	// EventJoined is emitted when an actor's session connects.
	EventJoined logging.EventType = "network.joined"
	// EventLeft is emitted when an actor's session disconnects.
	EventLeft logging.EventType = "network.left"
)

// SessionPayload captures session lifecycle details.
type SessionPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Remote    string `json:"remote,omitempty"`
}

// Joined publishes a session connect event.
func Joined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// Left publishes a session disconnect event.
func Left(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
