package effects

import (
	"context"

	"github.com/raymoo/monoidal-effects/logging"
)

const (
	// EventApplied is emitted when an effect record is applied to its actors.
	EventApplied logging.EventType = "effects.applied"
	// EventCancelled is emitted when an effect record is removed, whatever the reason.
	EventCancelled logging.EventType = "effects.cancelled"
	// EventHibernated is emitted when an actor's timers fold back into stored durations.
	EventHibernated logging.EventType = "effects.hibernated"
	// EventDefrosted is emitted when an actor's stored durations resume ticking.
	EventDefrosted logging.EventType = "effects.defrosted"
)

// Reasons recorded on EventCancelled payloads.
const (
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
	ReasonDeath     = "death"
	ReasonBulk      = "bulk"
)

// AppliedPayload captures details about an effect application.
type AppliedPayload struct {
	EffectType string   `json:"effectType"`
	Actors     []string `json:"actors"`
	Quantities []string `json:"quantities,omitempty"`
	DurationMs int64    `json:"durationMs,omitempty"`
	Permanent  bool     `json:"permanent,omitempty"`
}

// CancelledPayload captures details about an effect removal.
type CancelledPayload struct {
	EffectType string   `json:"effectType"`
	Actors     []string `json:"actors,omitempty"`
	Reason     string   `json:"reason"`
	Index      string   `json:"index,omitempty"`
	Key        string   `json:"key,omitempty"`
}

// TimerPayload captures details about hibernation and defrost transitions.
type TimerPayload struct {
	Records     int   `json:"records"`
	RemainingMs int64 `json:"remainingMs,omitempty"`
}

// Applied publishes an effect application event.
func Applied(ctx context.Context, pub logging.Publisher, tick uint64, effect logging.EntityRef, payload AppliedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventApplied,
		Tick:     tick,
		Actor:    effect,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryEffects,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Cancelled publishes an effect removal event.
func Cancelled(ctx context.Context, pub logging.Publisher, tick uint64, effect logging.EntityRef, payload CancelledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCancelled,
		Tick:     tick,
		Actor:    effect,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryEffects,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Hibernated publishes a hibernation event for an actor.
func Hibernated(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TimerPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventHibernated,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryEffects,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Defrosted publishes a defrost event for an actor.
func Defrosted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload TimerPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDefrosted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryEffects,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
