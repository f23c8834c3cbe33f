package persistence

import (
	"context"

	"github.com/raymoo/monoidal-effects/logging"
)

const (
	// EventSaved is emitted after a snapshot lands in the primary table.
	EventSaved logging.EventType = "persistence.saved"
	// EventBackedUp is emitted after a snapshot is copied to the backup table.
	EventBackedUp logging.EventType = "persistence.backed_up"
	// EventSaveFailed is emitted when a save attempt errors.
	EventSaveFailed logging.EventType = "persistence.save_failed"
	// EventLoaded is emitted after a snapshot restores on startup.
	EventLoaded logging.EventType = "persistence.loaded"
)

// SavePayload captures details about a snapshot write.
type SavePayload struct {
	Bytes   int    `json:"bytes"`
	Records int    `json:"records"`
	Reason  string `json:"reason,omitempty"`
}

// LoadPayload captures details about a snapshot restore.
type LoadPayload struct {
	Bytes   int `json:"bytes"`
	Records int `json:"records"`
	Version int `json:"version"`
}

// FailurePayload captures a failed persistence operation.
type FailurePayload struct {
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

// Saved publishes a successful snapshot write.
func Saved(ctx context.Context, pub logging.Publisher, tick uint64, store logging.EntityRef, payload SavePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSaved,
		Tick:     tick,
		Actor:    store,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPersistence,
		Payload:  payload,
	})
}

// BackedUp publishes a successful backup copy.
func BackedUp(ctx context.Context, pub logging.Publisher, tick uint64, store logging.EntityRef, payload SavePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBackedUp,
		Tick:     tick,
		Actor:    store,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPersistence,
		Payload:  payload,
	})
}

// SaveFailed publishes a failed snapshot write.
func SaveFailed(ctx context.Context, pub logging.Publisher, tick uint64, store logging.EntityRef, payload FailurePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSaveFailed,
		Tick:     tick,
		Actor:    store,
		Severity: logging.SeverityError,
		Category: logging.CategoryPersistence,
		Payload:  payload,
	})
}

// Loaded publishes a successful snapshot restore.
func Loaded(ctx context.Context, pub logging.Publisher, tick uint64, store logging.EntityRef, payload LoadPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLoaded,
		Tick:     tick,
		Actor:    store,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPersistence,
		Payload:  payload,
	})
}
