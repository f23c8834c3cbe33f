package runner

import (
	"time"

	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/monoid"
)

// CommandType enumerates the intents the loop executes.
type CommandType string

const (
	CommandApply    CommandType = "Apply"
	CommandCancel   CommandType = "Cancel"
	CommandCancelBy CommandType = "CancelBy"
	CommandJoin     CommandType = "Join"
	CommandLeave    CommandType = "Leave"
	CommandDeath    CommandType = "Death"
	CommandSave     CommandType = "Save"
)

const (
	// RejectQueueLimit indicates a command was dropped due to per-actor
	// queue throttling.
	RejectQueueLimit = "queue_limit"
	// RejectQueueFull indicates the global command buffer is saturated.
	RejectQueueFull = "queue_full"
)

// ApplyCommand carries an effect application.
type ApplyCommand struct {
	TypeName  string                  `json:"type"`
	Actors    []string                `json:"actors"`
	Duration  time.Duration           `json:"duration"`
	Permanent bool                    `json:"permanent,omitempty"`
	Values    map[string]monoid.Value `json:"values,omitempty"`
}

// CancelCommand cancels a single record by id.
type CancelCommand struct {
	EffectID uint64 `json:"effectId"`
}

// CancelByCommand cancels every record matching an index key, optionally
// narrowed to one actor.
type CancelByCommand struct {
	Kind  effectset.IndexKind `json:"kind"`
	Key   string              `json:"key"`
	Actor string              `json:"actor,omitempty"`
}

// Command represents an intent captured for processing on the next tick.
// Join, Leave, and Death target ActorID directly.
type Command struct {
	Type     CommandType      `json:"type"`
	ActorID  string           `json:"actorId"`
	IssuedAt time.Time        `json:"issuedAt"`
	Apply    *ApplyCommand    `json:"apply,omitempty"`
	Cancel   *CancelCommand   `json:"cancel,omitempty"`
	CancelBy *CancelByCommand `json:"cancelBy,omitempty"`
}
