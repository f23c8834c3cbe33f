// Package hud tracks per-actor overlay entries for visible effects. The
// engine adds and removes entries through the display hook; the runner
// refreshes remaining-time text on its cadence; transports read snapshots.
package hud

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/raymoo/monoidal-effects/effects"
)

// Entry is one overlay line for one effect on one actor.
type Entry struct {
	EffectID  uint64 `json:"effectId"`
	TypeName  string `json:"type"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Permanent bool   `json:"permanent"`
	Remaining string `json:"remaining"`
	ExpiresMs int64  `json:"expiresMs"`
}

// Tracker holds overlay entries keyed by actor and effect id. It is safe for
// concurrent use: the runner writes, transports read.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]map[uint64]Entry
}

var _ effects.Display = (*Tracker)(nil)

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]map[uint64]Entry)}
}

// AddEntry registers an overlay line for a freshly applied effect. Remaining
// text starts empty until the next refresh.
func (t *Tracker) AddEntry(actorID string, entry effects.DisplayEntry) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	actor, ok := t.entries[actorID]
	if !ok {
		actor = make(map[uint64]Entry)
		t.entries[actorID] = actor
	}
	line := Entry{
		EffectID:  entry.EffectID,
		TypeName:  entry.TypeName,
		Name:      entry.Name,
		Icon:      entry.Icon,
		Permanent: entry.Permanent,
	}
	if entry.Permanent {
		line.Remaining = "permanent"
	}
	actor[entry.EffectID] = line
}

// RemoveEntry drops the overlay line for a cancelled effect.
func (t *Tracker) RemoveEntry(actorID string, effectID uint64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	actor, ok := t.entries[actorID]
	if !ok {
		return
	}
	delete(actor, effectID)
	if len(actor) == 0 {
		delete(t.entries, actorID)
	}
}

// RemoveActor drops every overlay line for an actor, for use when the actor
// leaves and the overlay disappears with them.
func (t *Tracker) RemoveActor(actorID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, actorID)
}

// Refresh recomputes remaining-time text from the engine's timers. Entries
// whose records are gone are dropped; hibernating records show their stored
// remainder.
func (t *Tracker) Refresh(mgr *effects.Manager, now time.Time) {
	if t == nil || mgr == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for actorID, actor := range t.entries {
		for effectID, line := range actor {
			remaining, permanent, ok := mgr.RemainingTime(effectID, now)
			if !ok {
				delete(actor, effectID)
				continue
			}
			if permanent {
				line.Permanent = true
				line.Remaining = "permanent"
				line.ExpiresMs = 0
			} else {
				line.Permanent = false
				line.Remaining = formatRemaining(remaining)
				line.ExpiresMs = remaining.Milliseconds()
			}
			actor[effectID] = line
		}
		if len(actor) == 0 {
			delete(t.entries, actorID)
		}
	}
}

// Snapshot returns the actor's overlay lines sorted by effect id.
func (t *Tracker) Snapshot(actorID string) []Entry {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	actor, ok := t.entries[actorID]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(actor))
	for _, line := range actor {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectID < out[j].EffectID })
	return out
}

// Actors lists actors with at least one overlay line, sorted.
func (t *Tracker) Actors() []string {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for actorID := range t.entries {
		out = append(out, actorID)
	}
	sort.Strings(out)
	return out
}

// Len reports the total number of overlay lines.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, actor := range t.entries {
		total += len(actor)
	}
	return total
}

// formatRemaining rounds up so a line never reads 0s while its timer still
// runs.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(math.Ceil(d.Seconds()))
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
