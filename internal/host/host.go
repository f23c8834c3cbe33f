// Package host is the in-memory actor roster for the demo server. It stands
// in for a real game host: it tracks joins and leaves, and receives the
// merged quantity values the engine pushes. Handles reset to host defaults on
// join, so values for effects that lapsed while an actor was away simply
// never reappear.
package host

import (
	"sort"
	"sync"
	"time"
)

// Handle is a point-in-time copy of one actor's pushed state.
type Handle struct {
	ID         string             `json:"id"`
	Physics    map[string]float64 `json:"physics,omitempty"`
	Privileges map[string]bool    `json:"privileges,omitempty"`
	ViewOffset [3]float64         `json:"viewOffset"`
	JoinedAt   time.Time          `json:"joinedAt"`
}

type handleState struct {
	physics    map[string]float64
	privileges map[string]bool
	viewOffset [3]float64
	joinedAt   time.Time
}

// Host holds connected actors. Safe for concurrent use: the runner writes,
// transports read.
type Host struct {
	mu     sync.RWMutex
	actors map[string]*handleState
}

// NewHost constructs an empty roster.
func NewHost() *Host {
	return &Host{actors: make(map[string]*handleState)}
}

// Join adds an actor with default state. Joining twice reports false and
// leaves the existing handle alone.
func (h *Host) Join(actorID string, now time.Time) bool {
	if h == nil || actorID == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.actors[actorID]; exists {
		return false
	}
	h.actors[actorID] = &handleState{
		physics:    make(map[string]float64),
		privileges: make(map[string]bool),
		joinedAt:   now,
	}
	return true
}

// Leave removes an actor, reporting whether they were connected.
func (h *Host) Leave(actorID string) bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.actors[actorID]; !exists {
		return false
	}
	delete(h.actors, actorID)
	return true
}

// Connected reports whether the actor is on the roster.
func (h *Host) Connected(actorID string) bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.actors[actorID]
	return ok
}

// ConnectedIDs lists the roster in sorted order.
func (h *Host) ConnectedIDs() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.actors))
	for actorID := range h.actors {
		out = append(out, actorID)
	}
	sort.Strings(out)
	return out
}

// Len reports how many actors are connected.
func (h *Host) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

// Resolve returns a copy of the actor's handle state.
func (h *Host) Resolve(actorID string) (Handle, bool) {
	if h == nil {
		return Handle{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.actors[actorID]
	if !ok {
		return Handle{}, false
	}
	handle := Handle{
		ID:         actorID,
		Physics:    make(map[string]float64, len(state.physics)),
		Privileges: make(map[string]bool, len(state.privileges)),
		ViewOffset: state.viewOffset,
		JoinedAt:   state.joinedAt,
	}
	for attribute, scale := range state.physics {
		handle.Physics[attribute] = scale
	}
	for privilege, granted := range state.privileges {
		handle.Privileges[privilege] = granted
	}
	return handle, true
}

// SetPhysics stores a physics override scale. Pushes for actors that already
// left are dropped.
func (h *Host) SetPhysics(actorID, attribute string, scale float64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.actors[actorID]
	if !ok {
		return
	}
	state.physics[attribute] = scale
}

// SetPrivilege grants or revokes a privilege flag. Pushes for actors that
// already left are dropped.
func (h *Host) SetPrivilege(actorID, privilege string, granted bool) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.actors[actorID]
	if !ok {
		return
	}
	state.privileges[privilege] = granted
}

// SetViewOffset stores the camera offset. Pushes for actors that already
// left are dropped.
func (h *Host) SetViewOffset(actorID string, offset [3]float64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.actors[actorID]
	if !ok {
		return
	}
	state.viewOffset = offset
}

// PhysicsScale reads one physics attribute, defaulting to the host's neutral
// scale of 1 when nothing was pushed.
func (h *Host) PhysicsScale(actorID, attribute string) float64 {
	if h == nil {
		return 1
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.actors[actorID]
	if !ok {
		return 1
	}
	if scale, set := state.physics[attribute]; set {
		return scale
	}
	return 1
}

// Privilege reads one privilege flag, defaulting to false.
func (h *Host) Privilege(actorID, privilege string) bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.actors[actorID]
	if !ok {
		return false
	}
	return state.privileges[privilege]
}
