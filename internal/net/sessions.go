package net

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session pairs an opaque token with the actor it authenticates.
type session struct {
	ID      string
	ActorID string
	Started time.Time
}

type sessionTable struct {
	mu   sync.Mutex
	byID map[string]session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: make(map[string]session)}
}

func (t *sessionTable) create(actorID string, now time.Time) session {
	sess := session{ID: uuid.New().String(), ActorID: actorID, Started: now}
	t.mu.Lock()
	t.byID[sess.ID] = sess
	t.mu.Unlock()
	return sess
}

func (t *sessionTable) resolve(id string) (session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.byID[id]
	return sess, ok
}

// dropActor removes every session the actor holds and returns their ids.
func (t *sessionTable) dropActor(actorID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := make([]string, 0, 1)
	for id, sess := range t.byID {
		if sess.ActorID == actorID {
			delete(t.byID, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (t *sessionTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
