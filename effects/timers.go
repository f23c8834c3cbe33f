package effects

import (
	"context"
	"sort"
	"time"

	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/logging"
	loggingeffects "github.com/raymoo/monoidal-effects/logging/effects"
)

// timerState tracks one running expiry timer. remaining is the stored
// duration the timer started from; the record expires at startedAt plus
// remaining. active holds the connected actors keeping the timer alive.
type timerState struct {
	startedAt time.Time
	remaining time.Duration
	active    effectset.StringSet
}

func (t *timerState) expiresAt() time.Time {
	return t.startedAt.Add(t.remaining)
}

func (t *timerState) timeLeft(now time.Time) time.Duration {
	left := t.expiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// AdvanceTick moves the manager to the next loop tick and sweeps expired
// timers. It returns how many records expired.
func (m *Manager) AdvanceTick(now time.Time) int {
	if m == nil {
		return 0
	}
	m.currentTick++
	return m.Sweep(now)
}

// Sweep cancels every record whose timer has run out. Expiry is polled, so a
// record can outlive its duration by up to one sweep interval; the host
// chooses the cadence.
func (m *Manager) Sweep(now time.Time) int {
	if m == nil || len(m.timers) == 0 {
		return 0
	}
	expired := make([]uint64, 0)
	for id, timer := range m.timers {
		if !now.Before(timer.expiresAt()) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	count := 0
	for _, id := range expired {
		if m.cancel(id, loggingeffects.ReasonExpired, "", "") {
			count++
		}
	}
	return count
}

// Hibernate removes a disconnecting actor from its records' timer
// bookkeeping. A timer whose last connected actor leaves folds its remaining
// time back into the record's stored duration and stops; the record survives,
// ready to resume on defrost. It returns how many timers the actor left.
func (m *Manager) Hibernate(actorID string, now time.Time) int {
	if m == nil {
		return 0
	}
	touched := 0
	for _, id := range m.set.ByActor(actorID).Sorted() {
		timer, ok := m.timers[id]
		if !ok || !timer.active.Has(actorID) {
			continue
		}
		timer.active.Remove(actorID)
		touched++
		if timer.active.Len() > 0 {
			continue
		}
		m.set.SetDuration(id, timer.timeLeft(now))
		delete(m.timers, id)
	}
	if touched > 0 {
		loggingeffects.Hibernated(context.Background(), m.publisher, m.currentTick,
			logging.ActorRef(actorID), loggingeffects.TimerPayload{Records: touched}, nil)
	}
	return touched
}

// Defrost resumes a reconnecting actor: hibernating records restart their
// timers from the stored duration, shared timers regain the actor, overlay
// entries come back for visible types, and every quantity the actor's records
// touch is pushed again, since no apply callbacks fired while the actor was
// away. It returns how many timers restarted.
func (m *Manager) Defrost(actorID string, now time.Time) int {
	if m == nil {
		return 0
	}
	ids := m.set.ByActor(actorID)
	resumed := 0
	quantities := effectset.NewStringSet()
	for _, id := range ids.Sorted() {
		rec, ok := m.set.Get(id)
		if !ok {
			continue
		}
		for quantity := range rec.Quantities {
			quantities.Add(quantity)
		}
		if !rec.Permanent {
			if timer, ok := m.timers[id]; ok {
				timer.active.Add(actorID)
			} else {
				m.timers[id] = &timerState{
					startedAt: now,
					remaining: rec.Duration,
					active:    effectset.NewStringSet(actorID),
				}
				resumed++
			}
		}
		if m.display != nil {
			if tpl, ok := m.types.Lookup(rec.TypeName); ok && !tpl.Hidden {
				m.display.AddEntry(actorID, DisplayEntry{
					EffectID:  id,
					TypeName:  rec.TypeName,
					Name:      displayName(tpl),
					Icon:      tpl.Icon,
					Permanent: rec.Permanent,
				})
			}
		}
	}
	for _, quantity := range quantities.Sorted() {
		value, err := m.QuantityValue(quantity, actorID)
		if err != nil {
			continue
		}
		if alg, ok := m.quantities.Lookup(quantity); ok {
			alg.Push(actorID, value)
		}
	}
	if ids.Len() > 0 {
		loggingeffects.Defrosted(context.Background(), m.publisher, m.currentTick,
			logging.ActorRef(actorID), loggingeffects.TimerPayload{Records: resumed}, nil)
	}
	return resumed
}

// RemainingTime reports how long a record has left: the live timer's
// remaining time when one is running, otherwise the stored duration. The
// second result marks permanent records, the third whether the id is live.
func (m *Manager) RemainingTime(id uint64, now time.Time) (time.Duration, bool, bool) {
	if m == nil {
		return 0, false, false
	}
	rec, ok := m.set.Get(id)
	if !ok {
		return 0, false, false
	}
	if rec.Permanent {
		return 0, true, true
	}
	if timer, ok := m.timers[id]; ok {
		return timer.timeLeft(now), false, true
	}
	return rec.Duration, false, true
}

// RunningTimers reports how many expiry timers are live.
func (m *Manager) RunningTimers() int {
	if m == nil {
		return 0
	}
	return len(m.timers)
}
