package effects

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/logging"
	loggingeffects "github.com/raymoo/monoidal-effects/logging/effects"
	"github.com/raymoo/monoidal-effects/monoid"
)

// ActorProvider reports which actors currently have live handles. Values are
// only pushed to connected actors; everyone else catches up on defrost.
type ActorProvider interface {
	Connected(actorID string) bool
}

// ConnectedFunc adapts a plain function to ActorProvider.
type ConnectedFunc func(actorID string) bool

// Connected satisfies ActorProvider.
func (f ConnectedFunc) Connected(actorID string) bool {
	if f == nil {
		return false
	}
	return f(actorID)
}

// DisplayEntry describes one overlay line for a visible effect.
type DisplayEntry struct {
	EffectID  uint64
	TypeName  string
	Name      string
	Icon      string
	Permanent bool
}

// Display receives overlay registrations for non-hidden effects. Remaining
// time is not pushed here; overlays poll RemainingTime at their own cadence.
type Display interface {
	AddEntry(actorID string, entry DisplayEntry)
	RemoveEntry(actorID string, effectID uint64)
}

// Application carries the parameters of one effect application. Values is
// consulted for dynamic types only and must cover the type's declared
// quantities exactly.
type Application struct {
	TypeName  string
	Actors    []string
	Duration  time.Duration
	Permanent bool
	Values    map[string]monoid.Value
}

// ManagerConfig wires a manager's collaborators. Quantities and Types are
// required; the rest default to no-ops (and to treating every actor as
// connected).
type ManagerConfig struct {
	Quantities *monoid.Registry
	Types      *TypeRegistry
	Actors     ActorProvider
	Display    Display
	Publisher  logging.Publisher
}

// Manager owns the effect records, their timers, and the per-actor value
// cache.
type Manager struct {
	quantities  *monoid.Registry
	types       *TypeRegistry
	set         *effectset.Set
	cache       map[cacheKey]monoid.Value
	timers      map[uint64]*timerState
	actors      ActorProvider
	display     Display
	publisher   logging.Publisher
	currentTick uint64
}

// NewManager constructs a manager from its collaborators.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Quantities == nil {
		return nil, fmt.Errorf("effects: manager requires a quantity registry: %w", monoid.ErrConfiguration)
	}
	if cfg.Types == nil {
		return nil, fmt.Errorf("effects: manager requires a type registry: %w", monoid.ErrConfiguration)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	actors := cfg.Actors
	if actors == nil {
		actors = ConnectedFunc(func(string) bool { return true })
	}
	return &Manager{
		quantities: cfg.Quantities,
		types:      cfg.Types,
		set:        effectset.NewSet(),
		cache:      make(map[cacheKey]monoid.Value),
		timers:     make(map[uint64]*timerState),
		actors:     actors,
		display:    cfg.Display,
		publisher:  publisher,
	}, nil
}

// CurrentTick returns the loop tick the manager last advanced to.
func (m *Manager) CurrentTick() uint64 {
	if m == nil {
		return 0
	}
	return m.currentTick
}

// Count reports the number of live effect records.
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}
	return m.set.Len()
}

// Apply creates an effect record from a registered type and pushes the
// recomputed merged values onto the affected actors. It returns the record id.
func (m *Manager) Apply(app Application, now time.Time) (uint64, error) {
	if m == nil {
		return 0, fmt.Errorf("effects: apply on a nil manager: %w", monoid.ErrConfiguration)
	}
	tpl, err := m.types.Resolve(app.TypeName)
	if err != nil {
		return 0, err
	}
	if len(app.Actors) == 0 {
		return 0, fmt.Errorf("effects: apply %q: no actors given: %w", app.TypeName, monoid.ErrConfiguration)
	}
	if !app.Permanent && app.Duration <= 0 {
		return 0, fmt.Errorf("effects: apply %q: non-permanent effects need a positive duration: %w", app.TypeName, monoid.ErrConfiguration)
	}
	var values map[string]monoid.Value
	if tpl.Dynamic {
		if err := m.types.checkValues(tpl.Name, tpl.Quantities, app.Values); err != nil {
			return 0, err
		}
		values = cloneValues(app.Values)
	} else {
		if len(app.Values) != 0 {
			return 0, fmt.Errorf("effects: apply %q: static types do not take caller values: %w", app.TypeName, monoid.ErrConfiguration)
		}
		values = cloneValues(tpl.Values)
	}

	actors := effectset.NewStringSet(app.Actors...)
	previous := m.snapshotValues(actors, tpl.Quantities)
	id := m.set.Insert(effectset.Record{
		TypeName:   tpl.Name,
		Actors:     actors,
		Tags:       tpl.Tags.Clone(),
		Quantities: tpl.Quantities.Clone(),
		Values:     values,
		Duration:   app.Duration,
		Permanent:  app.Permanent,
	})
	if !app.Permanent {
		active := effectset.NewStringSet()
		for actor := range actors {
			if m.actors.Connected(actor) {
				active.Add(actor)
			}
		}
		// With every actor offline the record starts out hibernating.
		if active.Len() > 0 {
			m.timers[id] = &timerState{startedAt: now, remaining: app.Duration, active: active}
		}
	}
	m.refreshQuantities(actors, tpl.Quantities, previous)
	if m.display != nil && !tpl.Hidden {
		entry := DisplayEntry{
			EffectID:  id,
			TypeName:  tpl.Name,
			Name:      displayName(tpl),
			Icon:      tpl.Icon,
			Permanent: app.Permanent,
		}
		for _, actor := range actors.Sorted() {
			m.display.AddEntry(actor, entry)
		}
	}

	payload := loggingeffects.AppliedPayload{
		EffectType: tpl.Name,
		Actors:     actors.Sorted(),
		Quantities: tpl.Quantities.Sorted(),
		Permanent:  app.Permanent,
	}
	if !app.Permanent {
		payload.DurationMs = app.Duration.Milliseconds()
	}
	loggingeffects.Applied(context.Background(), m.publisher, m.currentTick, effectRef(id), payload, nil)
	return id, nil
}

// Cancel removes an effect record and pushes the recomputed merged values,
// now falling back toward each quantity's identity. Cancelling an id that is
// no longer live is a no-op returning false.
func (m *Manager) Cancel(id uint64) bool {
	return m.cancel(id, loggingeffects.ReasonCancelled, "", "")
}

// CancelBy cancels every record filed under an index key, optionally
// restricted to records touching one actor. It returns how many records were
// cancelled.
func (m *Manager) CancelBy(kind effectset.IndexKind, key string, actorFilter string) int {
	if m == nil {
		return 0
	}
	ids := m.set.With(kind, key)
	if actorFilter != "" {
		ids = ids.Intersect(m.set.ByActor(actorFilter))
	}
	cancelled := 0
	for _, id := range ids.Sorted() {
		if m.cancel(id, loggingeffects.ReasonBulk, kind.String(), key) {
			cancelled++
		}
	}
	return cancelled
}

// HandleDeath cancels every record touching the dying actor whose type opted
// into cancel-on-death. Records of types the registry no longer knows are
// left alone.
func (m *Manager) HandleDeath(actorID string) int {
	if m == nil {
		return 0
	}
	cancelled := 0
	for _, id := range m.set.ByActor(actorID).Sorted() {
		rec, ok := m.set.Get(id)
		if !ok {
			continue
		}
		tpl, ok := m.types.Lookup(rec.TypeName)
		if !ok || !tpl.CancelOnDeath {
			continue
		}
		if m.cancel(id, loggingeffects.ReasonDeath, "", "") {
			cancelled++
		}
	}
	return cancelled
}

// EffectsFor returns the ids of the records touching an actor.
func (m *Manager) EffectsFor(actorID string) effectset.IDSet {
	if m == nil {
		return effectset.NewIDSet()
	}
	return m.set.ByActor(actorID)
}

// Record returns a copy of a live effect record.
func (m *Manager) Record(id uint64) (effectset.Record, bool) {
	if m == nil {
		return effectset.Record{}, false
	}
	rec, ok := m.set.Get(id)
	if !ok {
		return effectset.Record{}, false
	}
	return rec.Clone(), true
}

func (m *Manager) cancel(id uint64, reason, index, key string) bool {
	rec, ok := m.set.Get(id)
	if !ok {
		return false
	}
	previous := m.snapshotValues(rec.Actors, rec.Quantities)
	removed, _ := m.set.Delete(id)
	delete(m.timers, id)
	m.refreshQuantities(removed.Actors, removed.Quantities, previous)
	if m.display != nil {
		for _, actor := range removed.Actors.Sorted() {
			m.display.RemoveEntry(actor, id)
		}
	}
	loggingeffects.Cancelled(context.Background(), m.publisher, m.currentTick, effectRef(id), loggingeffects.CancelledPayload{
		EffectType: removed.TypeName,
		Actors:     removed.Actors.Sorted(),
		Reason:     reason,
		Index:      index,
		Key:        key,
	}, nil)
	return true
}

// snapshotValues captures the current merged value of every (actor, quantity)
// pair so refreshQuantities can report transitions after a mutation.
func (m *Manager) snapshotValues(actors, quantities effectset.StringSet) map[cacheKey]monoid.Value {
	previous := make(map[cacheKey]monoid.Value, actors.Len()*quantities.Len())
	for actor := range actors {
		for quantity := range quantities {
			value, err := m.QuantityValue(quantity, actor)
			if err != nil {
				continue
			}
			previous[cacheKey{actor: actor, quantity: quantity}] = value
		}
	}
	return previous
}

// refreshQuantities invalidates and recomputes the merged value of every
// (actor, quantity) pair, pushes the result to connected actors, and fires
// change notifications for pairs whose value moved.
func (m *Manager) refreshQuantities(actors, quantities effectset.StringSet, previous map[cacheKey]monoid.Value) {
	for _, actor := range actors.Sorted() {
		for _, quantity := range quantities.Sorted() {
			key := cacheKey{actor: actor, quantity: quantity}
			delete(m.cache, key)
			next, err := m.QuantityValue(quantity, actor)
			if err != nil {
				continue
			}
			alg, ok := m.quantities.Lookup(quantity)
			if !ok {
				continue
			}
			if m.actors.Connected(actor) {
				alg.Push(actor, next)
			}
			if prev, seen := previous[key]; seen && !prev.Equal(next) {
				alg.NotifyChange(actor, prev, next)
			}
		}
	}
}

func cloneValues(values map[string]monoid.Value) map[string]monoid.Value {
	out := make(map[string]monoid.Value, len(values))
	for quantity, value := range values {
		out[quantity] = value
	}
	return out
}

func displayName(tpl *Type) string {
	if tpl.DisplayName != "" {
		return tpl.DisplayName
	}
	return tpl.Name
}

func effectRef(id uint64) logging.EntityRef {
	return logging.EffectRef(strconv.FormatUint(id, 10))
}
