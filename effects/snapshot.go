package effects

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/monoid"
)

// SnapshotVersion is the current wire version of serialised snapshots.
const SnapshotVersion = 1

type snapshotDocument struct {
	Version int              `json:"version"`
	NextID  uint64           `json:"nextId"`
	Records []recordDocument `json:"records"`
}

type recordDocument struct {
	ID         uint64                  `json:"id"`
	Type       string                  `json:"type"`
	Actors     effectset.StringSet     `json:"actors"`
	Tags       effectset.StringSet     `json:"tags,omitempty"`
	Quantities effectset.StringSet     `json:"quantities"`
	Values     map[string]monoid.Value `json:"values"`
	DurationMs int64                   `json:"durationMs,omitempty"`
	Permanent  bool                    `json:"permanent,omitempty"`
}

// Serialize renders the canonical records and the next-id counter as a
// versioned snapshot. Records with running timers store the time they have
// left as of now; the timers themselves keep running. Indexes, caches, and
// timer bookkeeping are never serialised; they rebuild on load.
func (m *Manager) Serialize(now time.Time) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("effects: serialize on a nil manager")
	}
	records := m.set.Records()
	doc := snapshotDocument{
		Version: SnapshotVersion,
		NextID:  m.set.NextID(),
		Records: make([]recordDocument, 0, len(records)),
	}
	for _, rec := range records {
		entry := recordDocument{
			ID:         rec.ID,
			Type:       rec.TypeName,
			Actors:     rec.Actors,
			Tags:       rec.Tags,
			Quantities: rec.Quantities,
			Values:     rec.Values,
			Permanent:  rec.Permanent,
		}
		if !rec.Permanent {
			duration := rec.Duration
			if timer, ok := m.timers[rec.ID]; ok {
				duration = timer.timeLeft(now)
			}
			entry.DurationMs = duration.Milliseconds()
		}
		doc.Records = append(doc.Records, entry)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("effects: serialize snapshot: %w", err)
	}
	return data, nil
}

// Deserialize replaces the manager's state with a snapshot: records restore
// into a rebuilt store, every record loads hibernating (timers restart on
// defrost), and the value cache starts cold. Snapshots referencing
// unregistered quantities, carrying mismatched value kinds, or of an
// unsupported version are rejected whole; the caller treats that as fatal.
func (m *Manager) Deserialize(data []byte) error {
	if m == nil {
		return fmt.Errorf("effects: deserialize on a nil manager")
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("effects: parse snapshot: %w", err)
	}
	if doc.Version != SnapshotVersion {
		return fmt.Errorf("effects: snapshot version %d is not supported", doc.Version)
	}
	records := make([]effectset.Record, 0, len(doc.Records))
	for _, entry := range doc.Records {
		for quantity, value := range entry.Values {
			alg, ok := m.quantities.Lookup(quantity)
			if !ok {
				return fmt.Errorf("effects: snapshot record %d: quantity %q is not registered: %w",
					entry.ID, quantity, monoid.ErrUnknownQuantity)
			}
			if value.Kind != alg.Identity().Kind {
				return fmt.Errorf("effects: snapshot record %d: quantity %q expects %s values, got %s",
					entry.ID, quantity, alg.Identity().Kind, value.Kind)
			}
		}
		rec := effectset.Record{
			ID:         entry.ID,
			TypeName:   entry.Type,
			Actors:     entry.Actors,
			Tags:       entry.Tags,
			Quantities: entry.Quantities,
			Values:     entry.Values,
			Duration:   time.Duration(entry.DurationMs) * time.Millisecond,
			Permanent:  entry.Permanent,
		}
		if rec.Actors == nil {
			rec.Actors = effectset.NewStringSet()
		}
		if rec.Tags == nil {
			rec.Tags = effectset.NewStringSet()
		}
		if rec.Quantities == nil {
			rec.Quantities = effectset.NewStringSet()
		}
		if rec.Values == nil {
			rec.Values = make(map[string]monoid.Value)
		}
		records = append(records, rec)
	}
	if err := m.set.Restore(records, doc.NextID); err != nil {
		return fmt.Errorf("effects: restore snapshot: %w", err)
	}
	m.cache = make(map[cacheKey]monoid.Value)
	m.timers = make(map[uint64]*timerState)
	return nil
}
