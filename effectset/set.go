// Package effectset stores effect records under a canonical id map plus
// secondary indexes by actor, tag, quantity, type name, and permanence. The
// store is purely mechanical: it assigns ids, keeps every index consistent
// with the canonical map, and knows nothing about durations, algebras, or
// actors beyond the names it files records under. It is not safe for
// concurrent use; the caller serialises access.
package effectset

import (
	"fmt"
	"time"
)

// IndexKind names a secondary index for generic lookups and bulk cancels.
type IndexKind uint8

const (
	IndexActor IndexKind = iota
	IndexTag
	IndexQuantity
	IndexType
)

var indexNames = map[IndexKind]string{
	IndexActor:    "actor",
	IndexTag:      "tag",
	IndexQuantity: "quantity",
	IndexType:     "type",
}

// String returns the wire name for the index kind.
func (k IndexKind) String() string {
	if name, ok := indexNames[k]; ok {
		return name
	}
	return fmt.Sprintf("index(%d)", uint8(k))
}

// ParseIndexKind maps a wire name back to its index kind.
func ParseIndexKind(name string) (IndexKind, bool) {
	for kind, candidate := range indexNames {
		if candidate == name {
			return kind, true
		}
	}
	return 0, false
}

// Set is the multi-index effect record store.
type Set struct {
	records      map[uint64]*Record
	nextID       uint64
	byActor      map[string]IDSet
	byTag        map[string]IDSet
	byQuantity   map[string]IDSet
	byType       map[string]IDSet
	byPermanence map[bool]IDSet
}

// NewSet constructs an empty store. The first inserted record receives id 1;
// ids are never reused, even after deletion.
func NewSet() *Set {
	return &Set{
		records:      make(map[uint64]*Record),
		nextID:       1,
		byActor:      make(map[string]IDSet),
		byTag:        make(map[string]IDSet),
		byQuantity:   make(map[string]IDSet),
		byType:       make(map[string]IDSet),
		byPermanence: make(map[bool]IDSet),
	}
}

// Len reports the number of stored records.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// NextID returns the id the next insert will assign.
func (s *Set) NextID() uint64 {
	if s == nil {
		return 0
	}
	return s.nextID
}

// Insert files the record under a freshly assigned id and every index it
// belongs to, returning the id. The caller's record is copied; later
// mutations of the argument do not reach the store.
func (s *Set) Insert(rec Record) uint64 {
	if s == nil {
		return 0
	}
	stored := rec.Clone()
	stored.ID = s.nextID
	s.nextID++
	s.records[stored.ID] = &stored
	s.indexRecord(&stored)
	return stored.ID
}

// Get returns the stored record for an id. The returned pointer is shared
// with the store; callers must treat it as read-only.
func (s *Set) Get(id uint64) (*Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

// Delete removes a record from the canonical map and every index bucket,
// pruning buckets that empty out. It returns a copy of the removed record so
// callers can roll back derived state.
func (s *Set) Delete(id uint64) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	delete(s.records, id)
	s.unindexRecord(rec)
	return rec.Clone(), true
}

// SetDuration overwrites the stored duration of a non-permanent record.
// Hibernation uses this to fold remaining timer time back into the record.
func (s *Set) SetDuration(id uint64, d time.Duration) bool {
	if s == nil {
		return false
	}
	rec, ok := s.records[id]
	if !ok || rec.Permanent {
		return false
	}
	rec.Duration = d
	return true
}

// ByActor returns the ids of records touching an actor. Lookups on unknown
// keys return an empty set, never nil.
func (s *Set) ByActor(actorID string) IDSet {
	if s == nil {
		return NewIDSet()
	}
	return cloneBucket(s.byActor, actorID)
}

// ByTag returns the ids of records carrying a tag.
func (s *Set) ByTag(tag string) IDSet {
	if s == nil {
		return NewIDSet()
	}
	return cloneBucket(s.byTag, tag)
}

// ByQuantity returns the ids of records contributing to a quantity.
func (s *Set) ByQuantity(quantity string) IDSet {
	if s == nil {
		return NewIDSet()
	}
	return cloneBucket(s.byQuantity, quantity)
}

// ByType returns the ids of records applied from a type.
func (s *Set) ByType(typeName string) IDSet {
	if s == nil {
		return NewIDSet()
	}
	return cloneBucket(s.byType, typeName)
}

// Permanent returns the ids of records with the given permanence.
func (s *Set) Permanent(permanent bool) IDSet {
	if s == nil {
		return NewIDSet()
	}
	if ids, ok := s.byPermanence[permanent]; ok {
		return ids.Clone()
	}
	return NewIDSet()
}

// With performs a generic index lookup, for callers that carry the index
// choice as data.
func (s *Set) With(kind IndexKind, key string) IDSet {
	if s == nil {
		return NewIDSet()
	}
	switch kind {
	case IndexActor:
		return s.ByActor(key)
	case IndexTag:
		return s.ByTag(key)
	case IndexQuantity:
		return s.ByQuantity(key)
	case IndexType:
		return s.ByType(key)
	default:
		return NewIDSet()
	}
}

// IDs returns the ids of every stored record.
func (s *Set) IDs() IDSet {
	if s == nil {
		return NewIDSet()
	}
	out := make(IDSet, len(s.records))
	for id := range s.records {
		out[id] = struct{}{}
	}
	return out
}

// Records returns deep copies of every stored record. Snapshot serialisation
// uses this; the copies are safe to hold across later mutations.
func (s *Set) Records() []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, 0, len(s.records))
	for _, id := range s.IDs().Sorted() {
		out = append(out, s.records[id].Clone())
	}
	return out
}

// Restore replaces the store's contents with the given records and next id,
// rebuilding every index from scratch. Records with duplicate ids, ids of
// zero, or ids at or above nextID reject the whole restore.
func (s *Set) Restore(records []Record, nextID uint64) error {
	if s == nil {
		return fmt.Errorf("effectset: restore into nil set")
	}
	if nextID == 0 {
		return fmt.Errorf("effectset: restore: next id must be positive")
	}
	fresh := NewSet()
	fresh.nextID = nextID
	for _, rec := range records {
		if rec.ID == 0 {
			return fmt.Errorf("effectset: restore: record with zero id")
		}
		if rec.ID >= nextID {
			return fmt.Errorf("effectset: restore: record id %d collides with next id %d", rec.ID, nextID)
		}
		if _, exists := fresh.records[rec.ID]; exists {
			return fmt.Errorf("effectset: restore: duplicate record id %d", rec.ID)
		}
		stored := rec.Clone()
		fresh.records[stored.ID] = &stored
		fresh.indexRecord(&stored)
	}
	*s = *fresh
	return nil
}

func cloneBucket(index map[string]IDSet, key string) IDSet {
	if ids, ok := index[key]; ok {
		return ids.Clone()
	}
	return NewIDSet()
}

func (s *Set) indexRecord(rec *Record) {
	for actor := range rec.Actors {
		addToIndex(s.byActor, actor, rec.ID)
	}
	for tag := range rec.Tags {
		addToIndex(s.byTag, tag, rec.ID)
	}
	for quantity := range rec.Quantities {
		addToIndex(s.byQuantity, quantity, rec.ID)
	}
	addToIndex(s.byType, rec.TypeName, rec.ID)
	if ids, ok := s.byPermanence[rec.Permanent]; ok {
		ids.Add(rec.ID)
	} else {
		s.byPermanence[rec.Permanent] = NewIDSet(rec.ID)
	}
}

func (s *Set) unindexRecord(rec *Record) {
	for actor := range rec.Actors {
		removeFromIndex(s.byActor, actor, rec.ID)
	}
	for tag := range rec.Tags {
		removeFromIndex(s.byTag, tag, rec.ID)
	}
	for quantity := range rec.Quantities {
		removeFromIndex(s.byQuantity, quantity, rec.ID)
	}
	removeFromIndex(s.byType, rec.TypeName, rec.ID)
	if ids, ok := s.byPermanence[rec.Permanent]; ok {
		ids.Remove(rec.ID)
		if ids.Len() == 0 {
			delete(s.byPermanence, rec.Permanent)
		}
	}
}

func addToIndex(index map[string]IDSet, key string, id uint64) {
	if ids, ok := index[key]; ok {
		ids.Add(id)
		return
	}
	index[key] = NewIDSet(id)
}

func removeFromIndex(index map[string]IDSet, key string, id uint64) {
	ids, ok := index[key]
	if !ok {
		return
	}
	ids.Remove(id)
	if ids.Len() == 0 {
		delete(index, key)
	}
}
