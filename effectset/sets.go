package effectset

import (
	"encoding/json"
	"sort"
)

// IDSet is a genuine set of record identifiers.
type IDSet map[uint64]struct{}

// NewIDSet builds a set from the given identifiers.
func NewIDSet(ids ...uint64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an identifier.
func (s IDSet) Add(id uint64) {
	s[id] = struct{}{}
}

// Remove drops an identifier if present.
func (s IDSet) Remove(id uint64) {
	delete(s, id)
}

// Has reports membership.
func (s IDSet) Has(id uint64) bool {
	_, ok := s[id]
	return ok
}

// Len reports the number of members.
func (s IDSet) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Union returns a new set holding the members of both sets.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Intersect returns a new set holding the members present in both sets.
func (s IDSet) Intersect(other IDSet) IDSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet)
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StringSet is a set of names: actors, tags, or quantities.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given members.
func NewStringSet(members ...string) StringSet {
	s := make(StringSet, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Add inserts a member.
func (s StringSet) Add(member string) {
	s[member] = struct{}{}
}

// Remove drops a member if present.
func (s StringSet) Remove(member string) {
	delete(s, member)
}

// Has reports membership.
func (s StringSet) Has(member string) bool {
	_, ok := s[member]
	return ok
}

// Len reports the number of members.
func (s StringSet) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s StringSet) Clone() StringSet {
	out := make(StringSet, len(s))
	for m := range s {
		out[m] = struct{}{}
	}
	return out
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array so snapshots stay stable.
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of members.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	out := make(StringSet, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	*s = out
	return nil
}
