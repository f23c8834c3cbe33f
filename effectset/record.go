package effectset

import (
	"time"

	"github.com/raymoo/monoidal-effects/monoid"
)

// Record is one applied effect: the type it came from, the actors it touches,
// the tags and quantities it is indexed under, the value it contributes per
// quantity, and how long it lasts. Permanent records carry no meaningful
// Duration.
type Record struct {
	ID         uint64
	TypeName   string
	Actors     StringSet
	Tags       StringSet
	Quantities StringSet
	Values     map[string]monoid.Value
	Duration   time.Duration
	Permanent  bool
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Actors = r.Actors.Clone()
	out.Tags = r.Tags.Clone()
	out.Quantities = r.Quantities.Clone()
	out.Values = make(map[string]monoid.Value, len(r.Values))
	for quantity, value := range r.Values {
		out.Values[quantity] = value
	}
	return out
}
