package effects

import (
	"github.com/raymoo/monoidal-effects/monoid"
)

// cacheKey identifies one memoised merged value.
type cacheKey struct {
	actor    string
	quantity string
}

// QuantityValue returns the merged value of a quantity for an actor: the fold
// of every live record touching both, memoised until the next insert or
// delete on the pair. An actor with no contributing records folds to the
// quantity's identity.
func (m *Manager) QuantityValue(quantity, actorID string) (monoid.Value, error) {
	if m == nil {
		return monoid.Value{}, monoid.ErrUnknownQuantity
	}
	alg, err := m.quantities.Resolve(quantity)
	if err != nil {
		return monoid.Value{}, err
	}
	key := cacheKey{actor: actorID, quantity: quantity}
	if cached, ok := m.cache[key]; ok {
		return cached, nil
	}
	ids := m.set.ByQuantity(quantity).Intersect(m.set.ByActor(actorID))
	values := make([]monoid.Value, 0, ids.Len())
	for _, id := range ids.Sorted() {
		rec, ok := m.set.Get(id)
		if !ok {
			continue
		}
		if value, ok := rec.Values[quantity]; ok {
			values = append(values, value)
		}
	}
	folded := alg.Fold(values)
	m.cache[key] = folded
	return folded, nil
}

// CachedValues reports how many merged values are currently memoised.
func (m *Manager) CachedValues() int {
	if m == nil {
		return 0
	}
	return len(m.cache)
}
