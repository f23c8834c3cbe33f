// Package effects manages the lifecycle of monoidal status effects: applying
// and cancelling records, folding per-quantity values through their algebras,
// expiry timers with hibernation across disconnects, and versioned snapshots.
// Managers are not safe for concurrent use; the host serialises access.
package effects

import (
	"errors"
	"fmt"

	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/monoid"
)

// ErrUnknownEffectType marks an apply or lookup against a type nobody registered.
var ErrUnknownEffectType = errors.New("unknown effect type")

// Type is the template an effect record is applied from. Static types carry
// the values every application contributes; dynamic types take values from
// the caller at apply time. Either way the declared quantity set is exact:
// applications contribute to all of those quantities and no others.
type Type struct {
	Name          string
	DisplayName   string
	Tags          effectset.StringSet
	Quantities    effectset.StringSet
	Values        map[string]monoid.Value
	Dynamic       bool
	Hidden        bool
	CancelOnDeath bool
	Icon          string
}

// Clone returns a deep copy of the type template.
func (t Type) Clone() Type {
	out := t
	out.Tags = t.Tags.Clone()
	out.Quantities = t.Quantities.Clone()
	out.Values = make(map[string]monoid.Value, len(t.Values))
	for quantity, value := range t.Values {
		out.Values[quantity] = value
	}
	return out
}

// TypeRegistry holds the effect type templates known to the engine, validated
// against the quantity registry at registration time. Register everything
// during setup; the engine treats the registry as immutable afterwards.
type TypeRegistry struct {
	quantities *monoid.Registry
	types      map[string]*Type
}

// NewTypeRegistry constructs an empty type registry validating against the
// given quantity registry.
func NewTypeRegistry(quantities *monoid.Registry) *TypeRegistry {
	return &TypeRegistry{
		quantities: quantities,
		types:      make(map[string]*Type),
	}
}

// Register validates and stores a type template. Violations reject the type
// with monoid.ErrConfiguration: empty or duplicate names, no declared
// quantities, references to unregistered quantities, static values that do
// not cover the declared quantities exactly, dynamic types carrying static
// values, or values whose kind disagrees with the quantity's identity.
func (r *TypeRegistry) Register(t Type) error {
	if r == nil {
		return fmt.Errorf("effects: register type %q: nil registry: %w", t.Name, monoid.ErrConfiguration)
	}
	if t.Name == "" {
		return fmt.Errorf("effects: register type: empty name: %w", monoid.ErrConfiguration)
	}
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("effects: register type %q: already registered: %w", t.Name, monoid.ErrConfiguration)
	}
	if t.Quantities.Len() == 0 {
		return fmt.Errorf("effects: register type %q: no quantities declared: %w", t.Name, monoid.ErrConfiguration)
	}
	for _, quantity := range t.Quantities.Sorted() {
		if _, ok := r.quantities.Lookup(quantity); !ok {
			return fmt.Errorf("effects: register type %q: quantity %q is not registered: %w", t.Name, quantity, monoid.ErrConfiguration)
		}
	}
	if t.Dynamic {
		if len(t.Values) != 0 {
			return fmt.Errorf("effects: register type %q: dynamic types take values at apply time: %w", t.Name, monoid.ErrConfiguration)
		}
	} else {
		if err := r.checkValues(t.Name, t.Quantities, t.Values); err != nil {
			return err
		}
	}
	stored := t.Clone()
	r.types[t.Name] = &stored
	return nil
}

// Lookup returns the template for a type name, reporting absence via the bool.
func (r *TypeRegistry) Lookup(name string) (*Type, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.types[name]
	return t, ok
}

// Resolve returns the template for a type name or ErrUnknownEffectType.
func (r *TypeRegistry) Resolve(name string) (*Type, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("effects: type %q: %w", name, ErrUnknownEffectType)
	}
	return t, nil
}

// Names lists the registered type names in sorted order.
func (r *TypeRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return effectset.NewStringSet(names...).Sorted()
}

// Len reports how many types are registered.
func (r *TypeRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.types)
}

// checkValues verifies a value map covers the declared quantities exactly and
// that every value's kind matches its quantity's identity.
func (r *TypeRegistry) checkValues(typeName string, quantities effectset.StringSet, values map[string]monoid.Value) error {
	for _, quantity := range quantities.Sorted() {
		value, ok := values[quantity]
		if !ok {
			return fmt.Errorf("effects: type %q: missing value for quantity %q: %w", typeName, quantity, monoid.ErrConfiguration)
		}
		alg, ok := r.quantities.Lookup(quantity)
		if !ok {
			return fmt.Errorf("effects: type %q: quantity %q is not registered: %w", typeName, quantity, monoid.ErrConfiguration)
		}
		if value.Kind != alg.Identity().Kind {
			return fmt.Errorf("effects: type %q: quantity %q expects %s values, got %s: %w",
				typeName, quantity, alg.Identity().Kind, value.Kind, monoid.ErrConfiguration)
		}
	}
	for quantity := range values {
		if !quantities.Has(quantity) {
			return fmt.Errorf("effects: type %q: value for undeclared quantity %q: %w", typeName, quantity, monoid.ErrConfiguration)
		}
	}
	return nil
}
