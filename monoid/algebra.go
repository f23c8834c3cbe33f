// Package monoid defines the value algebras that merge simultaneous effect
// contributions to a named quantity. Each quantity registers an identity
// element plus a combine or fold operation; the registry derives whichever of
// the two was omitted. Registries are not safe for concurrent use; the caller
// serialises access.
package monoid

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrConfiguration marks a registration rejected at setup time.
	ErrConfiguration = errors.New("invalid algebra configuration")
	// ErrUnknownQuantity marks a lookup for a quantity nobody registered.
	ErrUnknownQuantity = errors.New("unknown quantity")
)

// CombineFunc merges two values of the same kind into one.
type CombineFunc func(a, b Value) Value

// FoldFunc collapses a batch of values into one. Folding an empty batch
// yields the identity element.
type FoldFunc func(values []Value) Value

// ApplyFunc pushes a merged value onto the actor that owns it.
type ApplyFunc func(actorID string, value Value)

// ChangeFunc observes a merged value transition for an actor.
type ChangeFunc func(actorID string, previous, next Value)

// Spec declares the algebra for one quantity. Combine or Fold may be omitted
// but not both; Apply and OnChange are optional hooks.
type Spec struct {
	Identity Value
	Combine  CombineFunc
	Fold     FoldFunc
	Apply    ApplyFunc
	OnChange ChangeFunc
}

// Algebra is a registered quantity algebra with both operations materialised.
type Algebra struct {
	name     string
	identity Value
	combine  CombineFunc
	fold     FoldFunc
	apply    ApplyFunc
	onChange ChangeFunc
}

// Name returns the quantity name the algebra was registered under.
func (a *Algebra) Name() string {
	if a == nil {
		return ""
	}
	return a.name
}

// Identity returns the element that leaves combine unchanged.
func (a *Algebra) Identity() Value {
	if a == nil {
		return Value{}
	}
	return a.identity
}

// Combine merges two values.
func (a *Algebra) Combine(x, y Value) Value {
	if a == nil {
		return Value{}
	}
	return a.combine(x, y)
}

// Fold collapses a batch of values, yielding the identity for an empty batch.
func (a *Algebra) Fold(values []Value) Value {
	if a == nil {
		return Value{}
	}
	if len(values) == 0 {
		return a.identity
	}
	return a.fold(values)
}

// Push hands a merged value to the apply hook, if one was registered.
func (a *Algebra) Push(actorID string, value Value) {
	if a == nil || a.apply == nil {
		return
	}
	a.apply(actorID, value)
}

// NotifyChange reports a merged value transition to the change hook, if one
// was registered.
func (a *Algebra) NotifyChange(actorID string, previous, next Value) {
	if a == nil || a.onChange == nil {
		return
	}
	a.onChange(actorID, previous, next)
}

// Registry holds the quantity algebras known to the engine. Register
// everything during setup; the engine treats the registry as immutable
// afterwards.
type Registry struct {
	algebras map[string]*Algebra
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{algebras: make(map[string]*Algebra)}
}

// Register adds a quantity algebra, deriving fold from combine (or combine
// from fold) when one is missing. Registrations with neither operation, an
// empty name, or a name already taken fail with ErrConfiguration.
func (r *Registry) Register(name string, spec Spec) error {
	if r == nil {
		return fmt.Errorf("monoid: register %q: nil registry: %w", name, ErrConfiguration)
	}
	if name == "" {
		return fmt.Errorf("monoid: register: empty quantity name: %w", ErrConfiguration)
	}
	if r.algebras == nil {
		r.algebras = make(map[string]*Algebra)
	}
	if _, exists := r.algebras[name]; exists {
		return fmt.Errorf("monoid: register %q: already registered: %w", name, ErrConfiguration)
	}
	if spec.Combine == nil && spec.Fold == nil {
		return fmt.Errorf("monoid: register %q: neither combine nor fold provided: %w", name, ErrConfiguration)
	}
	alg := &Algebra{
		name:     name,
		identity: spec.Identity,
		combine:  spec.Combine,
		fold:     spec.Fold,
		apply:    spec.Apply,
		onChange: spec.OnChange,
	}
	if alg.combine == nil {
		alg.combine = combineViaFold(spec.Fold)
	}
	if alg.fold == nil {
		alg.fold = foldViaCombine(spec.Identity, spec.Combine)
	}
	r.algebras[name] = alg
	return nil
}

// Lookup returns the algebra for a quantity, reporting absence via the bool.
func (r *Registry) Lookup(name string) (*Algebra, bool) {
	if r == nil {
		return nil, false
	}
	alg, ok := r.algebras[name]
	return alg, ok
}

// Resolve returns the algebra for a quantity or ErrUnknownQuantity.
func (r *Registry) Resolve(name string) (*Algebra, error) {
	alg, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("monoid: quantity %q: %w", name, ErrUnknownQuantity)
	}
	return alg, nil
}

// Names lists the registered quantity names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.algebras))
	for name := range r.algebras {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many quantities are registered.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.algebras)
}

func foldViaCombine(identity Value, combine CombineFunc) FoldFunc {
	return func(values []Value) Value {
		acc := identity
		for _, v := range values {
			acc = combine(acc, v)
		}
		return acc
	}
}

func combineViaFold(fold FoldFunc) CombineFunc {
	return func(a, b Value) Value {
		return fold([]Value{a, b})
	}
}
