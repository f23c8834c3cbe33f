// Package catalog loads designer-authored effect types from JSON files and
// resolves them against the quantity registry. Catalog files hold either an
// array of type documents or an object keyed by type name; later sources
// override earlier ones so local overlays work during development.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/effectset"
	"github.com/raymoo/monoidal-effects/monoid"
)

type source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f fileSource) Path() string {
	return f.path
}

// document is the parse shape of one catalog entry. Values decode through the
// value wire format, so malformed payloads fail here with a kind-aware error.
type document struct {
	Name          string                  `json:"name"`
	DisplayName   string                  `json:"displayName"`
	Tags          []string                `json:"tags"`
	Quantities    []string                `json:"quantities"`
	Values        map[string]monoid.Value `json:"values"`
	Dynamic       bool                    `json:"dynamic"`
	Hidden        bool                    `json:"hidden"`
	CancelOnDeath bool                    `json:"cancelOnDeath"`
	Icon          string                  `json:"icon"`
}

func (d document) toType(name string) effects.Type {
	values := make(map[string]monoid.Value, len(d.Values))
	for quantity, value := range d.Values {
		values[quantity] = value
	}
	return effects.Type{
		Name:          name,
		DisplayName:   d.DisplayName,
		Tags:          effectset.NewStringSet(d.Tags...),
		Quantities:    effectset.NewStringSet(d.Quantities...),
		Values:        values,
		Dynamic:       d.Dynamic,
		Hidden:        d.Hidden,
		CancelOnDeath: d.CancelOnDeath,
		Icon:          d.Icon,
	}
}

// Resolver merges one or more catalog sources into a validated lookup table.
// Call Reload to pick up on-disk changes; a failed reload keeps the previous
// table.
type Resolver struct {
	mu         sync.RWMutex
	sources    []source
	quantities *monoid.Registry
	types      map[string]effects.Type
}

// DefaultPaths returns the canonical catalog locations relative to the module
// root. The local overlay overrides the base file when present.
func DefaultPaths() []string {
	return []string{
		filepath.Join("config", "effects.json"),
		filepath.Join("config", "effects.local.json"),
	}
}

// Load constructs a Resolver backed by the given quantity registry and
// catalog file paths.
func Load(quantities *monoid.Registry, paths ...string) (*Resolver, error) {
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, fileSource{path: trimmed})
	}
	return NewResolver(quantities, sources...)
}

// NewResolver constructs a Resolver from arbitrary sources. Tests supply
// in-memory sources while production code uses files.
func NewResolver(quantities *monoid.Registry, sources ...source) (*Resolver, error) {
	if quantities == nil {
		return nil, fmt.Errorf("catalog: nil quantity registry: %w", monoid.ErrConfiguration)
	}
	r := &Resolver{
		sources:    append([]source(nil), sources...),
		quantities: quantities,
		types:      make(map[string]effects.Type),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all catalog sources. Missing files are skipped; later
// sources override earlier ones. Every merged document must pass the same
// validation the runtime type registry enforces.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	merged := make(map[string]effects.Type)
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("catalog: failed loading %s: %w", src.Path(), err)
		}
		documents, err := decodeDocuments(data)
		if err != nil {
			return fmt.Errorf("catalog: failed parsing %s: %w", src.Path(), err)
		}
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			name := strings.TrimSpace(doc.Name)
			if name == "" {
				return fmt.Errorf("catalog: entry missing name in %s", src.Path())
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("catalog: duplicate name %q in %s", name, src.Path())
			}
			seen[name] = struct{}{}
			merged[name] = doc.toType(name)
		}
	}

	// Semantic checks ride on the runtime registry rules, so catalog files
	// can never describe a type the engine would reject.
	scratch := effects.NewTypeRegistry(r.quantities)
	for _, name := range sortedNames(merged) {
		if err := scratch.Register(merged[name]); err != nil {
			return fmt.Errorf("catalog: entry %q: %w", name, err)
		}
	}

	r.mu.Lock()
	r.types = merged
	r.mu.Unlock()
	return nil
}

// Resolve returns a copy of the catalog type for the given name.
func (r *Resolver) Resolve(name string) (effects.Type, bool) {
	if r == nil {
		return effects.Type{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return effects.Type{}, false
	}
	return t.Clone(), true
}

// Names lists the catalog type names in sorted order.
func (r *Resolver) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.types)
}

// Len reports how many types the catalog currently holds.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Types returns cloned catalog types sorted by name.
func (r *Resolver) Types() []effects.Type {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]effects.Type, 0, len(r.types))
	for _, name := range sortedNames(r.types) {
		out = append(out, r.types[name].Clone())
	}
	return out
}

// Register installs every catalog type into the given registry in sorted
// order.
func (r *Resolver) Register(reg *effects.TypeRegistry) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range sortedNames(r.types) {
		if err := reg.Register(r.types[name]); err != nil {
			return fmt.Errorf("catalog: register %q: %w", name, err)
		}
	}
	return nil
}

func sortedNames(types map[string]effects.Type) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeDocuments(data []byte) ([]document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var documents []document
		if err := json.Unmarshal(trimmed, &documents); err != nil {
			return nil, err
		}
		return documents, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(object))
		for name := range object {
			names = append(names, name)
		}
		sort.Strings(names)
		documents := make([]document, 0, len(names))
		for _, name := range names {
			var doc document
			if err := json.Unmarshal(object[name], &doc); err != nil {
				return nil, fmt.Errorf("entry %q: %w", name, err)
			}
			if doc.Name == "" {
				doc.Name = name
			} else if doc.Name != name {
				return nil, fmt.Errorf("entry name %q does not match key %q", doc.Name, name)
			}
			documents = append(documents, doc)
		}
		return documents, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}
