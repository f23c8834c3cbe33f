package catalog

import (
	"encoding/json"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/monoid"
)

type memorySource struct {
	path string
	data []byte
	err  error
}

func (m *memorySource) Load() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memorySource) Path() string {
	return m.path
}

func quantityFixture(t *testing.T) *monoid.Registry {
	t.Helper()
	reg := monoid.NewRegistry()
	if err := reg.Register("speed", monoid.Spec{
		Identity: monoid.ScalarValue(1),
		Combine:  monoid.MultiplyScalars,
	}); err != nil {
		t.Fatalf("register speed: %v", err)
	}
	if err := reg.Register("fly", monoid.Spec{
		Identity: monoid.BoolValue(false),
		Combine:  monoid.OrBools,
	}); err != nil {
		t.Fatalf("register fly: %v", err)
	}
	return reg
}

func marshalCatalog(t *testing.T, entries any) []byte {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	return data
}

func TestResolverLoadArray(t *testing.T) {
	data := marshalCatalog(t, []map[string]any{
		{
			"name":        "haste",
			"displayName": "Haste",
			"tags":        []string{"magic", "movement"},
			"quantities":  []string{"speed"},
			"values": map[string]any{
				"speed": map[string]any{"kind": "scalar", "scalar": 2},
			},
			"cancelOnDeath": true,
			"icon":          "icons/haste.png",
		},
		{
			"name":       "speed_mod",
			"quantities": []string{"speed"},
			"dynamic":    true,
		},
	})

	resolver, err := NewResolver(quantityFixture(t), &memorySource{path: "inline.json", data: data})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	if got := resolver.Len(); got != 2 {
		t.Fatalf("expected 2 catalog types, got %d", got)
	}
	haste, ok := resolver.Resolve("haste")
	if !ok {
		t.Fatalf("expected to resolve haste")
	}
	if haste.DisplayName != "Haste" || !haste.CancelOnDeath || haste.Icon != "icons/haste.png" {
		t.Fatalf("unexpected haste template: %+v", haste)
	}
	if !haste.Tags.Has("magic") || !haste.Tags.Has("movement") {
		t.Fatalf("expected haste tags to survive, got %v", haste.Tags.Sorted())
	}
	if got := haste.Values["speed"]; got.Kind != monoid.KindScalar || got.Scalar != 2 {
		t.Fatalf("expected scalar 2 for speed, got %v", got)
	}
	mod, ok := resolver.Resolve("speed_mod")
	if !ok || !mod.Dynamic {
		t.Fatalf("expected dynamic speed_mod, ok=%t dynamic=%t", ok, mod.Dynamic)
	}
}

func TestResolverObjectSyntax(t *testing.T) {
	data := []byte(`{
		"levitation": {
			"quantities": ["fly"],
			"values": {"fly": {"kind": "bool", "bool": true}}
		}
	}`)

	resolver, err := NewResolver(quantityFixture(t), &memorySource{path: "object.json", data: data})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	levitation, ok := resolver.Resolve("levitation")
	if !ok {
		t.Fatalf("expected to resolve levitation")
	}
	if levitation.Name != "levitation" {
		t.Fatalf("expected the object key to become the name, got %q", levitation.Name)
	}
	if !levitation.Values["fly"].Bool {
		t.Fatalf("expected fly value true")
	}
}

func TestResolverObjectKeyMismatch(t *testing.T) {
	data := []byte(`{"levitation": {"name": "flight", "quantities": ["fly"], "values": {"fly": {"kind": "bool", "bool": true}}}}`)
	_, err := NewResolver(quantityFixture(t), &memorySource{path: "object.json", data: data})
	if err == nil || !strings.Contains(err.Error(), "does not match key") {
		t.Fatalf("expected key mismatch error, got %v", err)
	}
}

func TestResolverRejectsInvalidCatalogs(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{
			name: "missing name",
			data: `[{"quantities": ["speed"], "dynamic": true}]`,
			want: "missing name",
		},
		{
			name: "duplicate name",
			data: `[{"name": "haste", "quantities": ["speed"], "dynamic": true}, {"name": "haste", "quantities": ["speed"], "dynamic": true}]`,
			want: "duplicate name",
		},
		{
			name: "unknown quantity",
			data: `[{"name": "mana_shield", "quantities": ["mana"], "dynamic": true}]`,
			want: `quantity "mana"`,
		},
		{
			name: "static without values",
			data: `[{"name": "haste", "quantities": ["speed"]}]`,
			want: "missing value",
		},
		{
			name: "kind mismatch",
			data: `[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "bool", "bool": true}}}]`,
			want: "expects scalar",
		},
		{
			name: "malformed value payload",
			data: `[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "vec3", "vec": [1, 2]}}}]`,
			want: "expects 3 components",
		},
		{
			name: "unexpected token",
			data: `"just a string"`,
			want: "unexpected json token",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewResolver(quantityFixture(t), &memorySource{path: "broken.json", data: []byte(tc.data)})
			if err == nil {
				t.Fatalf("expected catalog load to fail")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolverLaterSourcesOverride(t *testing.T) {
	base := &memorySource{path: "effects.json", data: []byte(`[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 2}}}]`)}
	overlay := &memorySource{path: "effects.local.json", data: []byte(`[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 3}}}]`)}

	resolver, err := NewResolver(quantityFixture(t), base, overlay)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	haste, ok := resolver.Resolve("haste")
	if !ok {
		t.Fatalf("expected to resolve haste")
	}
	if haste.Values["speed"].Scalar != 3 {
		t.Fatalf("expected the overlay value 3, got %g", haste.Values["speed"].Scalar)
	}
}

func TestResolverSkipsMissingSources(t *testing.T) {
	present := &memorySource{path: "effects.json", data: []byte(`[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 2}}}]`)}
	resolver, err := NewResolver(quantityFixture(t),
		&memorySource{path: "missing.json", err: fs.ErrNotExist},
		present,
	)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	if resolver.Len() != 1 {
		t.Fatalf("expected the surviving source to load, got %d types", resolver.Len())
	}
}

func TestReloadFailureKeepsPreviousTable(t *testing.T) {
	src := &memorySource{path: "effects.json", data: []byte(`[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 2}}}]`)}
	resolver, err := NewResolver(quantityFixture(t), src)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	src.data = []byte(`[{"quantities": ["speed"]}]`)
	if err := resolver.Reload(); err == nil {
		t.Fatalf("expected reload to fail")
	}
	if _, ok := resolver.Resolve("haste"); !ok {
		t.Fatalf("expected the previous table to survive a failed reload")
	}

	src.data = []byte(`[{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 4}}}]`)
	if err := resolver.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	haste, _ := resolver.Resolve("haste")
	if haste.Values["speed"].Scalar != 4 {
		t.Fatalf("expected the reloaded value 4, got %g", haste.Values["speed"].Scalar)
	}
}

func TestResolveReturnsACopy(t *testing.T) {
	src := &memorySource{path: "effects.json", data: []byte(`[{"name": "haste", "tags": ["magic"], "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 2}}}]`)}
	resolver, err := NewResolver(quantityFixture(t), src)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	first, _ := resolver.Resolve("haste")
	first.Tags.Add("cursed")
	first.Values["speed"] = monoid.ScalarValue(99)

	second, _ := resolver.Resolve("haste")
	if second.Tags.Has("cursed") {
		t.Fatalf("expected resolved tag sets to be isolated")
	}
	if second.Values["speed"].Scalar != 2 {
		t.Fatalf("expected resolved values to be isolated, got %g", second.Values["speed"].Scalar)
	}
}

func TestRegisterInstallsCatalogTypes(t *testing.T) {
	quantities := quantityFixture(t)
	src := &memorySource{path: "effects.json", data: []byte(`[
		{"name": "haste", "quantities": ["speed"], "values": {"speed": {"kind": "scalar", "scalar": 2}}},
		{"name": "levitation", "quantities": ["fly"], "values": {"fly": {"kind": "bool", "bool": true}}}
	]`)}
	resolver, err := NewResolver(quantities, src)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	reg := effects.NewTypeRegistry(quantities)
	if err := resolver.Register(reg); err != nil {
		t.Fatalf("register catalog: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 registered types, got %d", reg.Len())
	}
	if _, err := reg.Resolve("levitation"); err != nil {
		t.Fatalf("expected levitation to be registered: %v", err)
	}

	// A second install collides with the already registered names.
	if err := resolver.Register(reg); !errors.Is(err, monoid.ErrConfiguration) {
		t.Fatalf("expected duplicate registration to fail, got %v", err)
	}
}

func TestSchemaCoversBothFormats(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if len(schema.OneOf) != 2 {
		t.Fatalf("expected array and object variants, got %d", len(schema.OneOf))
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	for _, fragment := range []string{"Effect Type Catalog", "cancelOnDeath", "quantities", "vec3"} {
		if !strings.Contains(string(data), fragment) {
			t.Fatalf("expected schema to mention %q", fragment)
		}
	}
}
