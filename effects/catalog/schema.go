package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Document models the JSON contract for a designer-authored effect type. It
// is shared with the schema builder so editor tooling gets a machine-readable
// description of the catalog format.
type Document struct {
	Name          string                   `json:"name" jsonschema:"title=Effect type name,description=Identifier applications reference.,pattern=^[a-z0-9_]+$,minLength=1,required"`
	DisplayName   string                   `json:"displayName,omitempty" jsonschema:"title=Display name,description=Overlay label; defaults to the name."`
	Tags          []string                 `json:"tags,omitempty" jsonschema:"description=Groups that bulk cancel operations can target."`
	Quantities    []string                 `json:"quantities" jsonschema:"description=Registered quantities every application of this type contributes to.,required"`
	Values        map[string]ValueDocument `json:"values,omitempty" jsonschema:"description=Static per-quantity contributions; omitted for dynamic types."`
	Dynamic       bool                     `json:"dynamic,omitempty" jsonschema:"description=Applications supply values at apply time."`
	Hidden        bool                     `json:"hidden,omitempty" jsonschema:"description=Keep the effect off overlay displays."`
	CancelOnDeath bool                     `json:"cancelOnDeath,omitempty" jsonschema:"description=Cancel automatically when the actor dies."`
	Icon          string                   `json:"icon,omitempty" jsonschema:"description=Icon asset reference for overlays."`
}

// ValueDocument mirrors the value wire format: a kind tag plus the payload
// field that kind uses.
type ValueDocument struct {
	Kind   string    `json:"kind" jsonschema:"title=Value kind,enum=scalar,enum=bool,enum=vec2,enum=vec3,required"`
	Scalar *float64  `json:"scalar,omitempty" jsonschema:"description=Payload for scalar values."`
	Bool   *bool     `json:"bool,omitempty" jsonschema:"description=Payload for bool values."`
	Vec    []float64 `json:"vec,omitempty" jsonschema:"description=Payload for vec2 and vec3 values; length matches the kind."`
}

// File represents the canonical array format of config/effects.json. The
// loader also accepts an object keyed by type name.
type File []Document

// Schema builds the JSON schema for catalog files, covering both the array
// and the object format.
func Schema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	entrySchema := reflector.ReflectFromType(reflect.TypeOf(Document{}))
	if entrySchema == nil {
		return nil, fmt.Errorf("catalog: failed to reflect document schema")
	}
	entrySchema.Version = ""
	entrySchema.Title = "Effect Type"
	entrySchema.Description = "Designer-authored effect type resolved against the quantity registry."

	arraySchema := &jsonschema.Schema{
		Type:        "array",
		Title:       "Array Catalog",
		Description: "Effect catalog expressed as an array of type documents.",
		Items:       entrySchema,
	}
	objectSchema := &jsonschema.Schema{
		Type:                 "object",
		Title:                "Object Catalog",
		Description:          "Effect catalog expressed as an object keyed by type name.",
		AdditionalProperties: entrySchema,
	}

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Effect Type Catalog",
		Description: "Validates designer-authored effect types in config/effects.json.",
		OneOf: []*jsonschema.Schema{
			arraySchema,
			objectSchema,
		},
	}, nil
}

// WriteSchema renders the catalog schema to outPath, replacing any previous
// file atomically.
func WriteSchema(outPath string) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("catalog: create schema directory: %w", err)
	}
	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("catalog: write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("catalog: replace schema: %w", err)
	}
	return nil
}
