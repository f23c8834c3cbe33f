package monoid

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind discriminates the value shapes a registered quantity can carry.
type Kind uint8

const (
	KindScalar Kind = iota
	KindBool
	KindVec2
	KindVec3

	kindCount
)

var kindNames = [kindCount]string{"scalar", "bool", "vec2", "vec3"}

// String returns the wire name for the kind.
func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind maps a wire name back to its kind.
func ParseKind(name string) (Kind, bool) {
	for k, candidate := range kindNames {
		if candidate == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Value is a closed sum over the shapes used by quantity algebras. The Kind
// field selects which payload field is meaningful; the others stay zero.
type Value struct {
	Kind   Kind
	Scalar float64
	Bool   bool
	Vec    [3]float64
}

// ScalarValue wraps a float payload.
func ScalarValue(v float64) Value {
	return Value{Kind: KindScalar, Scalar: v}
}

// BoolValue wraps a boolean payload.
func BoolValue(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// Vec2Value wraps a two component vector payload.
func Vec2Value(x, y float64) Value {
	return Value{Kind: KindVec2, Vec: [3]float64{x, y, 0}}
}

// Vec3Value wraps a three component vector payload.
func Vec3Value(x, y, z float64) Value {
	return Value{Kind: KindVec3, Vec: [3]float64{x, y, z}}
}

// Equal reports whether two values share a kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindScalar:
		return v.Scalar == other.Scalar
	case KindBool:
		return v.Bool == other.Bool
	case KindVec2:
		return v.Vec[0] == other.Vec[0] && v.Vec[1] == other.Vec[1]
	case KindVec3:
		return v.Vec == other.Vec
	default:
		return false
	}
}

// Finite reports whether every numeric payload component is a finite number.
func (v Value) Finite() bool {
	switch v.Kind {
	case KindScalar:
		return !math.IsNaN(v.Scalar) && !math.IsInf(v.Scalar, 0)
	case KindVec2, KindVec3:
		for _, c := range v.Vec {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for logs and diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return fmt.Sprintf("%g", v.Scalar)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindVec2:
		return fmt.Sprintf("(%g, %g)", v.Vec[0], v.Vec[1])
	case KindVec3:
		return fmt.Sprintf("(%g, %g, %g)", v.Vec[0], v.Vec[1], v.Vec[2])
	default:
		return "invalid"
	}
}

type valueDocument struct {
	Kind   string    `json:"kind"`
	Scalar *float64  `json:"scalar,omitempty"`
	Bool   *bool     `json:"bool,omitempty"`
	Vec    []float64 `json:"vec,omitempty"`
}

// MarshalJSON encodes the value as a tagged document so snapshots and catalog
// files stay readable and shape errors surface on load.
func (v Value) MarshalJSON() ([]byte, error) {
	doc := valueDocument{Kind: v.Kind.String()}
	switch v.Kind {
	case KindScalar:
		scalar := v.Scalar
		doc.Scalar = &scalar
	case KindBool:
		flag := v.Bool
		doc.Bool = &flag
	case KindVec2:
		doc.Vec = []float64{v.Vec[0], v.Vec[1]}
	case KindVec3:
		doc.Vec = []float64{v.Vec[0], v.Vec[1], v.Vec[2]}
	default:
		return nil, fmt.Errorf("monoid: marshal value: unknown kind %d", v.Kind)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes a tagged value document, rejecting payloads whose
// shape does not match the declared kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	var doc valueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("monoid: unmarshal value: %w", err)
	}
	kind, ok := ParseKind(doc.Kind)
	if !ok {
		return fmt.Errorf("monoid: unmarshal value: unknown kind %q", doc.Kind)
	}
	decoded := Value{Kind: kind}
	switch kind {
	case KindScalar:
		if doc.Scalar == nil {
			return fmt.Errorf("monoid: unmarshal value: kind %q missing scalar payload", doc.Kind)
		}
		decoded.Scalar = *doc.Scalar
	case KindBool:
		if doc.Bool == nil {
			return fmt.Errorf("monoid: unmarshal value: kind %q missing bool payload", doc.Kind)
		}
		decoded.Bool = *doc.Bool
	case KindVec2:
		if len(doc.Vec) != 2 {
			return fmt.Errorf("monoid: unmarshal value: kind %q expects 2 components, got %d", doc.Kind, len(doc.Vec))
		}
		decoded.Vec = [3]float64{doc.Vec[0], doc.Vec[1], 0}
	case KindVec3:
		if len(doc.Vec) != 3 {
			return fmt.Errorf("monoid: unmarshal value: kind %q expects 3 components, got %d", doc.Kind, len(doc.Vec))
		}
		decoded.Vec = [3]float64{doc.Vec[0], doc.Vec[1], doc.Vec[2]}
	}
	*v = decoded
	return nil
}
