package monoid

import "fmt"

// Names of the stock quantities shipped with the engine.
const (
	QuantitySpeed      = "speed"
	QuantityJump       = "jump"
	QuantityGravity    = "gravity"
	QuantityFly        = "fly"
	QuantityNoclip     = "noclip"
	QuantityViewOffset = "view_offset"
)

// ActorSink applies merged quantity values to live actor handles. Calls for
// actors that are not connected must be tolerated and ignored.
type ActorSink interface {
	SetPhysics(actorID, attribute string, scale float64)
	SetPrivilege(actorID, privilege string, granted bool)
	SetViewOffset(actorID string, offset [3]float64)
}

// MultiplyScalars combines multiplicative physics contributions.
func MultiplyScalars(a, b Value) Value {
	return ScalarValue(a.Scalar * b.Scalar)
}

// AddScalars combines additive scalar contributions.
func AddScalars(a, b Value) Value {
	return ScalarValue(a.Scalar + b.Scalar)
}

// MaxScalars keeps the largest scalar contribution.
func MaxScalars(a, b Value) Value {
	if b.Scalar > a.Scalar {
		return ScalarValue(b.Scalar)
	}
	return ScalarValue(a.Scalar)
}

// OrBools grants a flag when any contribution grants it.
func OrBools(a, b Value) Value {
	return BoolValue(a.Bool || b.Bool)
}

// AddVec3s combines vector offsets component-wise.
func AddVec3s(a, b Value) Value {
	return Vec3Value(a.Vec[0]+b.Vec[0], a.Vec[1]+b.Vec[1], a.Vec[2]+b.Vec[2])
}

// RegisterStandard installs the stock quantities on the registry, wiring
// their apply hooks to the sink: multiplicative speed, jump, and gravity
// scales, or-combined fly and noclip privileges, and an additive view offset.
func RegisterStandard(reg *Registry, sink ActorSink) error {
	physics := func(attribute string) ApplyFunc {
		return func(actorID string, value Value) {
			if sink == nil {
				return
			}
			sink.SetPhysics(actorID, attribute, value.Scalar)
		}
	}
	privilege := func(name string) ApplyFunc {
		return func(actorID string, value Value) {
			if sink == nil {
				return
			}
			sink.SetPrivilege(actorID, name, value.Bool)
		}
	}

	specs := []struct {
		name string
		spec Spec
	}{
		{QuantitySpeed, Spec{Identity: ScalarValue(1), Combine: MultiplyScalars, Apply: physics(QuantitySpeed)}},
		{QuantityJump, Spec{Identity: ScalarValue(1), Combine: MultiplyScalars, Apply: physics(QuantityJump)}},
		{QuantityGravity, Spec{Identity: ScalarValue(1), Combine: MultiplyScalars, Apply: physics(QuantityGravity)}},
		{QuantityFly, Spec{Identity: BoolValue(false), Combine: OrBools, Apply: privilege(QuantityFly)}},
		{QuantityNoclip, Spec{Identity: BoolValue(false), Combine: OrBools, Apply: privilege(QuantityNoclip)}},
		{QuantityViewOffset, Spec{Identity: Vec3Value(0, 0, 0), Combine: AddVec3s, Apply: func(actorID string, value Value) {
			if sink == nil {
				return
			}
			sink.SetViewOffset(actorID, value.Vec)
		}}},
	}
	for _, entry := range specs {
		if err := reg.Register(entry.name, entry.spec); err != nil {
			return fmt.Errorf("monoid: standard quantities: %w", err)
		}
	}
	return nil
}
