package core

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orrery/model"
)

// ErrUnknownParent indicates a body references a parent that does not
// precede it in the definition list.
var ErrUnknownParent = errors.New("unknown parent body")

// BodyID is the stable arena index of a body.
type BodyID int

// NoParent marks bodies whose pivot sits in the world frame.
const NoParent BodyID = -1

// Body is one arena entry: the immutable definition plus the two angle
// accumulators that evolve every frame.
type Body struct {
	ID     BodyID
	Parent BodyID
	Def    model.BodyDefinition

	SpinAngle  float64
	OrbitAngle float64
}

// System is the arena of simulated bodies. A moon's pivot hangs off its
// parent's body frame, so its world transform composes the parent's orbit,
// offset and spin before its own.
type System struct {
	bodies []Body
	index  map[string]BodyID
}

// NewSystem builds the arena from catalog definitions. Parents must precede
// the bodies that reference them.
func NewSystem(defs []model.BodyDefinition) (*System, error) {
	s := &System{
		bodies: make([]Body, 0, len(defs)),
		index:  make(map[string]BodyID, len(defs)),
	}
	for _, def := range defs {
		parent := NoParent
		if def.Parent != "" {
			id, ok := s.index[def.Parent]
			if !ok {
				return nil, fmt.Errorf("body %q: %w %q", def.Name, ErrUnknownParent, def.Parent)
			}
			parent = id
		}
		id := BodyID(len(s.bodies))
		s.bodies = append(s.bodies, Body{ID: id, Parent: parent, Def: def})
		s.index[def.Key()] = id
	}
	return s, nil
}

// Len returns the number of bodies.
func (s *System) Len() int { return len(s.bodies) }

// Body returns the arena entry for id, or nil when out of range.
func (s *System) Body(id BodyID) *Body {
	if id < 0 || int(id) >= len(s.bodies) {
		return nil
	}
	return &s.bodies[id]
}

// Lookup resolves a catalog key ("Earth", "Earth/Moon") to a BodyID.
func (s *System) Lookup(key string) (BodyID, bool) {
	id, ok := s.index[key]
	return id, ok
}

// Bodies returns a copy of the arena.
func (s *System) Bodies() []Body {
	return append([]Body(nil), s.bodies...)
}

// LocalTransform returns the body frame relative to its parent body frame:
// pivot rotation by the orbit angle, offset along +X by the orbital
// distance, then the axial spin.
func (s *System) LocalTransform(id BodyID) mgl64.Mat4 {
	b := s.Body(id)
	if b == nil {
		return mgl64.Ident4()
	}
	return mgl64.HomogRotate3DY(b.OrbitAngle).
		Mul4(mgl64.Translate3D(b.Def.Distance, 0, 0)).
		Mul4(mgl64.HomogRotate3DY(b.SpinAngle))
}

// WorldTransform composes local transforms from the root down to id.
func (s *System) WorldTransform(id BodyID) mgl64.Mat4 {
	var chain []BodyID
	for cur := id; cur != NoParent; {
		b := s.Body(cur)
		if b == nil {
			break
		}
		chain = append(chain, cur)
		cur = b.Parent
	}

	m := mgl64.Ident4()
	for i := len(chain) - 1; i >= 0; i-- {
		m = m.Mul4(s.LocalTransform(chain[i]))
	}
	return m
}

// WorldPosition returns the world-frame centre of the body.
func (s *System) WorldPosition(id BodyID) mgl64.Vec3 {
	return s.WorldTransform(id).Mul4x1(mgl64.Vec4{0, 0, 0, 1}).Vec3()
}
