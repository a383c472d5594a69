package core

import "github.com/signalsfoundry/orrery/model"

// OrbitalMotionEngine advances every body's spin and orbit angles.
//
// No body reads another body's state, so the update order is irrelevant;
// hierarchy only matters when transforms are composed for presentation.
type OrbitalMotionEngine struct{}

// Advance integrates simDelta simulated seconds into every body. Stars only
// spin. A zero delta leaves all angles untouched.
func (OrbitalMotionEngine) Advance(sys *System, simDelta float64) {
	if sys == nil || simDelta == 0 {
		return
	}
	for i := range sys.bodies {
		b := &sys.bodies[i]
		b.SpinAngle = WrapAngle(b.SpinAngle + b.Def.SpinRate*simDelta)
		if b.Def.Kind == model.BodyKindStar {
			continue
		}
		b.OrbitAngle = WrapAngle(b.OrbitAngle + b.Def.OrbitRate*simDelta)
	}
}
