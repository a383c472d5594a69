package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orrery/model"
)

// TwoPi is one full turn in radians.
const TwoPi = 2 * math.Pi

// canonicalForward is the ship's forward axis at yaw 0.
var canonicalForward = mgl64.Vec3{0, 0, -1}

// ForwardFromYaw returns the unit forward vector for a level heading: the
// canonical forward axis rotated about +Y by yaw radians.
func ForwardFromYaw(yaw float64) mgl64.Vec3 {
	return mgl64.Rotate3DY(yaw).Mul3x1(canonicalForward)
}

// WrapAngle folds an accumulated angle into (-2π, 2π) so long runs stay
// within float precision.
func WrapAngle(a float64) float64 {
	return math.Mod(a, TwoPi)
}

// ClampLength rescales v to max when it is longer, preserving direction.
// It reports whether v was rescaled.
func ClampLength(v mgl64.Vec3, max float64) (mgl64.Vec3, bool) {
	l := v.Len()
	if l <= max || l == 0 {
		return v, false
	}
	return v.Mul(max / l), true
}

// DefaultOrbitSegments is the sample count of orbit lines sent to
// presentation.
const DefaultOrbitSegments = 128

// OrbitPath samples a circular orbit of the given radius on the XZ plane,
// returning segments points of a closed loop around the parent frame origin.
// Point i is where the body sits at orbit angle 2πi/segments.
func OrbitPath(distance float64, segments int) []mgl64.Vec3 {
	if segments < 3 {
		segments = 3
	}
	pts := make([]mgl64.Vec3, segments)
	for i := range pts {
		theta := TwoPi * float64(i) / float64(segments)
		pts[i] = mgl64.Vec3{distance * math.Cos(theta), 0, -distance * math.Sin(theta)}
	}
	return pts
}

func toVec3(v model.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}
