package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/orrery/model"
)

// referenceRate is the number of damping applications per simulated second.
const referenceRate = 60.0

// ShipState is the kinematic state of the free-flying viewpoint.
type ShipState struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Yaw      float64 // radians about +Y; pitch and roll stay level
}

// NewShipState places a stationary ship at the configured start pose.
func NewShipState(cfg model.ShipConfig) ShipState {
	return ShipState{
		Position: toVec3(cfg.InitialPosition),
		Yaw:      cfg.InitialYaw,
	}
}

// Forward returns the unit vector the ship is facing.
func (s ShipState) Forward() mgl64.Vec3 { return ForwardFromYaw(s.Yaw) }

// Speed returns the velocity magnitude.
func (s ShipState) Speed() float64 { return s.Velocity.Len() }

// FlightStatus describes what one Advance call did.
type FlightStatus struct {
	Boost         float64
	Thrust        float64
	SpeedClamped  bool
	BoundsClamped bool
}

// FlightController integrates ship velocity, position and yaw from held keys.
//
// Configuration values are trusted: damping outside (0, 1] or a zero max
// speed are caller errors and are not guarded here.
type FlightController struct {
	Config   model.ShipConfig
	Bindings KeyBindings
}

// NewFlightController constructs a controller.
func NewFlightController(cfg model.ShipConfig, bindings KeyBindings) *FlightController {
	return &FlightController{Config: cfg, Bindings: bindings}
}

// Advance returns the ship state after simDelta simulated seconds with keys
// held. A zero delta (paused) returns ship unchanged.
func (fc *FlightController) Advance(ship ShipState, simDelta float64, keys HeldKeys) (ShipState, FlightStatus) {
	cfg := fc.Config
	status := FlightStatus{Boost: 1}
	if keys.Any(fc.Bindings.Boost...) {
		status.Boost = cfg.BoostMultiplier
	}
	if simDelta == 0 {
		return ship, status
	}

	// both turn keys cancel out
	yawInput := 0.0
	if keys.Any(fc.Bindings.TurnLeft...) {
		yawInput++
	}
	if keys.Any(fc.Bindings.TurnRight...) {
		yawInput--
	}
	ship.Yaw += yawInput * cfg.TurnRate * simDelta

	forward := ForwardFromYaw(ship.Yaw)

	// forward and reverse sum; reverse is never boosted
	if keys.Any(fc.Bindings.Forward...) {
		status.Thrust += cfg.Accel * status.Boost
	}
	if keys.Any(fc.Bindings.Backward...) {
		status.Thrust -= cfg.Accel * cfg.ReverseFactor
	}
	if status.Thrust != 0 {
		ship.Velocity = ship.Velocity.Add(forward.Mul(status.Thrust * simDelta))
	}

	ship.Velocity, status.SpeedClamped = ClampLength(ship.Velocity, cfg.MaxSpeed*status.Boost)

	// at least one damping application per step, however small
	ship.Velocity = ship.Velocity.Mul(math.Pow(cfg.Damping, math.Max(1, referenceRate*simDelta)))

	ship.Position = ship.Position.Add(ship.Velocity.Mul(simDelta))

	if ship.Position.Len() > cfg.MaxRadius {
		ship.Position, _ = ClampLength(ship.Position, cfg.MaxRadius)
		ship.Velocity = mgl64.Vec3{}
		status.BoundsClamped = true
	}
	return ship, status
}
