package model

import "math"

// Vec3 is a plain position/offset triple used in configuration records.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// ShipConfig holds the flight constants of the free-flying viewpoint.
//
// Damping is the velocity retention factor applied per 1/60 s reference step.
// ReverseFactor scales Accel when thrusting backwards; reverse thrust is never
// boosted.
type ShipConfig struct {
	Accel           float64
	MaxSpeed        float64
	Damping         float64
	TurnRate        float64 // radians per simulated second
	BoostMultiplier float64
	ReverseFactor   float64
	MaxRadius       float64

	InitialPosition Vec3
	InitialYaw      float64

	// CameraOffset is where the ship camera sits in the ship frame.
	CameraOffset Vec3
}

// DefaultShipConfig returns the flight constants the viewer ships with.
func DefaultShipConfig() ShipConfig {
	return ShipConfig{
		Accel:           12,
		MaxSpeed:        50,
		Damping:         0.96,
		TurnRate:        math.Pi / 2,
		BoostMultiplier: 2.0,
		ReverseFactor:   0.6,
		MaxRadius:       1000,
		// near Earth's orbit
		InitialPosition: Vec3{X: 0, Y: 0, Z: 18},
		CameraOffset:    Vec3{X: 0, Y: 0.4, Z: 0.2},
	}
}
