package model

import (
	"fmt"
	"strings"
)

// BodyKind indicates the role a celestial body plays in the system tree.
type BodyKind int

const (
	BodyKindUnknown BodyKind = iota
	BodyKindStar             // spins in place at the origin, never orbits
	BodyKindPlanet           // orbits the origin
	BodyKindMoon             // orbits inside its parent planet's body frame
)

func (k BodyKind) String() string {
	switch k {
	case BodyKindStar:
		return "star"
	case BodyKindPlanet:
		return "planet"
	case BodyKindMoon:
		return "moon"
	default:
		return "unknown"
	}
}

// ParseBodyKind maps a catalog string onto a BodyKind.
func ParseBodyKind(s string) (BodyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "star", "sun":
		return BodyKindStar, nil
	case "planet":
		return BodyKindPlanet, nil
	case "moon":
		return BodyKindMoon, nil
	default:
		return BodyKindUnknown, fmt.Errorf("unknown body kind %q", s)
	}
}

// BodyDefinition is one record of the static body catalog. It is supplied
// once at startup; the simulation never adds or removes bodies afterwards.
//
// Rates are radians per simulated second. Radius and Distance are scene units.
type BodyDefinition struct {
	Name   string
	Kind   BodyKind
	Parent string // name of the parent planet; empty for stars and planets

	Radius   float64 // presentation only
	Distance float64 // pivot radius from the parent frame

	SpinRate  float64
	OrbitRate float64

	Color string // "#rrggbb", presentation only
}

// Key returns the catalog key of the body: its name qualified by its parent.
func (d BodyDefinition) Key() string {
	return BodyKey(d.Parent, d.Name)
}

// BodyKey builds a catalog key from a parent name and a body name.
func BodyKey(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
