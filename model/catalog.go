package model

// ReferenceFrameRate is the number of reference frames per simulated second.
// Catalog rates below were tuned per reference frame and are converted here.
const ReferenceFrameRate = 60.0

func perFrame(rad float64) float64 { return rad * ReferenceFrameRate }

// DefaultCatalog returns the built-in solar system: the sun, six planets and
// two moons. Parents always precede their moons.
func DefaultCatalog() []BodyDefinition {
	return []BodyDefinition{
		{Name: "Sun", Kind: BodyKindStar, Radius: 5, SpinRate: perFrame(0.002), Color: "#ffffff"},
		{Name: "Mercury", Kind: BodyKindPlanet, Radius: 0.8, Distance: 9, SpinRate: perFrame(0.015), OrbitRate: perFrame(0.024), Color: "#b5b5b5"},
		{Name: "Venus", Kind: BodyKindPlanet, Radius: 1.2, Distance: 12, SpinRate: perFrame(0.01), OrbitRate: perFrame(0.017), Color: "#e8cda2"},
		{Name: "Earth", Kind: BodyKindPlanet, Radius: 2, Distance: 15, SpinRate: perFrame(0.02), OrbitRate: perFrame(0.012), Color: "#2e86ab"},
		{Name: "Moon", Kind: BodyKindMoon, Parent: "Earth", Radius: 0.5, Distance: 3.2, SpinRate: perFrame(0.02), OrbitRate: perFrame(0.06), Color: "#cccccc"},
		{Name: "Mars", Kind: BodyKindPlanet, Radius: 1.1, Distance: 19, SpinRate: perFrame(0.018), OrbitRate: perFrame(0.01), Color: "#c1440e"},
		{Name: "Jupiter", Kind: BodyKindPlanet, Radius: 3.5, Distance: 26, SpinRate: perFrame(0.03), OrbitRate: perFrame(0.006), Color: "#c88b3a"},
		{Name: "Io", Kind: BodyKindMoon, Parent: "Jupiter", Radius: 0.6, Distance: 5, SpinRate: perFrame(0.03), OrbitRate: perFrame(0.08), Color: "#e5d96b"},
		{Name: "Saturn", Kind: BodyKindPlanet, Radius: 3.2, Distance: 34, SpinRate: perFrame(0.028), OrbitRate: perFrame(0.004), Color: "#e4d191"},
	}
}
