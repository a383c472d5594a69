package core

import "github.com/go-gl/mathgl/mgl64"

// DisplaySettings are presentation toggles carried through the frame output.
// The simulation never reads them.
type DisplaySettings struct {
	ShowOrbits   bool    `json:"show_orbits"`
	ShowStars    bool    `json:"show_stars"`
	SunIntensity float64 `json:"sun_intensity"`
}

// DefaultDisplaySettings returns orbits and stars shown at sun intensity 2.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{ShowOrbits: true, ShowStars: true, SunIntensity: 2}
}

// DisplayPatch is a partial update of DisplaySettings. Nil fields keep their
// current value.
type DisplayPatch struct {
	ShowOrbits   *bool    `json:"show_orbits,omitempty"`
	ShowStars    *bool    `json:"show_stars,omitempty"`
	SunIntensity *float64 `json:"sun_intensity,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p DisplayPatch) Empty() bool {
	return p.ShowOrbits == nil && p.ShowStars == nil && p.SunIntensity == nil
}

// Apply returns d with the patch's set fields written over it.
func (p DisplayPatch) Apply(d DisplaySettings) DisplaySettings {
	if p.ShowOrbits != nil {
		d.ShowOrbits = *p.ShowOrbits
	}
	if p.ShowStars != nil {
		d.ShowStars = *p.ShowStars
	}
	if p.SunIntensity != nil {
		d.SunIntensity = *p.SunIntensity
	}
	return d
}

// OrbitLine is the closed path of one orbiting body, sampled in its parent's
// body frame, or the world frame for top-level bodies.
type OrbitLine struct {
	Body   BodyID       `json:"body"`
	Name   string       `json:"name"`
	Parent BodyID       `json:"parent"`
	Points []mgl64.Vec3 `json:"points"`
}

// BodySnapshot is the per-frame output for one body.
type BodySnapshot struct {
	ID         BodyID     `json:"id"`
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Parent     BodyID     `json:"parent"`
	Radius     float64    `json:"radius"`
	Distance   float64    `json:"distance"`
	Color      string     `json:"color,omitempty"`
	SpinAngle  float64    `json:"spin_angle"`
	OrbitAngle float64    `json:"orbit_angle"`
	Position   mgl64.Vec3 `json:"position"`
}

// ShipSnapshot is the per-frame output for the ship.
type ShipSnapshot struct {
	Position      mgl64.Vec3 `json:"position"`
	Velocity      mgl64.Vec3 `json:"velocity"`
	Forward       mgl64.Vec3 `json:"forward"`
	Yaw           float64    `json:"yaw"`
	Speed         float64    `json:"speed"`
	Boost         float64    `json:"boost"`
	BoundsClamped bool       `json:"bounds_clamped,omitempty"`
	// Keys are the held key codes the frame was stepped with, sorted.
	Keys []string `json:"keys,omitempty"`
}

// ViewSnapshot tells presentation which camera to use.
type ViewSnapshot struct {
	Mode                 string     `json:"mode"`
	OrbitControlsEnabled bool       `json:"orbit_controls_enabled"`
	ShipCamera           mgl64.Vec3 `json:"ship_camera"`
}

// FrameSnapshot is everything presentation needs to draw one frame.
type FrameSnapshot struct {
	Frame     uint64          `json:"frame"`
	SimDelta  float64         `json:"sim_delta"`
	SimTime   float64         `json:"sim_time"`
	Paused    bool            `json:"paused"`
	TimeScale float64         `json:"time_scale"`
	Bodies    []BodySnapshot  `json:"bodies"`
	Ship      ShipSnapshot    `json:"ship"`
	View      ViewSnapshot    `json:"view"`
	Display   DisplaySettings `json:"display"`
}

// Body returns the snapshot of the named body, matched by catalog name.
func (f FrameSnapshot) Body(name string) (BodySnapshot, bool) {
	for _, b := range f.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return BodySnapshot{}, false
}
