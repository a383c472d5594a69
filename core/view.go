package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownViewMode indicates a view name that is neither Overview nor Ship.
var ErrUnknownViewMode = errors.New("unknown view mode")

// ViewMode selects which viewpoint the presentation layer renders from.
type ViewMode int

const (
	// ViewOverview is the independent observation camera with orbit-style controls.
	ViewOverview ViewMode = iota
	// ViewShip is the camera mounted on the ship; orbit controls are disabled.
	ViewShip
)

func (m ViewMode) String() string {
	if m == ViewShip {
		return "Ship"
	}
	return "Overview"
}

// OrbitControlsEnabled reports whether orbit-style camera manipulation may
// act in mode m. In Ship mode the flight controller owns the viewpoint.
func (m ViewMode) OrbitControlsEnabled() bool { return m == ViewOverview }

// ParseViewMode accepts "Overview" or "Ship" in any case.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overview":
		return ViewOverview, nil
	case "ship":
		return ViewShip, nil
	default:
		return ViewOverview, fmt.Errorf("%w: %q", ErrUnknownViewMode, s)
	}
}

// ViewSwitch is the two-state camera mode toggle. Switching never touches
// ship state.
type ViewSwitch struct {
	mu   sync.RWMutex
	mode ViewMode
}

// NewViewSwitch starts in the given mode.
func NewViewSwitch(initial ViewMode) *ViewSwitch {
	return &ViewSwitch{mode: initial}
}

// Mode returns the active mode.
func (v *ViewSwitch) Mode() ViewMode {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.mode
}

// Set selects a mode.
func (v *ViewSwitch) Set(mode ViewMode) {
	v.mu.Lock()
	v.mode = mode
	v.mu.Unlock()
}

// Toggle flips between Overview and Ship and returns the new mode.
func (v *ViewSwitch) Toggle() ViewMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode == ViewShip {
		v.mode = ViewOverview
	} else {
		v.mode = ViewShip
	}
	return v.mode
}

// OrbitControlsEnabled reports whether the active mode allows orbit-style
// camera manipulation.
func (v *ViewSwitch) OrbitControlsEnabled() bool {
	return v.Mode().OrbitControlsEnabled()
}
