package timectrl

import "sync"

// FixedStep is the virtual reference tick in seconds. Simulated motion is
// stepped by this amount per frame regardless of the real frame rate, so a
// change of time scale is perceived linearly.
const FixedStep = 1.0 / 60.0

// DefaultTimeScale is the time scale a fresh clock runs at.
const DefaultTimeScale = 1.0

// SimulationClock derives the simulated delta of a frame from a pause flag
// and a time-scale multiplier. Setters take effect on the next Tick.
//
// A non-negative time scale is a caller precondition; the configuration
// surfaces clamp it to [0, 3] before it reaches the clock.
type SimulationClock struct {
	mu        sync.RWMutex
	paused    bool
	timeScale float64
}

// NewSimulationClock constructs a running clock at DefaultTimeScale.
func NewSimulationClock() *SimulationClock {
	return &SimulationClock{timeScale: DefaultTimeScale}
}

// Tick returns the simulated delta for one frame: 0 while paused, otherwise
// timeScale * FixedStep.
func (c *SimulationClock) Tick() float64 {
	return c.Factor() * FixedStep
}

// Factor returns the effective time multiplier: 0 while paused, otherwise
// the time scale.
func (c *SimulationClock) Factor() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return 0
	}
	return c.timeScale
}

// SetPaused sets the pause flag.
func (c *SimulationClock) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// Paused reports the pause flag.
func (c *SimulationClock) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// SetTimeScale sets the time-scale multiplier.
func (c *SimulationClock) SetTimeScale(scale float64) {
	c.mu.Lock()
	c.timeScale = scale
	c.mu.Unlock()
}

// TimeScale returns the time-scale multiplier, ignoring the pause flag.
func (c *SimulationClock) TimeScale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeScale
}
