package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/model"
)

const tracerName = "github.com/signalsfoundry/orrery/core"

// Accepted ranges of the configuration surface.
const (
	MaxTimeScale    = 3.0
	MaxSunIntensity = 5.0
)

var (
	// ErrTimeScaleOutOfRange indicates a time scale outside [0, MaxTimeScale].
	ErrTimeScaleOutOfRange = errors.New("time scale out of range")
	// ErrSunIntensityOutOfRange indicates a sun intensity outside [0, MaxSunIntensity].
	ErrSunIntensityOutOfRange = errors.New("sun intensity out of range")
)

// CheckTimeScale validates a time scale coming from a configuration surface.
func CheckTimeScale(scale float64) error {
	if math.IsNaN(scale) || scale < 0 || scale > MaxTimeScale {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrTimeScaleOutOfRange, scale, MaxTimeScale)
	}
	return nil
}

// CheckDisplay validates presentation settings.
func CheckDisplay(d DisplaySettings) error {
	if math.IsNaN(d.SunIntensity) || d.SunIntensity < 0 || d.SunIntensity > MaxSunIntensity {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrSunIntensityOutOfRange, d.SunIntensity, MaxSunIntensity)
	}
	return nil
}

// Clock yields the simulated delta of each frame and carries the pause and
// time-scale settings. timectrl.SimulationClock implements it.
type Clock interface {
	Tick() float64
	Paused() bool
	SetPaused(bool)
	TimeScale() float64
	SetTimeScale(float64)
}

// FrameStats is handed to the metrics recorder after every step.
type FrameStats struct {
	Frame         uint64
	SimDelta      float64
	TimeScale     float64
	Paused        bool
	ShipSpeed     float64
	ShipDistance  float64
	SpeedClamped  bool
	BoundsClamped bool
	StepDuration  time.Duration
}

// MetricsRecorder receives per-frame statistics.
type MetricsRecorder interface {
	RecordFrame(FrameStats)
}

// SimulationEngine runs the per-frame pipeline: clock tick, orbital advance,
// flight advance, snapshot. Step is synchronous; the setters may be called
// from other goroutines and take effect on the next Step.
type SimulationEngine struct {
	// mu guards the arena, the ship and the frame counters.
	mu sync.RWMutex

	system  *System
	orbits  OrbitalMotionEngine
	flight  *FlightController
	ship    ShipState
	frame   uint64
	simTime float64
	last    FrameSnapshot
	display DisplaySettings

	clock    Clock
	input    *InputState
	view     *ViewSwitch
	bindings KeyBindings

	listeners []func(FrameSnapshot)

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// EngineOption customises SimulationEngine construction.
type EngineOption func(*SimulationEngine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *SimulationEngine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetricsRecorder attaches a per-frame metrics sink.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *SimulationEngine) { e.metrics = m }
}

// WithBindings overrides the default key bindings.
func WithBindings(b KeyBindings) EngineOption {
	return func(e *SimulationEngine) { e.bindings = b }
}

// WithView sets the initial view mode.
func WithView(mode ViewMode) EngineOption {
	return func(e *SimulationEngine) { e.view = NewViewSwitch(mode) }
}

// NewSimulationEngine wires the arena, the ship and the clock together.
func NewSimulationEngine(system *System, ship model.ShipConfig, clock Clock, opts ...EngineOption) *SimulationEngine {
	e := &SimulationEngine{
		system:   system,
		ship:     NewShipState(ship),
		display:  DefaultDisplaySettings(),
		clock:    clock,
		input:    NewInputState(),
		view:     NewViewSwitch(ViewOverview),
		bindings: DefaultKeyBindings(),
		log:      logging.Noop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.flight = NewFlightController(ship, e.bindings)

	e.mu.Lock()
	e.last = e.snapshotLocked(0, FlightStatus{Boost: 1}, nil)
	e.mu.Unlock()
	return e
}

// RegisterFrameListener adds a callback invoked after every Step with the
// new snapshot, outside the engine lock.
func (e *SimulationEngine) RegisterFrameListener(fn func(FrameSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Step advances the simulation by one frame and returns its snapshot.
func (e *SimulationEngine) Step(ctx context.Context) FrameSnapshot {
	ctx, span := e.tracer.Start(ctx, "SimulationEngine.Step")
	defer span.End()
	start := time.Now()

	simDelta := e.clock.Tick()
	keys := e.input.Snapshot()

	e.mu.Lock()
	e.orbits.Advance(e.system, simDelta)
	ship, status := e.flight.Advance(e.ship, simDelta, keys)
	e.ship = ship
	e.frame++
	e.simTime += simDelta
	snap := e.snapshotLocked(simDelta, status, keys)
	e.last = snap
	listeners := append([]func(FrameSnapshot){}, e.listeners...)
	e.mu.Unlock()

	if status.BoundsClamped {
		e.log.Debug(ctx, "ship stopped at world boundary",
			logging.Vec3("position", ship.Position.X(), ship.Position.Y(), ship.Position.Z()),
			logging.Float64("distance", ship.Position.Len()),
			logging.Uint64("frame", snap.Frame),
		)
	}

	span.SetAttributes(
		attribute.Int64("orrery.frame", int64(snap.Frame)),
		attribute.Float64("orrery.sim_delta", simDelta),
		attribute.Bool("orrery.bounds_clamped", status.BoundsClamped),
	)

	if e.metrics != nil {
		e.metrics.RecordFrame(FrameStats{
			Frame:         snap.Frame,
			SimDelta:      simDelta,
			TimeScale:     snap.TimeScale,
			Paused:        snap.Paused,
			ShipSpeed:     snap.Ship.Speed,
			ShipDistance:  ship.Position.Len(),
			SpeedClamped:  status.SpeedClamped,
			BoundsClamped: status.BoundsClamped,
			StepDuration:  time.Since(start),
		})
	}

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

// Snapshot returns the most recent frame output.
func (e *SimulationEngine) Snapshot() FrameSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Ship returns the current ship state.
func (e *SimulationEngine) Ship() ShipState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ship
}

// KeyDown handles a key press. The view toggle key flips the view and is
// not recorded as held; it reports true in that case.
func (e *SimulationEngine) KeyDown(code string) bool {
	if code != "" && code == e.bindings.ToggleView {
		e.ToggleView()
		return true
	}
	e.input.Press(code)
	return false
}

// KeyUp handles a key release.
func (e *SimulationEngine) KeyUp(code string) {
	e.input.Release(code)
}

// ReleaseKeys releases every listed key.
func (e *SimulationEngine) ReleaseKeys(codes ...string) {
	for _, c := range codes {
		e.input.Release(c)
	}
}

// HeldKeys returns the keys currently held.
func (e *SimulationEngine) HeldKeys() HeldKeys {
	return e.input.Snapshot()
}

// ToggleView flips the camera mode and returns the new one.
func (e *SimulationEngine) ToggleView() ViewMode {
	mode := e.view.Toggle()
	e.log.Info(context.Background(), "view changed", logging.String("mode", mode.String()))
	return mode
}

// SetView selects a camera mode.
func (e *SimulationEngine) SetView(mode ViewMode) {
	e.view.Set(mode)
	e.log.Info(context.Background(), "view changed", logging.String("mode", mode.String()))
}

// View returns the active camera mode.
func (e *SimulationEngine) View() ViewMode { return e.view.Mode() }

// SetPaused pauses or resumes simulated time.
func (e *SimulationEngine) SetPaused(paused bool) {
	e.clock.SetPaused(paused)
	e.log.Info(context.Background(), "pause changed", logging.Bool("paused", paused))
}

// SetTimeScale validates and applies a time scale.
func (e *SimulationEngine) SetTimeScale(scale float64) error {
	if err := CheckTimeScale(scale); err != nil {
		return err
	}
	e.clock.SetTimeScale(scale)
	e.log.Info(context.Background(), "time scale changed", logging.Float64("time_scale", scale))
	return nil
}

// SetDisplay validates and replaces the presentation toggles.
func (e *SimulationEngine) SetDisplay(d DisplaySettings) error {
	if err := CheckDisplay(d); err != nil {
		return err
	}
	e.mu.Lock()
	e.display = d
	e.last.Display = d
	e.mu.Unlock()
	return nil
}

// UpdateDisplay applies a partial display change and returns the result.
// An out-of-range patch leaves the settings unchanged.
func (e *SimulationEngine) UpdateDisplay(p DisplayPatch) (DisplaySettings, error) {
	e.mu.Lock()
	next := p.Apply(e.display)
	if err := CheckDisplay(next); err != nil {
		cur := e.display
		e.mu.Unlock()
		return cur, err
	}
	e.display = next
	e.last.Display = next
	e.mu.Unlock()

	e.log.Info(context.Background(), "display changed",
		logging.Bool("show_orbits", next.ShowOrbits),
		logging.Bool("show_stars", next.ShowStars),
		logging.Float64("sun_intensity", next.SunIntensity),
	)
	return next, nil
}

// OrbitLines samples the orbit path of every body with a non-zero orbit
// distance. Distances are fixed for a run, so callers may cache the result.
func (e *SimulationEngine) OrbitLines(segments int) []OrbitLine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lines := make([]OrbitLine, 0, e.system.Len())
	for _, b := range e.system.bodies {
		if b.Def.Distance == 0 {
			continue
		}
		lines = append(lines, OrbitLine{
			Body:   b.ID,
			Name:   b.Def.Name,
			Parent: b.Parent,
			Points: OrbitPath(b.Def.Distance, segments),
		})
	}
	return lines
}

// Display returns the presentation toggles.
func (e *SimulationEngine) Display() DisplaySettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.display
}

// Paused reports the clock's pause flag.
func (e *SimulationEngine) Paused() bool { return e.clock.Paused() }

// TimeScale reports the clock's time scale.
func (e *SimulationEngine) TimeScale() float64 { return e.clock.TimeScale() }

func (e *SimulationEngine) snapshotLocked(simDelta float64, status FlightStatus, keys HeldKeys) FrameSnapshot {
	bodies := make([]BodySnapshot, 0, e.system.Len())
	for _, b := range e.system.bodies {
		bodies = append(bodies, BodySnapshot{
			ID:         b.ID,
			Name:       b.Def.Name,
			Kind:       b.Def.Kind.String(),
			Parent:     b.Parent,
			Radius:     b.Def.Radius,
			Distance:   b.Def.Distance,
			Color:      b.Def.Color,
			SpinAngle:  b.SpinAngle,
			OrbitAngle: b.OrbitAngle,
			Position:   e.system.WorldPosition(b.ID),
		})
	}

	cameraOffset := toVec3(e.flight.Config.CameraOffset)
	mode := e.view.Mode()
	return FrameSnapshot{
		Frame:     e.frame,
		SimDelta:  simDelta,
		SimTime:   e.simTime,
		Paused:    e.clock.Paused(),
		TimeScale: e.clock.TimeScale(),
		Bodies:    bodies,
		Ship: ShipSnapshot{
			Position:      e.ship.Position,
			Velocity:      e.ship.Velocity,
			Forward:       e.ship.Forward(),
			Yaw:           e.ship.Yaw,
			Speed:         e.ship.Speed(),
			Boost:         status.Boost,
			BoundsClamped: status.BoundsClamped,
			Keys:          keys.Sorted(),
		},
		View: ViewSnapshot{
			Mode:                 mode.String(),
			OrbitControlsEnabled: mode.OrbitControlsEnabled(),
			ShipCamera:           e.ship.Position.Add(mgl64.Rotate3DY(e.ship.Yaw).Mul3x1(cameraOffset)),
		},
		Display: e.display,
	}
}
