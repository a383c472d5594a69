// Package config loads orrery settings from defaults, an optional config file
// and ORRERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix is prepended to every environment override, with dots in keys
// replaced by underscores (sim.time_scale -> ORRERY_SIM_TIME_SCALE).
const EnvPrefix = "ORRERY"

// Config is the full orrery configuration, one section per subsystem.
type Config struct {
	Sim      SimConfig      `mapstructure:"sim"`
	Ship     ShipConfig     `mapstructure:"ship"`
	Bindings BindingsConfig `mapstructure:"bindings"`
	View     ViewConfig     `mapstructure:"view"`
	Display  DisplayConfig  `mapstructure:"display"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Bodies   []BodyConfig   `mapstructure:"bodies"`
}

// SimConfig sets the clock state at startup and how the frame loop paces.
type SimConfig struct {
	Paused      bool    `mapstructure:"paused"`
	TimeScale   float64 `mapstructure:"time_scale"`
	FrameRate   float64 `mapstructure:"frame_rate"`
	Accelerated bool    `mapstructure:"accelerated"`
	MaxFrames   int     `mapstructure:"max_frames"` // 0 runs until cancelled
}

// ShipConfig holds flight tuning. Vectors are [x, y, z] lists.
type ShipConfig struct {
	Accel           float64   `mapstructure:"accel"`
	MaxSpeed        float64   `mapstructure:"max_speed"`
	Damping         float64   `mapstructure:"damping"`
	TurnRate        float64   `mapstructure:"turn_rate"` // rad/s
	BoostMultiplier float64   `mapstructure:"boost_multiplier"`
	ReverseFactor   float64   `mapstructure:"reverse_factor"`
	MaxRadius       float64   `mapstructure:"max_radius"`
	InitialPosition []float64 `mapstructure:"initial_position"`
	InitialYaw      float64   `mapstructure:"initial_yaw"`
	CameraOffset    []float64 `mapstructure:"camera_offset"`
}

// BindingsConfig maps actions to KeyboardEvent.code values.
type BindingsConfig struct {
	Forward    []string `mapstructure:"forward"`
	Backward   []string `mapstructure:"backward"`
	TurnLeft   []string `mapstructure:"turn_left"`
	TurnRight  []string `mapstructure:"turn_right"`
	Boost      []string `mapstructure:"boost"`
	ToggleView string   `mapstructure:"toggle_view"`
}

// ViewConfig picks the camera mode at startup: overview or ship.
type ViewConfig struct {
	Initial string `mapstructure:"initial"`
}

// DisplayConfig holds the initial presentation toggles.
type DisplayConfig struct {
	ShowOrbits   bool    `mapstructure:"show_orbits"`
	ShowStars    bool    `mapstructure:"show_stars"`
	SunIntensity float64 `mapstructure:"sun_intensity"`
}

// ServerConfig holds listen addresses and the websocket push rate in Hz.
type ServerConfig struct {
	StreamAddr  string  `mapstructure:"stream_addr"`
	GRPCAddr    string  `mapstructure:"grpc_addr"`
	MetricsAddr string  `mapstructure:"metrics_addr"`
	StreamHz    float64 `mapstructure:"stream_hz"`
}

// LogConfig selects the log level and the text or json format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig mirrors observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// BodyConfig is one catalog record. Rates are radians per simulated second.
type BodyConfig struct {
	Name      string  `mapstructure:"name"`
	Kind      string  `mapstructure:"kind"`
	Parent    string  `mapstructure:"parent"`
	Radius    float64 `mapstructure:"radius"`
	Distance  float64 `mapstructure:"distance"`
	SpinRate  float64 `mapstructure:"spin_rate"`
	OrbitRate float64 `mapstructure:"orbit_rate"`
	Color     string  `mapstructure:"color"`
}

// Load reads defaults, then the file at path (skipped when empty), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting files or the
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sim.paused", false)
	v.SetDefault("sim.time_scale", 1.0)
	v.SetDefault("sim.frame_rate", 60.0)
	v.SetDefault("sim.accelerated", false)
	v.SetDefault("sim.max_frames", 0)

	ship := model.DefaultShipConfig()
	v.SetDefault("ship.accel", ship.Accel)
	v.SetDefault("ship.max_speed", ship.MaxSpeed)
	v.SetDefault("ship.damping", ship.Damping)
	v.SetDefault("ship.turn_rate", ship.TurnRate)
	v.SetDefault("ship.boost_multiplier", ship.BoostMultiplier)
	v.SetDefault("ship.reverse_factor", ship.ReverseFactor)
	v.SetDefault("ship.max_radius", ship.MaxRadius)
	v.SetDefault("ship.initial_position", vecSlice(ship.InitialPosition))
	v.SetDefault("ship.initial_yaw", ship.InitialYaw)
	v.SetDefault("ship.camera_offset", vecSlice(ship.CameraOffset))

	keys := core.DefaultKeyBindings()
	v.SetDefault("bindings.forward", keys.Forward)
	v.SetDefault("bindings.backward", keys.Backward)
	v.SetDefault("bindings.turn_left", keys.TurnLeft)
	v.SetDefault("bindings.turn_right", keys.TurnRight)
	v.SetDefault("bindings.boost", keys.Boost)
	v.SetDefault("bindings.toggle_view", keys.ToggleView)

	v.SetDefault("view.initial", core.ViewOverview.String())

	display := core.DefaultDisplaySettings()
	v.SetDefault("display.show_orbits", display.ShowOrbits)
	v.SetDefault("display.show_stars", display.ShowStars)
	v.SetDefault("display.sun_intensity", display.SunIntensity)

	v.SetDefault("server.stream_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.stream_hz", 30.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "orrery")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	bodies := make([]map[string]any, 0, 16)
	for _, d := range model.DefaultCatalog() {
		bodies = append(bodies, map[string]any{
			"name":       d.Name,
			"kind":       d.Kind.String(),
			"parent":     d.Parent,
			"radius":     d.Radius,
			"distance":   d.Distance,
			"spin_rate":  d.SpinRate,
			"orbit_rate": d.OrbitRate,
			"color":      d.Color,
		})
	}
	v.SetDefault("bodies", bodies)
}

func vecSlice(v model.Vec3) []float64 { return []float64{v.X, v.Y, v.Z} }

// Validate rejects values the simulation cannot run with.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(core.CheckTimeScale(c.Sim.TimeScale) == nil, "sim.time_scale %v not in [0, %v]", c.Sim.TimeScale, core.MaxTimeScale)
	check(c.Sim.FrameRate > 0 && !math.IsInf(c.Sim.FrameRate, 0), "sim.frame_rate must be positive")
	check(c.Sim.MaxFrames >= 0, "sim.max_frames must not be negative")

	check(c.Ship.Damping > 0 && c.Ship.Damping <= 1, "ship.damping %v not in (0, 1]", c.Ship.Damping)
	check(c.Ship.MaxSpeed > 0, "ship.max_speed must be positive")
	check(c.Ship.MaxRadius > 0, "ship.max_radius must be positive")
	check(c.Ship.Accel >= 0, "ship.accel must not be negative")
	check(c.Ship.BoostMultiplier >= 1, "ship.boost_multiplier must be at least 1")
	check(len(c.Ship.InitialPosition) == 3, "ship.initial_position needs 3 components")
	check(len(c.Ship.CameraOffset) == 3, "ship.camera_offset needs 3 components")

	_, err := core.ParseViewMode(c.View.Initial)
	check(err == nil, "view.initial %q is not Overview or Ship", c.View.Initial)

	check(core.CheckDisplay(c.DisplaySettings()) == nil, "display.sun_intensity %v not in [0, %v]", c.Display.SunIntensity, core.MaxSunIntensity)
	check(c.Server.StreamHz > 0, "server.stream_hz must be positive")

	check(len(c.Bodies) > 0, "bodies must not be empty")
	for i, b := range c.Bodies {
		if _, err := model.ParseBodyKind(b.Kind); err != nil {
			problems = append(problems, fmt.Sprintf("bodies[%d] %q: %v", i, b.Name, err))
		}
		if b.Color != "" {
			if _, err := colorful.Hex(normaliseHex(b.Color)); err != nil {
				problems = append(problems, fmt.Sprintf("bodies[%d] %q: color %q: %v", i, b.Name, b.Color, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Catalog converts the body records into definitions. Colours are
// normalised to lower-case #rrggbb; bodies without one get a distinct hue.
func (c Config) Catalog() ([]model.BodyDefinition, error) {
	defs := make([]model.BodyDefinition, 0, len(c.Bodies))
	for i, b := range c.Bodies {
		kind, err := model.ParseBodyKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: bodies[%d]: %v", ErrInvalidConfig, i, err)
		}
		color, err := bodyColor(b.Color, i)
		if err != nil {
			return nil, fmt.Errorf("%w: bodies[%d] %q: %v", ErrInvalidConfig, i, b.Name, err)
		}
		defs = append(defs, model.BodyDefinition{
			Name:      strings.TrimSpace(b.Name),
			Kind:      kind,
			Parent:    strings.TrimSpace(b.Parent),
			Radius:    b.Radius,
			Distance:  b.Distance,
			SpinRate:  b.SpinRate,
			OrbitRate: b.OrbitRate,
			Color:     color,
		})
	}
	return defs, nil
}

func bodyColor(raw string, index int) (string, error) {
	if strings.TrimSpace(raw) == "" {
		// golden-angle hue walk keeps neighbours apart
		hue := math.Mod(float64(index)*137.508, 360)
		return colorful.Hcl(hue, 0.5, 0.7).Clamped().Hex(), nil
	}
	c, err := colorful.Hex(normaliseHex(raw))
	if err != nil {
		return "", err
	}
	return c.Hex(), nil
}

// normaliseHex accepts "#abc", "abc", "0xaabbcc" and "#AABBCC".
func normaliseHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "#")
	return "#" + s
}

// ShipConfig converts the ship section into flight parameters. Position and
// offset lists that are not exactly three long become the zero vector.
func (c Config) ShipConfig() model.ShipConfig {
	return model.ShipConfig{
		Accel:           c.Ship.Accel,
		MaxSpeed:        c.Ship.MaxSpeed,
		Damping:         c.Ship.Damping,
		TurnRate:        c.Ship.TurnRate,
		BoostMultiplier: c.Ship.BoostMultiplier,
		ReverseFactor:   c.Ship.ReverseFactor,
		MaxRadius:       c.Ship.MaxRadius,
		InitialPosition: toVec(c.Ship.InitialPosition),
		InitialYaw:      c.Ship.InitialYaw,
		CameraOffset:    toVec(c.Ship.CameraOffset),
	}
}

func toVec(v []float64) model.Vec3 {
	if len(v) != 3 {
		return model.Vec3{}
	}
	return model.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// KeyBindings returns the action to key-code bindings.
func (c Config) KeyBindings() core.KeyBindings {
	return core.KeyBindings{
		Forward:    c.Bindings.Forward,
		Backward:   c.Bindings.Backward,
		TurnLeft:   c.Bindings.TurnLeft,
		TurnRight:  c.Bindings.TurnRight,
		Boost:      c.Bindings.Boost,
		ToggleView: c.Bindings.ToggleView,
	}
}

// InitialView falls back to Overview for a value Validate would reject.
func (c Config) InitialView() core.ViewMode {
	mode, err := core.ParseViewMode(c.View.Initial)
	if err != nil {
		return core.ViewOverview
	}
	return mode
}

// DisplaySettings returns the initial presentation toggles.
func (c Config) DisplaySettings() core.DisplaySettings {
	return core.DisplaySettings{
		ShowOrbits:   c.Display.ShowOrbits,
		ShowStars:    c.Display.ShowStars,
		SunIntensity: c.Display.SunIntensity,
	}
}

// LoggingConfig returns the logger settings, with source locations on.
func (c Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, AddSource: true}
}

// TracingConfig returns tracer settings tagged with the loop and catalog
// shape as resource attributes.
func (c Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
		Attributes: map[string]string{
			"frame_rate":  strconv.FormatFloat(c.Sim.FrameRate, 'g', -1, 64),
			"accelerated": strconv.FormatBool(c.Sim.Accelerated),
			"bodies":      strconv.Itoa(len(c.Bodies)),
		},
	}
}
