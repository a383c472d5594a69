package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/model"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.TimeScale != 1 || cfg.Sim.FrameRate != 60 || cfg.Sim.Paused {
		t.Fatalf("sim defaults = %+v", cfg.Sim)
	}
	if got := cfg.ShipConfig(); got != model.DefaultShipConfig() {
		t.Fatalf("ship defaults = %+v, want %+v", got, model.DefaultShipConfig())
	}
	if cfg.InitialView() != core.ViewOverview {
		t.Fatalf("initial view = %v", cfg.InitialView())
	}
	if cfg.DisplaySettings() != core.DefaultDisplaySettings() {
		t.Fatalf("display defaults = %+v", cfg.DisplaySettings())
	}
	if cfg.KeyBindings().ToggleView != "KeyV" {
		t.Fatalf("toggle binding = %q", cfg.KeyBindings().ToggleView)
	}

	defs, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	want := model.DefaultCatalog()
	if len(defs) != len(want) {
		t.Fatalf("catalog has %d bodies, want %d", len(defs), len(want))
	}
	for i := range want {
		if defs[i] != want[i] {
			t.Fatalf("body %d = %+v, want %+v", i, defs[i], want[i])
		}
	}
}

func TestDefaultMatchesLoad(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Server.StreamAddr != ":8080" || cfg.Server.StreamHz != 30 {
		t.Fatalf("server defaults = %+v", cfg.Server)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, "orrery.yaml", `
sim:
  time_scale: 2
  paused: true
view:
  initial: ship
display:
  show_stars: false
  sun_intensity: 4
bodies:
  - name: Sun
    kind: star
    radius: 5
    color: "#FFF"
  - name: Vulcan
    kind: planet
    radius: 1
    distance: 7
    orbit_rate: 0.5
  - name: Tiny
    kind: moon
    parent: Vulcan
    radius: 0.1
    distance: 1.5
    color: "0xAABBCC"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.TimeScale != 2 || !cfg.Sim.Paused {
		t.Fatalf("sim = %+v", cfg.Sim)
	}
	if cfg.InitialView() != core.ViewShip {
		t.Fatalf("initial view = %v, want Ship", cfg.InitialView())
	}
	if d := cfg.DisplaySettings(); d.ShowStars || !d.ShowOrbits || d.SunIntensity != 4 {
		t.Fatalf("display = %+v", d)
	}

	defs, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("catalog has %d bodies, want 3", len(defs))
	}
	if defs[0].Color != "#ffffff" {
		t.Fatalf("short hex not expanded: %q", defs[0].Color)
	}
	if defs[1].Color == "" || !strings.HasPrefix(defs[1].Color, "#") || len(defs[1].Color) != 7 {
		t.Fatalf("missing colour not generated: %q", defs[1].Color)
	}
	if defs[2].Color != "#aabbcc" || defs[2].Parent != "Vulcan" || defs[2].Kind != model.BodyKindMoon {
		t.Fatalf("moon = %+v", defs[2])
	}
	if _, err := core.NewSystem(defs); err != nil {
		t.Fatalf("catalog does not build a system: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ORRERY_SIM_TIME_SCALE", "0.5")
	t.Setenv("ORRERY_SERVER_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("ORRERY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sim.TimeScale != 0.5 {
		t.Fatalf("time scale = %v, want 0.5", cfg.Sim.TimeScale)
	}
	if cfg.Server.GRPCAddr != "127.0.0.1:6000" {
		t.Fatalf("grpc addr = %q", cfg.Server.GRPCAddr)
	}
	if cfg.LoggingConfig().Level != "debug" {
		t.Fatalf("log level = %q", cfg.LoggingConfig().Level)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"time scale high", func(c *Config) { c.Sim.TimeScale = 4 }, "sim.time_scale"},
		{"time scale negative", func(c *Config) { c.Sim.TimeScale = -1 }, "sim.time_scale"},
		{"sun intensity", func(c *Config) { c.Display.SunIntensity = 5.5 }, "display.sun_intensity"},
		{"damping zero", func(c *Config) { c.Ship.Damping = 0 }, "ship.damping"},
		{"damping above one", func(c *Config) { c.Ship.Damping = 1.2 }, "ship.damping"},
		{"max speed", func(c *Config) { c.Ship.MaxSpeed = 0 }, "ship.max_speed"},
		{"max radius", func(c *Config) { c.Ship.MaxRadius = -1 }, "ship.max_radius"},
		{"frame rate", func(c *Config) { c.Sim.FrameRate = 0 }, "sim.frame_rate"},
		{"view", func(c *Config) { c.View.Initial = "cockpit" }, "view.initial"},
		{"position", func(c *Config) { c.Ship.InitialPosition = []float64{1, 2} }, "initial_position"},
		{"body kind", func(c *Config) { c.Bodies[0].Kind = "comet" }, "unknown body kind"},
		{"body color", func(c *Config) { c.Bodies[0].Color = "#zzzzzz" }, "color"},
		{"no bodies", func(c *Config) { c.Bodies = nil }, "bodies"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("error %q does not mention %q", err, tc.substr)
			}
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "sim:\n  time_scale: 9\n")
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Load error = %v, want ErrInvalidConfig", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTracingConfig(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Exporter = "OTLP"
	tc := cfg.TracingConfig()
	if tc.Exporter != "otlp" || tc.ServiceName != "orrery" || tc.SampleRatio != 1 {
		t.Fatalf("tracing config = %+v", tc)
	}
	if tc.Attributes["accelerated"] != "false" || tc.Attributes["frame_rate"] != "60" {
		t.Fatalf("tracing attributes = %v", tc.Attributes)
	}
}
