package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/orrery/core"
)

type fakeController struct {
	calls []string
	snap  core.FrameSnapshot
	err   error
}

func (f *fakeController) record(call string) (core.FrameSnapshot, error) {
	f.calls = append(f.calls, call)
	return f.snap, f.err
}

func (f *fakeController) State(context.Context) (core.FrameSnapshot, error) { return f.record("state") }

func (f *fakeController) SetPaused(_ context.Context, paused bool) (core.FrameSnapshot, error) {
	f.snap.Paused = paused
	return f.record("paused")
}

func (f *fakeController) SetTimeScale(_ context.Context, scale float64) (core.FrameSnapshot, error) {
	f.snap.TimeScale = scale
	return f.record("timescale")
}

func (f *fakeController) SetView(_ context.Context, view string) (core.FrameSnapshot, error) {
	f.snap.View.Mode = view
	return f.record("view")
}

func (f *fakeController) ToggleView(context.Context) (core.FrameSnapshot, error) {
	return f.record("toggle")
}

func (f *fakeController) PressKey(_ context.Context, code string) error {
	f.calls = append(f.calls, "press "+code)
	return f.err
}

func (f *fakeController) ReleaseKey(_ context.Context, code string) error {
	f.calls = append(f.calls, "release "+code)
	return f.err
}

func (f *fakeController) Bodies(context.Context) ([]map[string]any, error) {
	return []map[string]any{{"key": "Earth/Moon", "kind": "moon", "radius": 0.5, "distance": 3.2}}, f.err
}

func (f *fakeController) Body(_ context.Context, key string) (map[string]any, error) {
	return map[string]any{"key": key}, f.err
}

func (f *fakeController) SetDisplay(_ context.Context, p core.DisplayPatch) (core.FrameSnapshot, error) {
	f.snap.Display = p.Apply(f.snap.Display)
	return f.record("display")
}

func TestExecuteCommands(t *testing.T) {
	tests := []struct {
		args []string
		call string
		want string
	}{
		{[]string{"state"}, "state", "frame=0"},
		{[]string{"pause"}, "paused", "paused=true"},
		{[]string{"resume"}, "paused", "paused=false"},
		{[]string{"timescale", "2.5"}, "timescale", "time_scale=2.5"},
		{[]string{"view", "Ship"}, "view", "view=Ship"},
		{[]string{"toggle-view"}, "toggle", "frame=0"},
		{[]string{"press", "KeyW"}, "press KeyW", "pressed KeyW"},
		{[]string{"release", "KeyW"}, "release KeyW", "released KeyW"},
		{[]string{"display", "orbits=off", "sun=4"}, "display", "show_orbits=false show_stars=false sun_intensity=4"},
	}
	for _, tc := range tests {
		t.Run(strings.Join(tc.args, " "), func(t *testing.T) {
			fake := &fakeController{snap: core.FrameSnapshot{Bodies: []core.BodySnapshot{{Name: "Sun"}}}}
			var out bytes.Buffer
			if err := execute(context.Background(), fake, tc.args, &out); err != nil {
				t.Fatalf("execute: %v", err)
			}
			if len(fake.calls) != 1 || fake.calls[0] != tc.call {
				t.Fatalf("calls = %v, want [%s]", fake.calls, tc.call)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Fatalf("output %q does not contain %q", out.String(), tc.want)
			}
		})
	}
}

func TestExecuteCatalogCommands(t *testing.T) {
	var out bytes.Buffer
	if err := execute(context.Background(), &fakeController{}, []string{"bodies"}, &out); err != nil {
		t.Fatalf("bodies: %v", err)
	}
	if !strings.Contains(out.String(), "Earth/Moon") {
		t.Fatalf("bodies output = %q", out.String())
	}

	out.Reset()
	if err := execute(context.Background(), &fakeController{}, []string{"body", "Earth"}, &out); err != nil {
		t.Fatalf("body: %v", err)
	}
	if !strings.Contains(out.String(), `"key": "Earth"`) {
		t.Fatalf("body output = %q", out.String())
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"warp"},
		{"timescale"},
		{"timescale", "fast"},
		{"view"},
		{"press"},
		{"body"},
		{"display"},
		{"display", "orbits"},
		{"display", "orbits=maybe"},
		{"display", "sun=dim"},
		{"display", "planets=on"},
	} {
		err := execute(context.Background(), &fakeController{}, args, &bytes.Buffer{})
		if !errors.Is(err, errUsage) {
			t.Fatalf("execute(%v) error = %v, want errUsage", args, err)
		}
	}
}

func TestExecutePropagatesRPCErrors(t *testing.T) {
	boom := errors.New("unavailable")
	err := execute(context.Background(), &fakeController{err: boom}, []string{"pause"}, &bytes.Buffer{})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
}

func TestParseDisplay(t *testing.T) {
	p, err := parseDisplay([]string{"stars=ON", "orbits=no", "sun=0.5"})
	if err != nil {
		t.Fatalf("parseDisplay: %v", err)
	}
	got := p.Apply(core.DefaultDisplaySettings())
	want := core.DisplaySettings{ShowOrbits: false, ShowStars: true, SunIntensity: 0.5}
	if got != want {
		t.Fatalf("applied = %+v, want %+v", got, want)
	}

	p, err = parseDisplay([]string{"sun=3"})
	if err != nil || p.ShowOrbits != nil || p.ShowStars != nil {
		t.Fatalf("sun-only patch = %+v, %v", p, err)
	}
}
