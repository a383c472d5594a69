package control

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

type testEnv struct {
	engine  *core.SimulationEngine
	client  *Client
	conn    *grpc.ClientConn
	metrics *observability.SimCollector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	catalog, err := kb.FromDefinitions(model.DefaultCatalog())
	if err != nil {
		t.Fatalf("FromDefinitions: %v", err)
	}
	sys, err := core.NewSystem(catalog.ListBodies())
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	engine := core.NewSimulationEngine(sys, model.DefaultShipConfig(), timectrl.NewSimulationClock())

	metrics, err := observability.NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	server, _ := NewGRPCServer(NewService(engine, catalog, logging.Noop()), logging.Noop(), metrics)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{engine: engine, client: NewClient(conn), conn: conn, metrics: metrics}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetStateReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	env.engine.Step(ctx)

	state, err := env.client.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Frame != 1 || len(state.Bodies) != len(model.DefaultCatalog()) {
		t.Fatalf("state frame %d with %d bodies", state.Frame, len(state.Bodies))
	}
	want := env.engine.Snapshot()
	earth, _ := state.Body("Earth")
	wantEarth, _ := want.Body("Earth")
	if earth.Position.Sub(wantEarth.Position).Len() > 1e-9 {
		t.Fatalf("earth position = %v, want %v", earth.Position, wantEarth.Position)
	}
	if state.Ship.Position != want.Ship.Position {
		t.Fatalf("ship position = %v, want %v", state.Ship.Position, want.Ship.Position)
	}
}

func TestSetPausedIsVisibleImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	state, err := env.client.SetPaused(ctx, true)
	if err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if !state.Paused || !env.engine.Paused() {
		t.Fatalf("pause not applied: state=%v engine=%v", state.Paused, env.engine.Paused())
	}
	if snap := env.engine.Step(ctx); snap.SimDelta != 0 {
		t.Fatalf("paused step delta = %v", snap.SimDelta)
	}

	if state, err = env.client.SetPaused(ctx, false); err != nil || state.Paused {
		t.Fatalf("resume: paused=%v err=%v", state.Paused, err)
	}
}

func TestSetTimeScaleValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	state, err := env.client.SetTimeScale(ctx, 2.5)
	if err != nil {
		t.Fatalf("SetTimeScale: %v", err)
	}
	if state.TimeScale != 2.5 {
		t.Fatalf("time scale = %v, want 2.5", state.TimeScale)
	}

	_, err = env.client.SetTimeScale(ctx, 4)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetTimeScale(4) code = %v, want InvalidArgument (err=%v)", status.Code(err), err)
	}
	if env.engine.TimeScale() != 2.5 {
		t.Fatalf("rejected scale applied: %v", env.engine.TimeScale())
	}

	if got := testutil.ToFloat64(env.metrics.RPCRequests.WithLabelValues("SimulationControl", "SetTimeScale", "InvalidArgument")); got != 1 {
		t.Fatalf("orrery_control_requests_total{InvalidArgument} = %v, want 1", got)
	}
}

func TestViewRPCs(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	state, err := env.client.ToggleView(ctx)
	if err != nil {
		t.Fatalf("ToggleView: %v", err)
	}
	if state.View.Mode != "Ship" || state.View.OrbitControlsEnabled {
		t.Fatalf("view after toggle = %+v", state.View)
	}

	if state, err = env.client.SetView(ctx, "overview"); err != nil || state.View.Mode != "Overview" {
		t.Fatalf("SetView: mode=%q err=%v", state.View.Mode, err)
	}

	_, err = env.client.SetView(ctx, "cockpit")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetView(cockpit) code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestKeyRPCs(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	if err := env.client.PressKey(ctx, "KeyW"); err != nil {
		t.Fatalf("PressKey: %v", err)
	}
	if !env.engine.HeldKeys().Has("KeyW") {
		t.Fatalf("KeyW not held")
	}
	if err := env.client.PressKey(ctx, "KeyV"); err != nil {
		t.Fatalf("PressKey(KeyV): %v", err)
	}
	if env.engine.HeldKeys().Has("KeyV") || env.engine.View() != core.ViewShip {
		t.Fatalf("toggle key should switch view without being held")
	}
	if err := env.client.ReleaseKey(ctx, "KeyW"); err != nil {
		t.Fatalf("ReleaseKey: %v", err)
	}
	if len(env.engine.HeldKeys()) != 0 {
		t.Fatalf("held after release = %v", env.engine.HeldKeys().Sorted())
	}

	if err := env.client.PressKey(ctx, "  "); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("PressKey(blank) code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestSetDisplayRPC(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	off := false
	intensity := 3.0
	state, err := env.client.SetDisplay(ctx, core.DisplayPatch{ShowOrbits: &off, SunIntensity: &intensity})
	if err != nil {
		t.Fatalf("SetDisplay: %v", err)
	}
	want := core.DisplaySettings{ShowOrbits: false, ShowStars: true, SunIntensity: 3}
	if state.Display != want {
		t.Fatalf("state display = %+v, want %+v", state.Display, want)
	}
	if got := env.engine.Display(); got != want {
		t.Fatalf("engine display = %+v, want %+v", got, want)
	}

	tooBright := 7.5
	_, err = env.client.SetDisplay(ctx, core.DisplayPatch{SunIntensity: &tooBright})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetDisplay(7.5) code = %v, want InvalidArgument", status.Code(err))
	}
	if _, err = env.client.SetDisplay(ctx, core.DisplayPatch{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("SetDisplay(empty) code = %v, want InvalidArgument", status.Code(err))
	}
	if got := env.engine.Display(); got != want {
		t.Fatalf("rejected requests changed display to %+v", got)
	}
}

func TestDisplayPatchFromStruct(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]any
		ok     bool
	}{
		{"all fields", map[string]any{"show_orbits": true, "show_stars": false, "sun_intensity": 1.5}, true},
		{"one field", map[string]any{"show_stars": true}, true},
		{"empty", map[string]any{}, false},
		{"unknown field", map[string]any{"show_planets": true}, false},
		{"wrong kind", map[string]any{"sun_intensity": "bright"}, false},
		{"bool as number", map[string]any{"show_orbits": 1}, false},
	}
	for _, tc := range cases {
		in, err := structpb.NewStruct(tc.fields)
		if err != nil {
			t.Fatalf("%s: NewStruct: %v", tc.name, err)
		}
		p, err := DisplayPatchFromStruct(in)
		if tc.ok != (err == nil) {
			t.Fatalf("%s: err = %v, want ok=%v", tc.name, err, tc.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidDisplay) {
			t.Fatalf("%s: err = %v, want ErrInvalidDisplay", tc.name, err)
		}
		if tc.ok {
			back := DisplayPatchToStruct(p).AsMap()
			if len(back) != len(tc.fields) {
				t.Fatalf("%s: round trip = %v", tc.name, back)
			}
		}
	}
}

func TestCatalogRPCs(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	bodies, err := env.client.Bodies(ctx)
	if err != nil {
		t.Fatalf("Bodies: %v", err)
	}
	if len(bodies) != len(model.DefaultCatalog()) {
		t.Fatalf("bodies = %d, want %d", len(bodies), len(model.DefaultCatalog()))
	}

	moon, err := env.client.Body(ctx, "Earth/Moon")
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if moon["parent"] != "Earth" || moon["kind"] != "moon" {
		t.Fatalf("moon = %v", moon)
	}

	_, err = env.client.Body(ctx, "Pluto")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Body(Pluto) code = %v, want NotFound", status.Code(err))
	}
}

func TestHealthService(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v", resp.GetStatus())
	}
}

func TestServiceWithoutEngine(t *testing.T) {
	svc := NewService(nil, nil, nil)
	if _, err := svc.GetState(context.Background(), nil); status.Code(err) != codes.Unavailable {
		t.Fatalf("GetState code = %v, want Unavailable", status.Code(err))
	}
	if _, err := svc.ListBodies(context.Background(), nil); status.Code(err) != codes.Unavailable {
		t.Fatalf("ListBodies code = %v, want Unavailable", status.Code(err))
	}
}

func TestRequestIDInterceptorUsesIncomingMetadata(t *testing.T) {
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, "req-123"))
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/GetState"}

	var seen string
	var hasLogger bool
	_, err := interceptor(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = logging.RequestIDFromContext(ctx)
		hasLogger = logging.LoggerFromContext(ctx) != nil
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "req-123" || !hasLogger {
		t.Fatalf("request id = %q, logger attached = %v", seen, hasLogger)
	}
}

func TestEncodeDecodeStateKeepsVectors(t *testing.T) {
	snap := core.FrameSnapshot{Frame: 9, TimeScale: 1.5}
	snap.Ship.Position[0] = 3
	snap.Ship.Position[2] = -4

	encoded, err := EncodeState(snap)
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	got, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if got.Frame != 9 || got.Ship.Position != snap.Ship.Position || got.TimeScale != 1.5 {
		t.Fatalf("decoded = %+v", got)
	}
}
