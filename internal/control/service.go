// Package control exposes the simulation's configuration surface over gRPC.
//
// The service is declared by hand against protobuf well-known types, so no
// generated code is needed:
//
//	service orrery.control.v1.SimulationControl {
//	  rpc GetState(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc SetPaused(google.protobuf.BoolValue) returns (google.protobuf.Struct);
//	  rpc SetTimeScale(google.protobuf.DoubleValue) returns (google.protobuf.Struct);
//	  rpc SetView(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	  rpc ToggleView(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc PressKey(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc ReleaseKey(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc ListBodies(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc GetBody(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	  rpc SetDisplay(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
//
// SetDisplay takes any subset of show_orbits (bool), show_stars (bool) and
// sun_intensity (number).
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/model"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "orrery.control.v1.SimulationControl"

// Engine is the part of the simulation engine the service drives.
// *core.SimulationEngine implements it.
type Engine interface {
	Snapshot() core.FrameSnapshot
	Paused() bool
	SetPaused(paused bool)
	TimeScale() float64
	SetTimeScale(scale float64) error
	View() core.ViewMode
	SetView(mode core.ViewMode)
	ToggleView() core.ViewMode
	KeyDown(code string) bool
	KeyUp(code string)
	Display() core.DisplaySettings
	UpdateDisplay(p core.DisplayPatch) (core.DisplaySettings, error)
}

// Catalog looks up body definitions. *kb.KnowledgeBase implements it.
type Catalog interface {
	GetBody(key string) (*model.BodyDefinition, error)
	ListBodies() []model.BodyDefinition
}

// SimulationControlServer is the server API for the SimulationControl service.
type SimulationControlServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SetPaused(context.Context, *wrapperspb.BoolValue) (*structpb.Struct, error)
	SetTimeScale(context.Context, *wrapperspb.DoubleValue) (*structpb.Struct, error)
	SetView(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ToggleView(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	PressKey(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	ReleaseKey(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	ListBodies(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBody(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	SetDisplay(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Service implements SimulationControlServer on top of an Engine.
type Service struct {
	engine  Engine
	catalog Catalog
	log     logging.Logger
}

// NewService wires a Service to the engine and an optional catalog.
func NewService(engine Engine, catalog Catalog, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{engine: engine, catalog: catalog, log: log}
}

func (s *Service) ensureReady() error {
	if s == nil || s.engine == nil {
		return ToStatusError(ErrNotReady)
	}
	return nil
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.log)
}

func (s *Service) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.state()
}

func (s *Service) SetPaused(ctx context.Context, in *wrapperspb.BoolValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.engine.SetPaused(in.GetValue())
	s.logger(ctx).Info(ctx, "pause set", logging.Bool("paused", in.GetValue()))
	return s.state()
}

func (s *Service) SetTimeScale(ctx context.Context, in *wrapperspb.DoubleValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ToStatusError(fmt.Errorf("%w: value is required", ErrInvalidTimeScale))
	}
	if err := s.engine.SetTimeScale(in.GetValue()); err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %w", ErrInvalidTimeScale, err))
	}
	s.logger(ctx).Info(ctx, "time scale set", logging.Float64("time_scale", in.GetValue()))
	return s.state()
}

func (s *Service) SetView(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	mode, err := core.ParseViewMode(in.GetValue())
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %w", ErrUnknownView, err))
	}
	s.engine.SetView(mode)
	return s.state()
}

func (s *Service) ToggleView(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	s.engine.ToggleView()
	return s.state()
}

func (s *Service) SetDisplay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	patch, err := DisplayPatchFromStruct(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	d, err := s.engine.UpdateDisplay(patch)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %w", ErrInvalidDisplay, err))
	}
	s.logger(ctx).Info(ctx, "display set",
		logging.Bool("show_orbits", d.ShowOrbits),
		logging.Bool("show_stars", d.ShowStars),
		logging.Float64("sun_intensity", d.SunIntensity),
	)
	return s.state()
}

// DisplayPatchFromStruct reads a SetDisplay request. Unknown fields, wrong
// value kinds and empty requests are rejected with ErrInvalidDisplay.
func DisplayPatchFromStruct(in *structpb.Struct) (core.DisplayPatch, error) {
	var p core.DisplayPatch
	for name, v := range in.GetFields() {
		switch name {
		case "show_orbits", "show_stars":
			b, ok := v.GetKind().(*structpb.Value_BoolValue)
			if !ok {
				return p, fmt.Errorf("%w: %s must be a bool", ErrInvalidDisplay, name)
			}
			val := b.BoolValue
			if name == "show_orbits" {
				p.ShowOrbits = &val
			} else {
				p.ShowStars = &val
			}
		case "sun_intensity":
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return p, fmt.Errorf("%w: sun_intensity must be a number", ErrInvalidDisplay)
			}
			val := n.NumberValue
			p.SunIntensity = &val
		default:
			return p, fmt.Errorf("%w: unknown field %q", ErrInvalidDisplay, name)
		}
	}
	if p.Empty() {
		return p, fmt.Errorf("%w: no fields set", ErrInvalidDisplay)
	}
	return p, nil
}

// DisplayPatchToStruct is the inverse of DisplayPatchFromStruct.
func DisplayPatchToStruct(p core.DisplayPatch) *structpb.Struct {
	fields := make(map[string]*structpb.Value, 3)
	if p.ShowOrbits != nil {
		fields["show_orbits"] = structpb.NewBoolValue(*p.ShowOrbits)
	}
	if p.ShowStars != nil {
		fields["show_stars"] = structpb.NewBoolValue(*p.ShowStars)
	}
	if p.SunIntensity != nil {
		fields["sun_intensity"] = structpb.NewNumberValue(*p.SunIntensity)
	}
	return &structpb.Struct{Fields: fields}
}

func (s *Service) PressKey(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.GetValue())
	if code == "" {
		return nil, ToStatusError(ErrInvalidKey)
	}
	if s.engine.KeyDown(code) {
		s.logger(ctx).Debug(ctx, "key consumed as view toggle", logging.String("code", code))
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) ReleaseKey(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.GetValue())
	if code == "" {
		return nil, ToStatusError(ErrInvalidKey)
	}
	s.engine.KeyUp(code)
	return &emptypb.Empty{}, nil
}

func (s *Service) ListBodies(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.catalog == nil {
		return nil, ToStatusError(ErrNotReady)
	}
	bodies := make([]any, 0)
	for _, d := range s.catalog.ListBodies() {
		bodies = append(bodies, bodyFields(d))
	}
	out, err := structpb.NewStruct(map[string]any{"bodies": bodies})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *Service) GetBody(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.catalog == nil {
		return nil, ToStatusError(ErrNotReady)
	}
	d, err := s.catalog.GetBody(in.GetValue())
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := structpb.NewStruct(bodyFields(*d))
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func bodyFields(d model.BodyDefinition) map[string]any {
	return map[string]any{
		"key":        d.Key(),
		"name":       d.Name,
		"kind":       d.Kind.String(),
		"parent":     d.Parent,
		"radius":     d.Radius,
		"distance":   d.Distance,
		"spin_rate":  d.SpinRate,
		"orbit_rate": d.OrbitRate,
		"color":      d.Color,
	}
}

// state reports the latest frame with the settings overlaid, so a setter's
// effect is visible before the next frame is stepped.
func (s *Service) state() (*structpb.Struct, error) {
	snap := s.engine.Snapshot()
	snap.Paused = s.engine.Paused()
	snap.TimeScale = s.engine.TimeScale()
	mode := s.engine.View()
	snap.View.Mode = mode.String()
	snap.View.OrbitControlsEnabled = mode.OrbitControlsEnabled()
	snap.Display = s.engine.Display()

	out, err := EncodeState(snap)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// EncodeState converts a snapshot into its wire form, using the snapshot's
// JSON field names.
func EncodeState(snap core.FrameSnapshot) (*structpb.Struct, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return out, nil
}

// DecodeState is the inverse of EncodeState.
func DecodeState(in *structpb.Struct) (core.FrameSnapshot, error) {
	var snap core.FrameSnapshot
	raw, err := protojson.Marshal(in)
	if err != nil {
		return snap, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

// RegisterSimulationControlServer registers srv on s.
func RegisterSimulationControlServer(s grpc.ServiceRegistrar, srv SimulationControlServer) {
	s.RegisterService(&SimulationControl_ServiceDesc, srv)
}

// SimulationControl_ServiceDesc is the grpc.ServiceDesc for the
// SimulationControl service.
var SimulationControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: unaryHandler("GetState", newEmpty, SimulationControlServer.GetState)},
		{MethodName: "SetPaused", Handler: unaryHandler("SetPaused", newBool, SimulationControlServer.SetPaused)},
		{MethodName: "SetTimeScale", Handler: unaryHandler("SetTimeScale", newDouble, SimulationControlServer.SetTimeScale)},
		{MethodName: "SetView", Handler: unaryHandler("SetView", newString, SimulationControlServer.SetView)},
		{MethodName: "ToggleView", Handler: unaryHandler("ToggleView", newEmpty, SimulationControlServer.ToggleView)},
		{MethodName: "PressKey", Handler: unaryHandler("PressKey", newString, SimulationControlServer.PressKey)},
		{MethodName: "ReleaseKey", Handler: unaryHandler("ReleaseKey", newString, SimulationControlServer.ReleaseKey)},
		{MethodName: "ListBodies", Handler: unaryHandler("ListBodies", newEmpty, SimulationControlServer.ListBodies)},
		{MethodName: "GetBody", Handler: unaryHandler("GetBody", newString, SimulationControlServer.GetBody)},
		{MethodName: "SetDisplay", Handler: unaryHandler("SetDisplay", newStruct, SimulationControlServer.SetDisplay)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orrery/control/v1/control.proto",
}

func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }
func newBool() *wrapperspb.BoolValue     { return new(wrapperspb.BoolValue) }
func newDouble() *wrapperspb.DoubleValue { return new(wrapperspb.DoubleValue) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }

func fullMethod(method string) string { return "/" + ServiceName + "/" + method }

// unaryHandler adapts a typed server method to grpc.MethodHandler the way
// generated code does.
func unaryHandler[Req proto.Message, Resp proto.Message](
	method string,
	newReq func() Req,
	call func(SimulationControlServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(SimulationControlServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
