package control

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/orrery/core"
)

// Client is a thin typed wrapper over a SimulationControl connection.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to target without transport security. Extra options are
// appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection when the client owns it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invokeState(ctx context.Context, method string, in any) (core.FrameSnapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return core.FrameSnapshot{}, err
	}
	return DecodeState(out)
}

func (c *Client) State(ctx context.Context) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "GetState", &emptypb.Empty{})
}

func (c *Client) SetPaused(ctx context.Context, paused bool) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "SetPaused", wrapperspb.Bool(paused))
}

func (c *Client) SetTimeScale(ctx context.Context, scale float64) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "SetTimeScale", wrapperspb.Double(scale))
}

func (c *Client) SetView(ctx context.Context, view string) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "SetView", wrapperspb.String(view))
}

func (c *Client) ToggleView(ctx context.Context) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "ToggleView", &emptypb.Empty{})
}

// SetDisplay applies the set fields of p and returns the resulting state.
func (c *Client) SetDisplay(ctx context.Context, p core.DisplayPatch) (core.FrameSnapshot, error) {
	return c.invokeState(ctx, "SetDisplay", DisplayPatchToStruct(p))
}

func (c *Client) PressKey(ctx context.Context, code string) error {
	return c.cc.Invoke(ctx, fullMethod("PressKey"), wrapperspb.String(code), new(emptypb.Empty))
}

func (c *Client) ReleaseKey(ctx context.Context, code string) error {
	return c.cc.Invoke(ctx, fullMethod("ReleaseKey"), wrapperspb.String(code), new(emptypb.Empty))
}

// Bodies returns the catalog as a list of field maps.
func (c *Client) Bodies(ctx context.Context) ([]map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ListBodies"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	list := out.GetFields()["bodies"].GetListValue().AsSlice()
	bodies := make([]map[string]any, 0, len(list))
	for _, b := range list {
		if m, ok := b.(map[string]any); ok {
			bodies = append(bodies, m)
		}
	}
	return bodies, nil
}

// Body returns one catalog record by key ("Earth", "Earth/Moon").
func (c *Client) Body(ctx context.Context, key string) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetBody"), wrapperspb.String(key), out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
