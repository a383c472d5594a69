package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/orrery/core"
)

// SimCollector bundles Prometheus metrics for the frame loop, the snapshot
// stream and the control surface, and provides helpers to wire them into
// gRPC servers and HTTP handlers.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Frames        prometheus.Counter
	SimulatedTime prometheus.Counter
	FrameDuration prometheus.Histogram
	TimeScale     prometheus.Gauge
	Paused        prometheus.Gauge
	ShipSpeed     prometheus.Gauge
	ShipDistance  prometheus.Gauge
	BoundsClamps  prometheus.Counter

	StreamClients       prometheus.Gauge
	StreamDroppedFrames prometheus.Counter

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewSimCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimCollector{gatherer: gatherer}
	var err error

	if c.Frames, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_frames_total",
		Help: "Total number of simulation frames stepped.",
	}), "orrery_frames_total"); err != nil {
		return nil, err
	}
	if c.SimulatedTime, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_simulated_seconds_total",
		Help: "Simulated seconds accumulated across all frames.",
	}), "orrery_simulated_seconds_total"); err != nil {
		return nil, err
	}
	if c.FrameDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_frame_duration_seconds",
		Help:    "Wall time spent inside one simulation step.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}), "orrery_frame_duration_seconds"); err != nil {
		return nil, err
	}
	if c.TimeScale, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_time_scale",
		Help: "Current simulation time scale.",
	}), "orrery_time_scale"); err != nil {
		return nil, err
	}
	if c.Paused, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_paused",
		Help: "1 while simulated time is paused.",
	}), "orrery_paused"); err != nil {
		return nil, err
	}
	if c.ShipSpeed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_ship_speed",
		Help: "Ship speed in world units per simulated second.",
	}), "orrery_ship_speed"); err != nil {
		return nil, err
	}
	if c.ShipDistance, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_ship_distance_from_origin",
		Help: "Ship distance from the world origin.",
	}), "orrery_ship_distance_from_origin"); err != nil {
		return nil, err
	}
	if c.BoundsClamps, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_ship_bounds_clamps_total",
		Help: "Number of frames in which the ship was stopped at the world boundary.",
	}), "orrery_ship_bounds_clamps_total"); err != nil {
		return nil, err
	}
	if c.StreamClients, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_stream_clients",
		Help: "Connected snapshot stream clients.",
	}), "orrery_stream_clients"); err != nil {
		return nil, err
	}
	if c.StreamDroppedFrames, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_stream_dropped_frames_total",
		Help: "Snapshots not delivered because a stream client was too slow.",
	}), "orrery_stream_dropped_frames_total"); err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orrery_control_requests_total",
		Help: "Total number of handled control RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	if c.RPCRequests, err = register(reg, requests, "orrery_control_requests_total"); err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orrery_control_request_duration_seconds",
		Help:    "Control RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"})
	if c.RPCDurations, err = register(reg, durations, "orrery_control_request_duration_seconds"); err != nil {
		return nil, err
	}

	return c, nil
}

// RecordFrame satisfies core.MetricsRecorder so the engine can drive the
// frame metrics directly from Step.
func (c *SimCollector) RecordFrame(s core.FrameStats) {
	if c == nil {
		return
	}
	c.Frames.Inc()
	c.SimulatedTime.Add(s.SimDelta)
	c.FrameDuration.Observe(s.StepDuration.Seconds())
	c.TimeScale.Set(s.TimeScale)
	if s.Paused {
		c.Paused.Set(1)
	} else {
		c.Paused.Set(0)
	}
	c.ShipSpeed.Set(s.ShipSpeed)
	c.ShipDistance.Set(s.ShipDistance)
	if s.BoundsClamped {
		c.BoundsClamps.Inc()
	}
}

// SetStreamClients updates the connected stream client gauge.
func (c *SimCollector) SetStreamClients(n int) {
	if c == nil || c.StreamClients == nil {
		return
	}
	c.StreamClients.Set(float64(n))
}

// IncDroppedFrames counts one snapshot skipped for a slow client.
func (c *SimCollector) IncDroppedFrames() {
	if c == nil || c.StreamDroppedFrames == nil {
		return
	}
	c.StreamDroppedFrames.Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg. When an equivalent collector is already
// registered the existing one is returned so several collectors can share a
// registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var zero T
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return zero, fmt.Errorf("register %s: %w", name, err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
	}
	return existing, nil
}
