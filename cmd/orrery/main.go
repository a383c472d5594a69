package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/config"
	"github.com/signalsfoundry/orrery/internal/control"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/internal/stream"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML, TOML or JSON config file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address of the control gRPC server (overrides config)")
	streamAddr := flag.String("stream-addr", "", "HTTP address of the websocket snapshot stream (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	// config decides the real logger; until it loads, follow the environment
	boot := logging.NewFromEnv(os.Stderr)
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error(context.Background(), "load config", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *streamAddr != "" {
		cfg.Server.StreamAddr = *streamAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.New(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, prometheus.DefaultRegisterer); err != nil {
		log.Error(ctx, "orrery exited", logging.Err(err))
		os.Exit(1)
	}
}

// app is the wired simulation: catalog, engine, frame loop and stream hub.
type app struct {
	catalog *kb.KnowledgeBase
	engine  *core.SimulationEngine
	loop    *timectrl.FrameLoop
	hub     *stream.Hub
	metrics *observability.SimCollector
}

func newApp(ctx context.Context, cfg config.Config, log logging.Logger, reg prometheus.Registerer) (*app, error) {
	defs, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	catalog, err := kb.FromDefinitions(defs)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	system, err := core.NewSystem(catalog.ListBodies())
	if err != nil {
		return nil, fmt.Errorf("build system: %w", err)
	}

	metrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	clock := timectrl.NewSimulationClock()
	clock.SetPaused(cfg.Sim.Paused)

	engine := core.NewSimulationEngine(system, cfg.ShipConfig(), clock,
		core.WithLogger(log.With(logging.Component("engine"))),
		core.WithMetricsRecorder(metrics),
		core.WithBindings(cfg.KeyBindings()),
		core.WithView(cfg.InitialView()),
	)
	if err := engine.SetTimeScale(cfg.Sim.TimeScale); err != nil {
		return nil, err
	}
	if err := engine.SetDisplay(cfg.DisplaySettings()); err != nil {
		return nil, err
	}

	hub := stream.NewHub(engine,
		stream.WithLogger(log.With(logging.Component("stream"))),
		stream.WithMetrics(metrics),
		stream.WithBroadcastRate(cfg.Server.StreamHz),
	)
	engine.RegisterFrameListener(hub.Publish)

	mode := timectrl.RealTime
	if cfg.Sim.Accelerated {
		mode = timectrl.Accelerated
	}
	loop := timectrl.NewFrameLoop(time.Duration(float64(time.Second)/cfg.Sim.FrameRate), mode)
	loop.AddListener(func(timectrl.Frame) {
		engine.Step(ctx)
	})

	log.Info(ctx, "simulation ready",
		logging.Int("bodies", catalog.Len()),
		logging.String("mode", mode.String()),
		logging.Float64("time_scale", cfg.Sim.TimeScale),
		logging.Bool("paused", cfg.Sim.Paused),
	)

	return &app{catalog: catalog, engine: engine, loop: loop, hub: hub, metrics: metrics}, nil
}

func run(ctx context.Context, cfg config.Config, log logging.Logger, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	a, err := newApp(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	metricsSrv := serveHTTP(ctx, "metrics", cfg.Server.MetricsAddr, metricsMux(a.metrics), log)

	streamSrv := serveHTTP(ctx, "stream", cfg.Server.StreamAddr, streamMux(a), log)

	svc := control.NewService(a.engine, a.catalog, log.With(logging.Component("control")))
	grpcSrv, health := control.NewGRPCServer(svc, log, a.metrics)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	log.Info(ctx, "starting control gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	done := a.loop.Start(loopCtx, uint64(cfg.Sim.MaxFrames))

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down")
	case <-done:
		log.Info(context.Background(), "max frames reached", logging.Uint64("frames", a.loop.Frames()))
	}
	cancelLoop()
	<-done

	health.Shutdown()
	a.hub.Close()
	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = streamSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

func metricsMux(collector *observability.SimCollector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return mux
}

func streamMux(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", a.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok frame=%d\n", a.engine.Snapshot().Frame)
	})
	return mux
}

func serveHTTP(ctx context.Context, name, addr string, handler http.Handler, log logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(ctx, name+" server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving "+name, logging.String("addr", addr))
	return srv
}
