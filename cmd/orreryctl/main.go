package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/control"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
)

const usage = `usage: orreryctl [flags] <command> [args]

commands:
  state                 print the current frame snapshot
  pause | resume        pause or resume simulated time
  timescale N           set the time scale (0..3)
  view overview|ship    select the camera mode
  toggle-view           flip the camera mode
  press KEY             hold a key (KeyboardEvent.code, e.g. KeyW)
  release KEY           release a held key
  bodies                list the body catalog
  body KEY              show one body ("Earth", "Earth/Moon")
  display [orbits=on|off] [stars=on|off] [sun=N]
                        change presentation toggles (sun intensity 0..5)

environment:
  ORRERY_LOG_LEVEL, ORRERY_LOG_FORMAT     diagnostics written to stderr
  ORRERY_TRACING_ENABLED, ORRERY_TRACING_EXPORTER, ORRERY_OTLP_ENDPOINT
                                          trace control calls
`

var errUsage = errors.New("invalid usage")

// controller is the subset of control.Client the commands use.
type controller interface {
	State(ctx context.Context) (core.FrameSnapshot, error)
	SetPaused(ctx context.Context, paused bool) (core.FrameSnapshot, error)
	SetTimeScale(ctx context.Context, scale float64) (core.FrameSnapshot, error)
	SetView(ctx context.Context, view string) (core.FrameSnapshot, error)
	ToggleView(ctx context.Context) (core.FrameSnapshot, error)
	PressKey(ctx context.Context, code string) error
	ReleaseKey(ctx context.Context, code string) error
	Bodies(ctx context.Context) ([]map[string]any, error)
	Body(ctx context.Context, key string) (map[string]any, error)
	SetDisplay(ctx context.Context, p core.DisplayPatch) (core.FrameSnapshot, error)
}

func main() {
	endpoint := flag.String("endpoint", "localhost:50051", "control gRPC endpoint (host:port)")
	timeout := flag.Duration("timeout", 5*time.Second, "per-command timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logging.NewFromEnv(os.Stderr)
	os.Exit(run(*endpoint, *timeout, flag.Args(), log))
}

func run(endpoint string, timeout time.Duration, args []string, log logging.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "init tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	client, err := control.Dial(endpoint)
	if err != nil {
		log.Error(ctx, "dial control endpoint", logging.String("endpoint", endpoint), logging.Err(err))
		return 1
	}
	defer func() { _ = client.Close() }()

	if err := execute(ctx, client, args, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		log.Error(ctx, "command failed", logging.Err(err))
		return 1
	}
	return 0
}

func execute(ctx context.Context, c controller, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]

	var (
		snap core.FrameSnapshot
		err  error
	)
	switch cmd {
	case "state":
		snap, err = c.State(ctx)
	case "pause":
		snap, err = c.SetPaused(ctx, true)
	case "resume":
		snap, err = c.SetPaused(ctx, false)
	case "timescale":
		if len(rest) != 1 {
			return fmt.Errorf("%w: timescale needs one value", errUsage)
		}
		scale, perr := strconv.ParseFloat(rest[0], 64)
		if perr != nil {
			return fmt.Errorf("%w: time scale %q: %v", errUsage, rest[0], perr)
		}
		snap, err = c.SetTimeScale(ctx, scale)
	case "view":
		if len(rest) != 1 {
			return fmt.Errorf("%w: view needs overview or ship", errUsage)
		}
		snap, err = c.SetView(ctx, rest[0])
	case "toggle-view":
		snap, err = c.ToggleView(ctx)
	case "press", "release":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s needs a key code", errUsage, cmd)
		}
		if cmd == "press" {
			err = c.PressKey(ctx, rest[0])
		} else {
			err = c.ReleaseKey(ctx, rest[0])
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", cmd, rest[0], err)
		}
		_, err = fmt.Fprintf(out, "%sed %s\n", strings.TrimSuffix(cmd, "e"), rest[0])
		return err
	case "bodies":
		bodies, berr := c.Bodies(ctx)
		if berr != nil {
			return fmt.Errorf("bodies: %w", berr)
		}
		for _, b := range bodies {
			fmt.Fprintf(out, "%-16v %-7v r=%-5v d=%v\n", b["key"], b["kind"], b["radius"], b["distance"])
		}
		return nil
	case "body":
		if len(rest) != 1 {
			return fmt.Errorf("%w: body needs a key", errUsage)
		}
		b, berr := c.Body(ctx, rest[0])
		if berr != nil {
			return fmt.Errorf("body %s: %w", rest[0], berr)
		}
		return printJSON(out, b)
	case "display":
		patch, perr := parseDisplay(rest)
		if perr != nil {
			return perr
		}
		snap, err = c.SetDisplay(ctx, patch)
		if err == nil {
			d := snap.Display
			_, err = fmt.Fprintf(out, "show_orbits=%v show_stars=%v sun_intensity=%g\n", d.ShowOrbits, d.ShowStars, d.SunIntensity)
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return printSummary(out, snap)
}

// parseDisplay reads display arguments such as "orbits=off" and "sun=2.5".
func parseDisplay(args []string) (core.DisplayPatch, error) {
	var p core.DisplayPatch
	if len(args) == 0 {
		return p, fmt.Errorf("%w: display needs orbits=, stars= or sun=", errUsage)
	}
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return p, fmt.Errorf("%w: display argument %q is not name=value", errUsage, arg)
		}
		switch name {
		case "orbits", "stars":
			on, err := parseOnOff(value)
			if err != nil {
				return p, err
			}
			if name == "orbits" {
				p.ShowOrbits = &on
			} else {
				p.ShowStars = &on
			}
		case "sun":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return p, fmt.Errorf("%w: sun intensity %q: %v", errUsage, value, err)
			}
			p.SunIntensity = &v
		default:
			return p, fmt.Errorf("%w: unknown display setting %q", errUsage, name)
		}
	}
	return p, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", errUsage, s)
}

func printSummary(out io.Writer, snap core.FrameSnapshot) error {
	_, err := fmt.Fprintf(out,
		"frame=%d sim_time=%.3fs paused=%v time_scale=%g view=%s\nship pos=(%.2f, %.2f, %.2f) speed=%.2f yaw=%.3f\n",
		snap.Frame, snap.SimTime, snap.Paused, snap.TimeScale, snap.View.Mode,
		snap.Ship.Position.X(), snap.Ship.Position.Y(), snap.Ship.Position.Z(), snap.Ship.Speed, snap.Ship.Yaw,
	)
	if err != nil {
		return err
	}
	for _, b := range snap.Bodies {
		if _, err := fmt.Fprintf(out, "  %-8s (%.2f, %.2f, %.2f)\n", b.Name, b.Position.X(), b.Position.Y(), b.Position.Z()); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
