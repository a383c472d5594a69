package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the FrameLoop paces frames.
type Mode int

const (
	// RealTime paces frames with a wall-clock ticker.
	RealTime Mode = iota
	// Accelerated runs frames back to back as fast as listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// Frame is delivered to listeners once per scheduled frame.
type Frame struct {
	Number    uint64
	At        time.Time
	WallDelta time.Duration // wall time since the previous frame
}

// FrameLoop schedules frames and notifies registered listeners synchronously,
// one frame at a time. It is the wall-clock source of the simulation.
type FrameLoop struct {
	// fixed at construction
	interval time.Duration
	mode     Mode

	mu        sync.RWMutex
	frames    uint64
	listeners []func(Frame)

	now func() time.Time
}

// NewFrameLoop constructs a loop that fires every interval in RealTime mode.
func NewFrameLoop(interval time.Duration, mode Mode) *FrameLoop {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &FrameLoop{
		interval: interval,
		mode:     mode,
		now:      time.Now,
	}
}

// AddListener registers a callback invoked on every frame. Listeners run in
// registration order on the loop goroutine.
func (fl *FrameLoop) AddListener(fn func(Frame)) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.listeners = append(fl.listeners, fn)
}

// Frames returns the number of frames fired so far.
func (fl *FrameLoop) Frames() uint64 {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.frames
}

// Run fires frames until ctx is cancelled or maxFrames frames have fired
// (maxFrames == 0 means unbounded). It returns ctx.Err() on cancellation
// and nil once maxFrames is reached.
func (fl *FrameLoop) Run(ctx context.Context, maxFrames uint64) error {
	var tick <-chan time.Time
	if fl.mode == RealTime {
		ticker := time.NewTicker(fl.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	last := fl.now()
	for fired := uint64(0); maxFrames == 0 || fired < maxFrames; fired++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		at := fl.now()
		fl.mu.Lock()
		fl.frames++
		frame := Frame{Number: fl.frames, At: at, WallDelta: at.Sub(last)}
		listeners := append([]func(Frame){}, fl.listeners...)
		fl.mu.Unlock()
		last = at

		for _, fn := range listeners {
			fn(frame)
		}
	}
	return nil
}

// Start runs the loop in a separate goroutine. It returns a channel that is
// closed when the loop finishes.
func (fl *FrameLoop) Start(ctx context.Context, maxFrames uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fl.Run(ctx, maxFrames)
	}()
	return done
}
