package core

import (
	"sort"
	"sync"
)

// HeldKeys is an immutable view of the keys held at a frame boundary.
type HeldKeys map[string]struct{}

// NewHeldKeys builds a HeldKeys set from key codes.
func NewHeldKeys(codes ...string) HeldKeys {
	h := make(HeldKeys, len(codes))
	for _, c := range codes {
		h[c] = struct{}{}
	}
	return h
}

// Has reports whether code is held.
func (h HeldKeys) Has(code string) bool {
	_, ok := h[code]
	return ok
}

// Any reports whether at least one of codes is held.
func (h HeldKeys) Any(codes ...string) bool {
	for _, c := range codes {
		if h.Has(c) {
			return true
		}
	}
	return false
}

// Sorted returns the held codes in lexical order.
func (h HeldKeys) Sorted() []string {
	out := make([]string, 0, len(h))
	for c := range h {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// KeyBindings maps flight actions onto key codes (DOM KeyboardEvent.code
// names). ToggleView is edge-triggered and never enters the held set.
type KeyBindings struct {
	Forward    []string
	Backward   []string
	TurnLeft   []string
	TurnRight  []string
	Boost      []string
	ToggleView string
}

// DefaultKeyBindings returns W/S thrust, A/D yaw, either Shift to boost and
// V to switch views.
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Forward:    []string{"KeyW"},
		Backward:   []string{"KeyS"},
		TurnLeft:   []string{"KeyA"},
		TurnRight:  []string{"KeyD"},
		Boost:      []string{"ShiftLeft", "ShiftRight"},
		ToggleView: "KeyV",
	}
}

// InputState is the set of currently held key codes. Key-event handlers
// mutate it from their own goroutines; the simulation samples it once per
// frame through Snapshot.
//
// Holds are counted per code: several sources may press the same key, and
// it stays held until each of them has released it.
type InputState struct {
	mu   sync.RWMutex
	held map[string]int
}

// NewInputState constructs an empty input set.
func NewInputState() *InputState {
	return &InputState{held: make(map[string]int)}
}

// Press adds one hold on code.
func (s *InputState) Press(code string) {
	if code == "" {
		return
	}
	s.mu.Lock()
	s.held[code]++
	s.mu.Unlock()
}

// Release drops one hold on code. Releasing an unheld code does nothing.
func (s *InputState) Release(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.held[code]
	if !ok {
		return
	}
	if n <= 1 {
		delete(s.held, code)
		return
	}
	s.held[code] = n - 1
}

// Snapshot copies the held set for one frame.
func (s *InputState) Snapshot() HeldKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(HeldKeys, len(s.held))
	for c := range s.held {
		out[c] = struct{}{}
	}
	return out
}
