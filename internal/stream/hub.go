// Package stream serves frame snapshots to browsers over websockets and
// feeds their key and control events back into the engine.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096

	defaultSendBuffer = 8
	defaultInputRate  = 120 // events per second
	defaultInputBurst = 40
)

// Input message types accepted from clients.
const (
	TypeKeyDown      = "key_down"
	TypeKeyUp        = "key_up"
	TypeToggleView   = "toggle_view"
	TypeSetView      = "set_view"
	TypeSetPaused    = "set_paused"
	TypeSetTimeScale = "set_time_scale"
	TypeSetDisplay   = "set_display"
)

// Output message types sent to clients.
const (
	TypeFrame = "frame"
	TypeError = "error"
)

var (
	// ErrUnknownMessage is returned for an input type the hub does not handle.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrRateLimited is returned when a client exceeds its input rate.
	ErrRateLimited = errors.New("input rate limited")
	// ErrMissingField is returned when a message lacks a field its type needs.
	ErrMissingField = errors.New("missing field")
)

// Controller is the part of the simulation engine the hub drives.
// *core.SimulationEngine implements it.
type Controller interface {
	KeyDown(code string) bool
	KeyUp(code string)
	ReleaseKeys(codes ...string)
	ToggleView() core.ViewMode
	SetView(mode core.ViewMode)
	SetPaused(paused bool)
	SetTimeScale(scale float64) error
	UpdateDisplay(p core.DisplayPatch) (core.DisplaySettings, error)
	OrbitLines(segments int) []core.OrbitLine
	Snapshot() core.FrameSnapshot
}

// Metrics receives client-count and dropped-frame updates.
// *observability.SimCollector implements it.
type Metrics interface {
	SetStreamClients(n int)
	IncDroppedFrames()
}

// InputMessage is one client event.
type InputMessage struct {
	Type      string   `json:"type"`
	Code      string   `json:"code,omitempty"`
	View      string   `json:"view,omitempty"`
	Paused    *bool    `json:"paused,omitempty"`
	TimeScale *float64 `json:"time_scale,omitempty"`
	// Display carries the fields of a set_display message.
	Display *core.DisplayPatch `json:"display,omitempty"`
}

// Envelope wraps everything the hub writes to a client. The first frame a
// client receives also carries the orbit lines, which never change during a
// run.
type Envelope struct {
	Type   string              `json:"type"`
	Frame  *core.FrameSnapshot `json:"frame,omitempty"`
	Orbits []core.OrbitLine    `json:"orbits,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     logging.Logger

	// keys this client pressed and has not released; each holds one count
	// in the shared input state
	held map[string]struct{}
}

// Hub fans frame snapshots out to websocket clients. It is an http.Handler;
// mount it at /ws.
type Hub struct {
	ctrl    Controller
	log     logging.Logger
	metrics Metrics

	upgrader   websocket.Upgrader
	broadcast  *rate.Limiter
	inputRate  rate.Limit
	inputBurst int
	sendBuffer int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// Option customises a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger. Nil keeps the no-op default.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMetrics reports client counts and dropped frames to m.
func WithMetrics(m Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBroadcastRate caps how many snapshots per second are sent. A
// non-positive hz sends every published snapshot.
func WithBroadcastRate(hz float64) Option {
	return func(h *Hub) {
		if hz <= 0 {
			h.broadcast = rate.NewLimiter(rate.Inf, 1)
			return
		}
		h.broadcast = rate.NewLimiter(rate.Limit(hz), 1)
	}
}

// WithInputRate sets the per-client input event limit.
func WithInputRate(r rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.inputRate = r
		h.inputBurst = burst
	}
}

// WithSendBuffer sets how many encoded frames may queue per client before
// further frames are dropped for it.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewHub constructs a hub driving ctrl.
func NewHub(ctrl Controller, opts ...Option) *Hub {
	h := &Hub{
		ctrl:       ctrl,
		log:        logging.Noop(),
		broadcast:  rate.NewLimiter(30, 1),
		inputRate:  defaultInputRate,
		inputBurst: defaultInputBurst,
		sendBuffer: defaultSendBuffer,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues snap for every client, subject to the broadcast rate. It
// never blocks; a client whose queue is full misses the frame.
func (h *Hub) Publish(snap core.FrameSnapshot) {
	if !h.broadcast.Allow() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	payload, err := json.Marshal(Envelope{Type: TypeFrame, Frame: &snap})
	if err != nil {
		h.log.Error(context.Background(), "encode frame failed", logging.Err(err))
		return
	}
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			if h.metrics != nil {
				h.metrics.IncDroppedFrames()
			}
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, log := logging.WithRequestLogger(r.Context(), h.log)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &client{
		id:      logging.RequestIDFromContext(ctx),
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		limiter: rate.NewLimiter(h.inputRate, h.inputBurst),
		log:     log,
		held:    make(map[string]struct{}),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	log.Info(ctx, "stream client connected", logging.String("remote", r.RemoteAddr))

	snap := h.ctrl.Snapshot()
	first := Envelope{Type: TypeFrame, Frame: &snap, Orbits: h.ctrl.OrbitLines(core.DefaultOrbitSegments)}
	if payload, err := json.Marshal(first); err == nil {
		h.mu.Lock()
		select {
		case c.send <- payload:
		default:
		}
		h.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()
	h.readPump(ctx, c)

	h.unregister(c)
	<-done
	if len(c.held) > 0 {
		codes := make([]string, 0, len(c.held))
		for code := range c.held {
			codes = append(codes, code)
		}
		h.ctrl.ReleaseKeys(codes...)
	}
	log.Info(ctx, "stream client disconnected", logging.Int("released_keys", len(c.held)))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.SetStreamClients(len(h.clients))
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	if h.metrics != nil {
		h.metrics.SetStreamClients(len(h.clients))
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn(ctx, "stream read failed", logging.Err(err))
			}
			return
		}
		var msg InputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, fmt.Errorf("decode input: %w", err))
			continue
		}
		if err := h.apply(c, msg); err != nil {
			c.log.Debug(ctx, "stream input rejected", logging.String("type", msg.Type), logging.Err(err))
			h.reply(c, err)
		}
	}
}

// apply routes one message to the engine. Key releases bypass the input
// limiter so a throttled client can never leave a key stuck. Repeated
// key_down events for a key the client already holds are ignored, so each
// client holds a key at most once and releasing it never cancels another
// client's hold.
func (h *Hub) apply(c *client, msg InputMessage) error {
	if msg.Type != TypeKeyUp && !c.limiter.Allow() {
		return ErrRateLimited
	}
	switch msg.Type {
	case TypeKeyDown:
		if msg.Code == "" {
			return fmt.Errorf("%w: code", ErrMissingField)
		}
		if _, ok := c.held[msg.Code]; ok {
			return nil
		}
		if !h.ctrl.KeyDown(msg.Code) {
			c.held[msg.Code] = struct{}{}
		}
	case TypeKeyUp:
		if msg.Code == "" {
			return fmt.Errorf("%w: code", ErrMissingField)
		}
		if _, ok := c.held[msg.Code]; !ok {
			return nil
		}
		h.ctrl.KeyUp(msg.Code)
		delete(c.held, msg.Code)
	case TypeToggleView:
		h.ctrl.ToggleView()
	case TypeSetView:
		mode, err := core.ParseViewMode(msg.View)
		if err != nil {
			return err
		}
		h.ctrl.SetView(mode)
	case TypeSetPaused:
		if msg.Paused == nil {
			return fmt.Errorf("%w: paused", ErrMissingField)
		}
		h.ctrl.SetPaused(*msg.Paused)
	case TypeSetTimeScale:
		if msg.TimeScale == nil {
			return fmt.Errorf("%w: time_scale", ErrMissingField)
		}
		return h.ctrl.SetTimeScale(*msg.TimeScale)
	case TypeSetDisplay:
		if msg.Display == nil || msg.Display.Empty() {
			return fmt.Errorf("%w: display", ErrMissingField)
		}
		_, err := h.ctrl.UpdateDisplay(*msg.Display)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return nil
}

func (h *Hub) reply(c *client, err error) {
	payload, mErr := json.Marshal(Envelope{Type: TypeError, Error: err.Error()})
	if mErr != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
