// Package wsmap pushes the live map over WebSocket. The hub is the concrete
// rendering surface: marker and viewport frames fan out to every connected
// browser, and "select" messages flow back into the marker synchronizer.
package wsmap

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tourwatch/tourwatch/internal/domain/model"
	"github.com/tourwatch/tourwatch/internal/render"
	"github.com/tourwatch/tourwatch/pkg/logger"
	"github.com/tourwatch/tourwatch/pkg/metrics"
	"github.com/tourwatch/tourwatch/pkg/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultSendBuffer = 32
)

// Frame types pushed to clients.
const (
	FrameMarkers  = "markers"
	FrameViewport = "viewport"
	FrameFeed     = "feed"
	FrameNotice   = "notice"
	FrameDetail   = "detail"
)

// frame is the wire envelope for server-to-client pushes.
type frame struct {
	Type    string               `json:"type"`
	Markers []render.Marker      `json:"markers,omitempty"`
	Bounds  *render.Bounds       `json:"bounds,omitempty"`
	Feed    []model.Alert        `json:"feed,omitempty"`
	Notice  *notify.Notification `json:"notice,omitempty"`
	Detail  *model.Tourist       `json:"detail,omitempty"`
	History []model.Alert        `json:"history,omitempty"`
}

// inbound is the client-to-server message shape.
type inbound struct {
	Type      string `json:"type"`
	TouristID string `json:"tourist_id"`
}

// SelectHandler receives tourist selections made on a connected map.
type SelectHandler func(touristID string)

// Hub fans frames out to connected map clients. It implements
// render.Surface and notify.Notifier.
type Hub struct {
	log        logger.Logger
	upgrader   websocket.Upgrader
	sendBuffer int
	onSelect   SelectHandler

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	// Retained state replayed to late-joining clients.
	lastMarkers []render.Marker
	lastBounds  *render.Bounds
	lastFeed    []model.Alert
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithSendBuffer sets the per-client outbound buffer. Slow clients drop
// frames rather than stalling broadcasts.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.sendBuffer = size
		}
	}
}

// WithSelectHandler wires tourist selections back into the application.
func WithSelectHandler(fn SelectHandler) Option {
	return func(h *Hub) {
		h.onSelect = fn
	}
}

// NewHub creates a WebSocket map hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sendBuffer: defaultSendBuffer,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	// Apply all options
	for _, opt := range opts {
		opt(h)
	}

	if h.log == nil {
		h.log = logger.Get().Named("wsmap")
	}
	return h
}

// ServeHTTP upgrades the request and attaches the client to the hub. The
// current marker set, viewport and feed are sent immediately so a late
// joiner does not wait for the next change.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error(r.Context(), "websocket upgrade failed", logger.Error(err))
		metrics.RecordErrorByComponent("wsmap", "upgrade_failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	// Queue retained state before releasing the lock so Close cannot shut
	// the send channel mid-catch-up.
	for _, data := range h.catchupFramesLocked() {
		select {
		case c.send <- data:
		default:
		}
	}
	h.mu.Unlock()

	metrics.UpdateSurfaceClients(count)
	h.log.Info(r.Context(), "map client connected", logger.Int("clients", count))

	go h.writePump(c)
	go h.readPump(c)
}

// catchupFramesLocked marshals the retained state. Callers hold h.mu.
func (h *Hub) catchupFramesLocked() [][]byte {
	var out [][]byte
	if h.lastMarkers != nil {
		if data, err := json.Marshal(frame{Type: FrameMarkers, Markers: h.lastMarkers}); err == nil {
			out = append(out, data)
		}
	}
	if h.lastBounds != nil {
		if data, err := json.Marshal(frame{Type: FrameViewport, Bounds: h.lastBounds}); err == nil {
			out = append(out, data)
		}
	}
	if h.lastFeed != nil {
		if data, err := json.Marshal(frame{Type: FrameFeed, Feed: h.lastFeed}); err == nil {
			out = append(out, data)
		}
	}
	return out
}

// ReplaceMarkers implements render.Surface: the previous marker set is
// discarded wholesale on every call.
func (h *Hub) ReplaceMarkers(_ context.Context, markers []render.Marker) error {
	h.mu.Lock()
	h.lastMarkers = markers
	h.mu.Unlock()
	h.broadcast(frame{Type: FrameMarkers, Markers: markers})
	return nil
}

// FitBounds implements render.Surface.
func (h *Hub) FitBounds(_ context.Context, b render.Bounds) error {
	h.mu.Lock()
	h.lastBounds = &b
	h.mu.Unlock()
	h.broadcast(frame{Type: FrameViewport, Bounds: &b})
	return nil
}

// PublishFeed pushes the ordered alert feed.
func (h *Hub) PublishFeed(_ context.Context, alerts []model.Alert) {
	h.mu.Lock()
	h.lastFeed = alerts
	h.mu.Unlock()
	h.broadcast(frame{Type: FrameFeed, Feed: alerts})
}

// PublishDetail pushes a selected tourist's detail and alert history to
// all clients.
func (h *Hub) PublishDetail(_ context.Context, t model.Tourist, history []model.Alert) {
	h.broadcast(frame{Type: FrameDetail, Detail: &t, History: history})
}

// Notify implements notify.Notifier: transient announcements surface as
// notice frames.
func (h *Hub) Notify(_ context.Context, n notify.Notification) {
	h.broadcast(frame{Type: FrameNotice, Notice: &n})
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close detaches every client. The hub accepts no new connections after.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	metrics.UpdateSurfaceClients(0)
}

// broadcast marshals once and fans out. A client with a full buffer loses
// the frame; the next full-state push makes it whole again.
func (h *Hub) broadcast(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error(context.Background(), "frame marshal failed", logger.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			metrics.RecordSurfaceFrameDropped()
		}
	}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.UpdateSurfaceClients(count)
	}
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer h.detach(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug(context.Background(), "discarding malformed client message", logger.Error(err))
			continue
		}
		if msg.Type == "select" && msg.TouristID != "" && h.onSelect != nil {
			h.onSelect(msg.TouristID)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.detach(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}
