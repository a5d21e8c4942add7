// Package ws bridges the chart core to browser clients: the hub hands out
// panel surfaces to the registry and mirrors every surface mutation to all
// connected WebSocket clients, while client-reported dimensions and viewports
// flow back into the surfaces.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mattvy/chartgrid/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The CORS middleware gates the REST surface; the hub accepts any
		// origin and relies on the same API key auth in front of it.
		return true
	},
}

// envelope is the outbound JSON frame shape.
type envelope struct {
	Type    string `json:"type"`
	Panel   string `json:"panel,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// clientMsg is the inbound frame shape: clients report panel container
// dimensions and the viewport the user scrolled to.
type clientMsg struct {
	Type   string  `json:"type"` // "dimensions" or "view"
	Panel  string  `json:"panel"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	From   float64 `json:"from,omitempty"` // unix seconds
	To     float64 `json:"to,omitempty"`
}

// ResizeHandler receives client-reported panel dimensions.
type ResizeHandler func(panelID string, width, height int)

// client represents a single WebSocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connected WebSocket clients and the set of live panel
// surfaces. It implements domain.SurfaceProvider: the registry acquires one
// surface per panel, and everything pushed to a surface is broadcast to all
// clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	logger     *slog.Logger
	startedAt  time.Time

	mu       sync.RWMutex
	surfaces map[string]*Surface
	onResize ResizeHandler
}

// NewHub creates a hub with no attached surfaces.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
		surfaces:   make(map[string]*Surface),
	}
}

// SetResizeHandler installs the callback invoked when a client reports new
// panel dimensions. Must be set before Run.
func (h *Hub) SetResizeHandler(fn ResizeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResize = fn
}

// Acquire creates a surface bound to the panel id. It fails when a surface
// with the same id is already attached.
func (h *Hub) Acquire(id string, width, height int) (domain.RenderSurface, error) {
	h.mu.Lock()
	if _, taken := h.surfaces[id]; taken {
		h.mu.Unlock()
		return nil, fmt.Errorf("ws: %w: surface %q", domain.ErrDuplicateID, id)
	}
	s := &Surface{hub: h, id: id, width: width, height: height}
	s.sized = width > 0 && height > 0
	h.surfaces[id] = s
	h.mu.Unlock()

	h.send(envelope{Type: "panel_added", Panel: id, Payload: map[string]int{
		"width": width, "height": height,
	}})
	return s, nil
}

// Detach releases a surface binding. Releasing an unknown surface is a no-op
// returning false.
func (h *Hub) Detach(s domain.RenderSurface) bool {
	if s == nil {
		return false
	}

	h.mu.Lock()
	attached, found := h.surfaces[s.ID()]
	if !found || attached != s {
		h.mu.Unlock()
		return false
	}
	delete(h.surfaces, s.ID())
	h.mu.Unlock()

	h.send(envelope{Type: "panel_removed", Panel: s.ID()})
	return true
}

// FindByID scans attached surfaces by their embedded id marker.
func (h *Hub) FindByID(id string) (domain.RenderSurface, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, found := h.surfaces[id]
	if !found {
		return nil, false
	}
	return s, true
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and message broadcasting, and exits when the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.String("client", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.String("client", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("dropping message for slow client",
						slog.String("client", c.id))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, registers the
// client, and replays the current state of every panel so the client can
// render without waiting for the next mutation.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.register <- c
	c.sendHello()
	h.replayPanels(c)

	go c.writePump()
	go c.readPump()
}

// send broadcasts one envelope to every connected client.
func (h *Hub) send(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("marshal envelope failed",
			slog.String("type", env.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast queue full, dropping",
			slog.String("type", env.Type))
	}
}

// replayPanels queues the latest state of every surface to one client.
func (h *Hub) replayPanels(c *client) {
	h.mu.RLock()
	surfaces := make([]*Surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		surfaces = append(surfaces, s)
	}
	h.mu.RUnlock()

	for _, s := range surfaces {
		for _, env := range s.stateEnvelopes() {
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleClientMsg routes one inbound frame: dimension reports update the
// surface and notify the resize handler; view reports record the viewport
// the user scrolled to.
func (h *Hub) handleClientMsg(msg clientMsg) {
	h.mu.RLock()
	s := h.surfaces[msg.Panel]
	onResize := h.onResize
	h.mu.RUnlock()
	if s == nil {
		return
	}

	switch msg.Type {
	case "dimensions":
		if msg.Width <= 0 || msg.Height <= 0 {
			return
		}
		s.recordContainerSize(msg.Width, msg.Height)
		if onResize != nil {
			onResize(msg.Panel, msg.Width, msg.Height)
		}

	case "view":
		if msg.To <= msg.From {
			return
		}
		s.recordVisibleRange(domain.VisibleRange{
			From: time.Unix(int64(msg.From), 0).UTC(),
			To:   time.Unix(int64(msg.To), 0).UTC(),
		})
	}
}

// readPump reads inbound frames from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error",
					slog.String("client", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg clientMsg
		if err := json.Unmarshal(message, &msg); err != nil || msg.Panel == "" {
			continue // drop unparseable frames
		}
		c.hub.handleClientMsg(msg)
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark the
// connection as healthy.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(envelope{
		Type: "hello",
		Payload: map[string]any{
			"client_id":      c.id,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump pumps messages from the hub to the WebSocket connection and
// sends periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Compile-time interface check.
var _ domain.SurfaceProvider = (*Hub)(nil)
