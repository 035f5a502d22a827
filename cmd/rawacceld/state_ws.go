package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rawaccel"
)

// ============================================================================
// Settings WebSocket: hub + per-client pumps
// ============================================================================
//
// Every committed settings write is pushed to connected clients as a
// "settings_changed" envelope. A client first receives "settings_init" with
// the settings active when it connected.
//
// Messages are JSON text frames: {type, ts, data}. A client whose send queue
// is full is disconnected rather than allowed to stall the others.
//
// ============================================================================

const (
	wsTypeSettingsInit    = "settings_init"
	wsTypeSettingsChanged = "settings_changed"
)

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 8).
	SendBuf int

	// BroadcastBuf is the hub inbound queue size (default 32).
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 8
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 32
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			// The snapshot is taken here so no broadcast can fall between
			// it and the registration.
			if c.initial != nil {
				if msg := c.initial(); msg != nil {
					select {
					case c.send <- msg:
					default:
					}
				}
			}
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send makes writePump exit.
	safeCloseChan(c.send)
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // already closed
	}()
	close(ch)
}

// BroadcastBytes enqueues a serialized frame for every client. It never
// blocks; a full hub queue drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// BroadcastSettings is a rawaccel.State subscriber.
func (h *Hub) BroadcastSettings(s rawaccel.Settings) {
	msg, err := marshalEnvelope(wsTypeSettingsChanged, s)
	if err != nil {
		h.logger.Warn("ws settings marshal failed", "error", err)
		return
	}
	h.BroadcastBytes(msg)
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	// initial, if set, produces the first message at registration.
	initial func() []byte

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// logClose reports why a pump stopped.
func (c *Client) logClose(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Debug("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains the send queue into the connection and keeps it alive
// with pings. It exits when send is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logClose("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logClose("writePump", err)
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects and to
// answer control frames.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logClose("readPump", err)
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

var upgrader = websocket.Upgrader{
	// The listener is expected to be bound to loopback.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSettingsWS upgrades and registers the client; the hub queues
// settings_init.
func handleSettingsWS(hub *Hub, state configChannel, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws upgrade failed", "error", err)
			return
		}
		client := NewClient(hub, conn, r.RemoteAddr, logger)
		client.initial = func() []byte {
			msg, err := marshalEnvelope(wsTypeSettingsInit, state.Read())
			if err != nil {
				logger.Warn("ws settings marshal failed", "error", err)
				return nil
			}
			return msg
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		// The pumps outlive the request; the hub and the connection end them.
		go client.writePump()
		go client.readPump()
	}
}
