// Package ws serves the dashboard WebSocket and fans broadcasts out to every
// connected client.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/osvhub/osv-discovery/internal/clock/system"
	"github.com/osvhub/osv-discovery/internal/crawler"
	"github.com/osvhub/osv-discovery/internal/metrics"
)

// Config tunes a Hub.
type Config struct {
	// SendBuffer is the per-client queue; a client that falls this far
	// behind is disconnected.
	SendBuffer int
	WriteWait  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// Hub tracks dashboard connections.
type Hub struct {
	cfg    Config
	clock  crawler.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub constructs a Hub. clock and logger may be nil.
func NewHub(cfg Config, clock crawler.Clock, logger *zap.Logger) *Hub {
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:     cfg.withDefaults(),
		clock:   clock,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

type client struct {
	conn net.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	wmu  sync.Mutex
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ServeHTTP upgrades the request and serves the connection until the client
// leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		c.close()
		return
	}
	defer h.unregister(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebSocketClients(n)
	h.logger.Info("dashboard client connected", zap.Int("clients", n))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	if ok {
		metrics.SetWebSocketClients(n)
		h.logger.Info("dashboard client disconnected", zap.Int("clients", n))
	}
}

type inbound struct {
	Type string `json:"type"`
}

// PongMessage answers a client ping.
type PongMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Hub) readLoop(c *client) {
	control := func(hdr ws.Header, r io.Reader) error {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		return wsutil.ControlFrameHandler(c.conn, ws.StateServerSide)(hdr, r)
	}
	rd := &wsutil.Reader{
		Source:         c.conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}
		data, err := io.ReadAll(rd)
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed websocket message", zap.Error(err))
			continue
		}
		switch msg.Type {
		case "ping":
			h.sendTo(c, PongMessage{Type: "pong", Timestamp: h.clock.Now()})
		default:
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := h.write(c, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

func (h *Hub) write(c *client, msg []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait)); err != nil {
		return err
	}
	return wsutil.WriteServerMessage(c.conn, ws.OpText, msg)
}

func (h *Hub) sendTo(c *client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket message failed", zap.Error(err))
		return
	}
	h.enqueue(c, data)
}

// enqueue never blocks; a full buffer drops the client.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		h.logger.Warn("dropping slow dashboard client")
		c.close()
	}
}

// Broadcast sends msg to every client as one JSON text frame.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode broadcast failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, data)
	}
}

// SystemMessage is the "system_message" frame.
type SystemMessage struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Notify broadcasts a system_message.
func (h *Hub) Notify(channel, message, level string) {
	h.Broadcast(SystemMessage{
		Type:      "system_message",
		Channel:   channel,
		Message:   message,
		Level:     level,
		Timestamp: h.clock.Now(),
	})
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close(context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("hub already closed")
	}
	h.closed = true
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
	}
	return nil
}
