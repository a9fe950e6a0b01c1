// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/livewatch/internal/log"
	"github.com/ManuGH/livewatch/internal/metrics"
	"github.com/ManuGH/livewatch/internal/playback"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	msgSnapshot = "snapshot"
	msgView     = "view"
	msgRemoved  = "removed"

	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// wsMessage is one frame pushed to status clients.
type wsMessage struct {
	Type    string          `json:"type"`
	Views   []playback.View `json:"views,omitempty"`
	View    *playback.View  `json:"view,omitempty"`
	Removed string          `json:"removed,omitempty"`
}

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub pushes view changes to WebSocket clients. New clients receive a full
// snapshot first. Clients that cannot keep up are disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]*wsClient
	closed   bool
	snapshot func() []playback.View
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHub creates a hub. snapshot supplies the initial frame for new clients.
func NewHub(snapshot func() []playback.View) *Hub {
	return &Hub{
		clients:  make(map[uuid.UUID]*wsClient),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.WithComponent("ws"),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{id: uuid.New(), conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	h.logger.Debug().Str(log.FieldClientID, c.id.String()).Msg("client connected")

	h.sendTo(c, wsMessage{Type: msgSnapshot, Views: h.snapshot()})

	conn.SetReadLimit(4096)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	h.logger.Debug().Str(log.FieldClientID, c.id.String()).Msg("client disconnected")
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	metrics.SetWSClients(len(h.clients))
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	c.close()
	metrics.SetWSClients(len(h.clients))
}

// Broadcast pushes v to every client.
func (h *Hub) Broadcast(v playback.View) {
	h.broadcast(wsMessage{Type: msgView, View: &v})
}

// Removed tells clients that stream id is gone.
func (h *Hub) Removed(id string) {
	h.broadcast(wsMessage{Type: msgRemoved, Removed: id})
}

func (h *Hub) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode websocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, data)
	}
}

func (h *Hub) sendTo(c *wsClient, msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode websocket message")
		return
	}
	h.deliver(c, data)
}

func (h *Hub) deliver(c *wsClient, data []byte) {
	h.mu.RLock()
	_, live := h.clients[c.id]
	if live {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()
	if !live {
		return
	}
	metrics.IncWSDropped()
	h.logger.Warn().Str(log.FieldClientID, c.id.String()).Msg("client too slow, disconnecting")
	h.remove(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
	metrics.SetWSClients(0)
}
