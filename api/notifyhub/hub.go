// Package notifyhub pushes run notifications to WebSocket clients.
package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

const writeTimeout = 5 * time.Second

// client is one WebSocket connection and the run it follows.
// An empty sessionID follows every run but receives lifecycle events only.
type client struct {
	sessionID string
}

func (c client) wants(n *types.Notification) bool {
	if c.sessionID == "" {
		return n.Type != types.NotifyTypeSessionUpdated
	}
	return n.SessionID == c.sessionID
}

// Hub fans notifications out to WebSocket clients. Implements notify.Sink.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]client
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]client),
	}
}

// Register adds a connection following sessionID, or all runs when it is empty.
func (h *Hub) Register(conn *websocket.Conn, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = client{sessionID: sessionID}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends the notification to every client following its run.
// Connections that fail to accept the write are dropped.
func (h *Hub) Broadcast(notification *types.Notification) {
	if notification == nil {
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for conn, c := range h.conns {
		if c.wants(notification) {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Debugf("[NotifyHub] Failed to marshal %s notification: %v", notification.Type, err)
		return
	}
	for _, conn := range targets {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] Dropping client: %v", err)
			h.Unregister(conn)
			_ = conn.Close()
		}
	}
}
