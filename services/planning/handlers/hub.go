// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one authenticated planner connection.
type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan realtime.Message
}

// Hub relays planning messages between connected planners.
//
// # Description
//
// Every connection authenticates with a first auth frame. After that
// the hub announces the planner to everyone else, relays the planner's
// change and conflict frames to all other connections, and announces
// the departure when the connection drops. Server-originated relays
// (sync batches, conflict resolutions) go to every connection.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]bool)}
}

// ConnectedUsers returns the user ids of the current connections.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.clients))
	for c := range h.clients {
		users = append(users, c.userID)
	}
	return users
}

// RelayChange pushes a server-originated change to every connection.
func (h *Hub) RelayChange(change datatypes.Change) {
	h.broadcast(realtime.Message{
		Type:     realtime.MessageAssignmentChange,
		SenderID: "server",
		Change:   &change,
		SentAt:   time.Now().UTC(),
	}, nil)
}

// RelayConflict pushes a server-originated conflict to every
// connection.
func (h *Hub) RelayConflict(conflict datatypes.Conflict) {
	h.broadcast(realtime.Message{
		Type:     realtime.MessageConflictDetected,
		SenderID: "server",
		Conflict: &conflict,
		SentAt:   time.Now().UTC(),
	}, nil)
}

// broadcast sends a message to every client except the one given.
// Clients with a full send buffer are skipped rather than blocked on.
func (h *Hub) broadcast(msg realtime.Message, except *wsClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == except {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slog.Warn("Dropping message for slow websocket client", "user_id", c.userID)
		}
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.broadcast(realtime.Message{
		Type:     realtime.MessageUserJoined,
		SenderID: c.userID,
		UserID:   c.userID,
		SentAt:   time.Now().UTC(),
	}, c)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !known {
		return
	}

	h.broadcast(realtime.Message{
		Type:     realtime.MessageUserLeft,
		SenderID: c.userID,
		UserID:   c.userID,
		SentAt:   time.Now().UTC(),
	}, c)
}

// ServeWS upgrades the request and joins the planner to the hub.
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Websocket upgrade failed", "error", err)
			return
		}

		var auth realtime.Message
		if err := conn.ReadJSON(&auth); err != nil || auth.Type != realtime.MessageAuth || auth.UserID == "" {
			slog.Warn("Websocket client failed authentication handshake")
			conn.Close()
			return
		}

		client := &wsClient{
			userID: auth.UserID,
			conn:   conn,
			send:   make(chan realtime.Message, 32),
		}
		hub.register(client)
		slog.Info("Planner connected", "user_id", client.userID)

		go client.writePump()
		client.readPump(hub)
	}
}

// readPump relays the client's frames until the connection drops.
func (c *wsClient) readPump(hub *Hub) {
	defer func() {
		hub.unregister(c)
		close(c.send)
		c.conn.Close()
		slog.Info("Planner disconnected", "user_id", c.userID)
	}()

	for {
		var msg realtime.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case realtime.MessageAssignmentChange, realtime.MessageConflictDetected, realtime.MessageConflictResolved:
			msg.SenderID = c.userID
			if msg.SentAt.IsZero() {
				msg.SentAt = time.Now().UTC()
			}
			hub.broadcast(msg, nil)
		default:
			// Auth replays and unknown frame types are ignored.
		}
	}
}

// writePump drains the send channel onto the wire.
func (c *wsClient) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
