// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/realtime"
)

func newHubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	router := gin.New()
	router.GET("/planning/ws", ServeWS(hub))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/planning/ws"
}

func dialPlanner(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.WriteJSON(realtime.Message{
		Type:   realtime.MessageAuth,
		UserID: userID,
	}))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) realtime.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubAnnouncesPresence(t *testing.T) {
	hub, url := newHubServer(t)

	first := dialPlanner(t, url, "planner-1")
	require.Eventually(t, func() bool {
		return len(hub.ConnectedUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dialPlanner(t, url, "planner-2")

	joined := readFrame(t, first)
	assert.Equal(t, realtime.MessageUserJoined, joined.Type)
	assert.Equal(t, "planner-2", joined.UserID)
}

func TestHubRelaysChangesToPeers(t *testing.T) {
	hub, url := newHubServer(t)

	first := dialPlanner(t, url, "planner-1")
	second := dialPlanner(t, url, "planner-2")

	require.Eventually(t, func() bool {
		return len(hub.ConnectedUsers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Drain planner-1's user_joined announcement for planner-2.
	joined := readFrame(t, first)
	require.Equal(t, realtime.MessageUserJoined, joined.Type)

	a, err := datatypes.NewAssignment("as-1", "dem-1", "emp-1", 80)
	require.NoError(t, err)
	change := datatypes.NewChange(datatypes.ChangeAdd, a)
	require.NoError(t, second.WriteJSON(realtime.Message{
		Type:   realtime.MessageAssignmentChange,
		Change: &change,
	}))

	relayed := readFrame(t, first)
	require.Equal(t, realtime.MessageAssignmentChange, relayed.Type)
	assert.Equal(t, "planner-2", relayed.SenderID, "hub must stamp the sender")
	require.NotNil(t, relayed.Change)
	assert.Equal(t, "as-1", relayed.Change.Assignment.ID)
}

func TestHubAnnouncesDeparture(t *testing.T) {
	hub, url := newHubServer(t)

	first := dialPlanner(t, url, "planner-1")
	second := dialPlanner(t, url, "planner-2")
	require.Eventually(t, func() bool {
		return len(hub.ConnectedUsers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	joined := readFrame(t, first)
	require.Equal(t, realtime.MessageUserJoined, joined.Type)

	second.Close()

	left := readFrame(t, first)
	assert.Equal(t, realtime.MessageUserLeft, left.Type)
	assert.Equal(t, "planner-2", left.UserID)
	require.Eventually(t, func() bool {
		return len(hub.ConnectedUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsMissingAuth(t *testing.T) {
	hub, url := newHubServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	a, mkErr := datatypes.NewAssignment("as-1", "dem-1", "emp-1", 80)
	require.NoError(t, mkErr)
	change := datatypes.NewChange(datatypes.ChangeAdd, a)
	require.NoError(t, conn.WriteJSON(realtime.Message{
		Type:   realtime.MessageAssignmentChange,
		Change: &change,
	}))

	// The hub closes unauthenticated connections without registering.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	assert.Error(t, conn.ReadJSON(&msg))
	assert.Empty(t, hub.ConnectedUsers())
}

func TestHubServerRelay(t *testing.T) {
	hub, url := newHubServer(t)

	conn := dialPlanner(t, url, "planner-1")
	require.Eventually(t, func() bool {
		return len(hub.ConnectedUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	a, err := datatypes.NewAssignment("as-1", "dem-1", "emp-1", 80)
	require.NoError(t, err)
	hub.RelayChange(datatypes.NewChange(datatypes.ChangeUpdate, a))

	msg := readFrame(t, conn)
	assert.Equal(t, realtime.MessageAssignmentChange, msg.Type)
	assert.Equal(t, "server", msg.SenderID)
}
