// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/clock"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// testHub is a minimal websocket endpoint that hands accepted
// connections to the test body.
type testHub struct {
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	h := &testHub{conns: make(chan *websocket.Conn, 4)}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns <- conn
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *testHub) url() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *testHub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-h.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *stateRecorder) has(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.states {
		if got == s {
			return true
		}
	}
	return false
}

func waitState(t *testing.T, c *Channel, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 10*time.Millisecond, "want state %s, got %s", want, c.State())
}

func TestConnect_AuthenticatesFirst(t *testing.T) {
	hub := newTestHub(t)

	c := New(Config{URL: hub.url(), UserID: "planner-1"})
	c.Connect()
	t.Cleanup(c.Close)

	server := hub.accept(t)
	defer server.Close()

	msg := readMessage(t, server)
	assert.Equal(t, MessageAuth, msg.Type)
	assert.Equal(t, "planner-1", msg.UserID)

	waitState(t, c, StateConnected)
}

func TestBroadcastChange_ReachesHub(t *testing.T) {
	hub := newTestHub(t)

	c := New(Config{URL: hub.url(), UserID: "planner-1"})
	c.Connect()
	t.Cleanup(c.Close)

	server := hub.accept(t)
	defer server.Close()
	readMessage(t, server) // auth
	waitState(t, c, StateConnected)

	a, err := datatypes.NewAssignment("a-1", "dem-1", "emp-1", 90)
	require.NoError(t, err)
	require.NoError(t, c.BroadcastChange(datatypes.NewChange(datatypes.ChangeAdd, a)))

	msg := readMessage(t, server)
	assert.Equal(t, MessageAssignmentChange, msg.Type)
	assert.Equal(t, "planner-1", msg.SenderID)
	require.NotNil(t, msg.Change)
	assert.Equal(t, "a-1", msg.Change.Assignment.ID)
}

func TestBroadcast_FailsWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws", UserID: "planner-1"})

	a, err := datatypes.NewAssignment("a-1", "dem-1", "emp-1", 90)
	require.NoError(t, err)
	assert.Error(t, c.BroadcastChange(datatypes.NewChange(datatypes.ChangeAdd, a)))
}

func TestReceive_SuppressesOwnEcho(t *testing.T) {
	hub := newTestHub(t)

	c := New(Config{URL: hub.url(), UserID: "planner-1"})

	var mu sync.Mutex
	var received []Message
	c.Subscribe(func(msg Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	c.Connect()
	t.Cleanup(c.Close)

	server := hub.accept(t)
	defer server.Close()
	readMessage(t, server) // auth
	waitState(t, c, StateConnected)

	// Own echo first, then a peer message.
	require.NoError(t, server.WriteJSON(Message{Type: MessageAssignmentChange, SenderID: "planner-1"}))
	require.NoError(t, server.WriteJSON(Message{Type: MessageUserJoined, SenderID: "planner-2", UserID: "planner-2"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, MessageUserJoined, received[0].Type)
	assert.Equal(t, "planner-2", received[0].SenderID)
}

func TestReconnect_BacksOffThenRedials(t *testing.T) {
	hub := newTestHub(t)
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	rec := &stateRecorder{}
	c := New(Config{URL: hub.url(), UserID: "planner-1"}, WithClock(clk))
	c.SubscribeState(rec.record)
	c.Connect()
	t.Cleanup(c.Close)

	first := hub.accept(t)
	readMessage(t, first) // auth
	waitState(t, c, StateConnected)

	// Kill the connection; the channel must enter backoff.
	first.Close()
	waitState(t, c, StateBackingOff)

	// First delay is BaseDelay.
	clk.BlockUntil(1)
	clk.Advance(DefaultBaseDelay)

	second := hub.accept(t)
	defer second.Close()
	msg := readMessage(t, second)
	assert.Equal(t, MessageAuth, msg.Type)
	waitState(t, c, StateConnected)

	assert.True(t, rec.has(StateConnecting))
	assert.True(t, rec.has(StateBackingOff))
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	// Nothing listens on this port; every dial fails fast.
	c := New(Config{
		URL:         "ws://127.0.0.1:1/ws",
		UserID:      "planner-1",
		MaxAttempts: 2,
	}, WithClock(clk))
	c.Connect()
	t.Cleanup(c.Close)

	// Two failed attempts with doubling delays, then the channel parks.
	clk.BlockUntil(1)
	clk.Advance(DefaultBaseDelay)
	clk.BlockUntil(1)
	clk.Advance(2 * DefaultBaseDelay)

	waitState(t, c, StateDisconnected)
}

func TestSetOnline_TogglesConnection(t *testing.T) {
	hub := newTestHub(t)

	c := New(Config{URL: hub.url(), UserID: "planner-1"})
	c.Connect()
	t.Cleanup(c.Close)

	first := hub.accept(t)
	readMessage(t, first) // auth
	waitState(t, c, StateConnected)

	c.SetOnline(false)
	waitState(t, c, StateDisconnected)

	c.SetOnline(true)
	second := hub.accept(t)
	defer second.Close()
	msg := readMessage(t, second)
	assert.Equal(t, MessageAuth, msg.Type)
	waitState(t, c, StateConnected)
}

func TestClose_BeforeConnectReturns(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws", UserID: "planner-1"})

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked waiting for a connection manager that never started")
	}
	assert.Equal(t, StateDisconnected, c.State())
}
