// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package realtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/clock"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// State is the channel's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackingOff   State = "backing_off"
)

const (
	// DefaultBaseDelay is the first reconnect delay; each further
	// attempt doubles it.
	DefaultBaseDelay = time.Second

	// DefaultMaxAttempts caps consecutive reconnect attempts. After
	// that the channel stays disconnected until connectivity is
	// explicitly restored.
	DefaultMaxAttempts = 5
)

// Config tunes the realtime channel.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://host/planning/ws".
	URL string

	// UserID identifies this client for auth and echo suppression.
	UserID string

	BaseDelay   time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// MessageListener observes inbound peer messages. Own echoes are
// filtered out before listeners run.
type MessageListener func(msg Message)

// StateListener observes connection state transitions.
type StateListener func(state State)

// Channel is the client side of the realtime mirror.
//
// # Description
//
// Connect dials the hub, authenticates, and keeps reading until the
// connection drops. Drops trigger capped exponential backoff through
// the injected clock. Going explicitly offline suspends the channel;
// going online again resets the attempt budget and reconnects.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
type Channel struct {
	cfg    Config
	clk    clock.Clock
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	conn      *websocket.Conn
	listeners map[string]MessageListener
	states    map[string]StateListener
	online    bool
	started   bool

	writeMu sync.Mutex

	kickCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock substitutes the time source used for backoff.
func WithClock(c clock.Clock) Option {
	return func(ch *Channel) { ch.clk = c }
}

// WithDialer substitutes the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(ch *Channel) { ch.dialer = d }
}

// WithLogger sets the channel logger.
func WithLogger(l *slog.Logger) Option {
	return func(ch *Channel) { ch.logger = l }
}

// New creates a Channel. Call Connect to start it.
func New(cfg Config, opts ...Option) *Channel {
	ch := &Channel{
		cfg:       cfg.withDefaults(),
		clk:       clock.Real(),
		dialer:    websocket.DefaultDialer,
		logger:    slog.Default(),
		state:     StateDisconnected,
		listeners: make(map[string]MessageListener),
		states:    make(map[string]StateListener),
		online:    true,
		kickCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// Connect launches the connection manager. Idempotent.
func (c *Channel) Connect() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go c.run()
	})
}

// Close shuts the channel down for good. Safe to call even when
// Connect never ran.
func (c *Channel) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.closeConn()
		c.mu.RLock()
		started := c.started
		c.mu.RUnlock()
		if started {
			<-c.doneCh
		}
	})
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetOnline flips connectivity. Going online resets the reconnect
// budget and dials immediately; going offline drops the connection.
func (c *Channel) SetOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()

	if online {
		c.kick()
	} else {
		c.closeConn()
	}
}

// BroadcastChange mirrors a ledger change to peers. Returns an error
// when the channel is not connected; realtime delivery is best effort
// and callers typically log and move on.
func (c *Channel) BroadcastChange(change datatypes.Change) error {
	return c.send(Message{
		Type:     MessageAssignmentChange,
		SenderID: c.cfg.UserID,
		Change:   &change,
		SentAt:   c.clk.Now(),
	})
}

// BroadcastConflict mirrors a conflict lifecycle event to peers. A
// resolved conflict goes out as conflict_resolved with the chosen
// resolution, anything else as conflict_detected.
func (c *Channel) BroadcastConflict(conflict datatypes.Conflict) {
	msg := Message{
		Type:     MessageConflictDetected,
		SenderID: c.cfg.UserID,
		Conflict: &conflict,
		SentAt:   c.clk.Now(),
	}
	if conflict.State == datatypes.ConflictResolved {
		msg = Message{
			Type:       MessageConflictResolved,
			SenderID:   c.cfg.UserID,
			ConflictID: conflict.ID,
			Resolution: conflict.Resolution,
			SentAt:     c.clk.Now(),
		}
	}
	if err := c.send(msg); err != nil {
		c.logger.Debug("conflict broadcast skipped", "conflict_id", conflict.ID, "error", err)
	}
}

// Subscribe registers a listener for inbound peer messages. Returns a
// token for Unsubscribe.
func (c *Channel) Subscribe(fn MessageListener) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.listeners[token] = fn
	c.mu.Unlock()
	return token
}

// Unsubscribe removes a message listener.
func (c *Channel) Unsubscribe(token string) {
	c.mu.Lock()
	delete(c.listeners, token)
	c.mu.Unlock()
}

// SubscribeState registers a listener for state transitions.
func (c *Channel) SubscribeState(fn StateListener) string {
	token := uuid.NewString()
	c.mu.Lock()
	c.states[token] = fn
	c.mu.Unlock()
	return token
}

// UnsubscribeState removes a state listener.
func (c *Channel) UnsubscribeState(token string) {
	c.mu.Lock()
	delete(c.states, token)
	c.mu.Unlock()
}

// ============================================================================
// Connection management
// ============================================================================

func (c *Channel) run() {
	defer close(c.doneCh)

	attempts := 0
	for {
		select {
		case <-c.stopCh:
			c.setState(StateDisconnected)
			return
		default:
		}

		if !c.isOnline() {
			c.setState(StateDisconnected)
			if !c.waitKick() {
				return
			}
			attempts = 0
			continue
		}

		c.setState(StateConnecting)
		conn, _, err := c.dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			c.logger.Warn("realtime dial failed", "url", c.cfg.URL, "error", err)
			if !c.backoff(&attempts) {
				return
			}
			continue
		}

		if err := c.authenticate(conn); err != nil {
			c.logger.Warn("realtime auth failed", "error", err)
			conn.Close()
			if !c.backoff(&attempts) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.setState(StateConnected)
		attempts = 0
		c.logger.Info("realtime connected", "url", c.cfg.URL, "user_id", c.cfg.UserID)

		c.readLoop(conn)
		c.clearConn()

		select {
		case <-c.stopCh:
			c.setState(StateDisconnected)
			return
		default:
		}
		if !c.isOnline() {
			// Deliberate disconnect; park without burning attempts.
			continue
		}
		if !c.backoff(&attempts) {
			return
		}
	}
}

// authenticate sends the identifying first frame.
func (c *Channel) authenticate(conn *websocket.Conn) error {
	return conn.WriteJSON(Message{
		Type:     MessageAuth,
		SenderID: c.cfg.UserID,
		UserID:   c.cfg.UserID,
		SentAt:   c.clk.Now(),
	})
}

// backoff waits before the next attempt. Returns false when the
// channel was stopped. Exhausting the attempt budget parks the channel
// disconnected until a kick (SetOnline) arrives.
func (c *Channel) backoff(attempts *int) bool {
	*attempts++
	if *attempts > c.cfg.MaxAttempts {
		c.logger.Error("realtime reconnect attempts exhausted", "attempts", c.cfg.MaxAttempts)
		c.setState(StateDisconnected)
		if !c.waitKick() {
			return false
		}
		*attempts = 0
		return true
	}

	delay := c.cfg.BaseDelay << (*attempts - 1)
	c.logger.Info("realtime backing off", "attempt", *attempts, "delay", delay)
	c.setState(StateBackingOff)

	timer := c.clk.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-c.kickCh:
		*attempts = 0
		return true
	case <-c.stopCh:
		c.setState(StateDisconnected)
		return false
	}
}

// waitKick blocks until SetOnline(true) or shutdown.
func (c *Channel) waitKick() bool {
	select {
	case <-c.kickCh:
		return true
	case <-c.stopCh:
		return false
	}
}

func (c *Channel) kick() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Info("realtime connection lost", "error", err)
			return
		}
		if msg.SenderID == c.cfg.UserID {
			// Own echo from the hub relay.
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg Message) {
	c.mu.RLock()
	listeners := make([]MessageListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("realtime listener panicked", "type", msg.Type, "panic", r)
				}
			}()
			fn(msg)
		}()
	}
}

func (c *Channel) send(msg Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("realtime channel not connected (state %s)", c.State())
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) clearConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Channel) closeConn() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Channel) isOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	states := make([]StateListener, 0, len(c.states))
	for _, fn := range c.states {
		states = append(states, fn)
	}
	c.mu.Unlock()

	for _, fn := range states {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("state listener panicked", "state", s, "panic", r)
				}
			}()
			fn(s)
		}()
	}
}
