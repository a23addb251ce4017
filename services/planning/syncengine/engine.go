// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package syncengine batches ledger changes and pushes them to the
// persistence backend with debouncing, retries, and offline parking.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/clock"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/ledger"
)

// ============================================================================
// Configuration
// ============================================================================

const (
	// DefaultDebounceWindow is how long the engine waits after the last
	// change before sending a batch. Rapid edits collapse into one
	// request.
	DefaultDebounceWindow = 500 * time.Millisecond

	// DefaultRetryInterval is how often parked and failed changes are
	// re-attempted.
	DefaultRetryInterval = 10 * time.Second

	// DefaultMaxRetries is how many times a change is re-sent before
	// it is dropped and reported.
	DefaultMaxRetries = 3
)

// Config tunes the sync engine.
type Config struct {
	DebounceWindow time.Duration
	RetryInterval  time.Duration
	MaxRetries     int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: DefaultDebounceWindow,
		RetryInterval:  DefaultRetryInterval,
		MaxRetries:     DefaultMaxRetries,
	}
}

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// ============================================================================
// Collaborator interfaces
// ============================================================================

// Backend is the remote persistence surface the engine syncs against.
type Backend interface {
	// SyncChanges pushes a batch. Conflicts the server detected come
	// back in the first return value; a non-nil error means the batch
	// was not accepted at all.
	SyncChanges(ctx context.Context, changes []datatypes.Change) ([]datatypes.Conflict, error)

	// FetchBoard loads the authoritative assignment set for a date.
	FetchBoard(ctx context.Context, date time.Time) ([]datatypes.Assignment, error)

	// NotifyResolution tells the server how a conflict was settled.
	NotifyResolution(ctx context.Context, conflictID string, res datatypes.Resolution) error
}

// ConflictSink receives conflicts the backend reports. The resolution
// protocol implements this.
type ConflictSink interface {
	Raise(conflict datatypes.Conflict)
}

// ErrorListener is notified when a sync attempt fails or a change is
// dropped after exhausting its retries.
type ErrorListener func(err *datatypes.PersistenceError)

// ============================================================================
// Engine
// ============================================================================

// Engine owns the debounce window, the retry queue, and the offline
// parking lot.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Queue state is
// owned by the run goroutine and touched only through its channels.
type Engine struct {
	cfg     Config
	clk     clock.Clock
	backend Backend
	board   *ledger.Ledger
	sink    ConflictSink
	logger  *slog.Logger

	mu        sync.RWMutex
	listeners map[string]ErrorListener
	online    bool
	started   bool

	notifyCh chan struct{}
	flushCh  chan chan error
	onlineCh chan bool
	depthCh  chan chan int
	stopCh   chan struct{}
	doneCh   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	ledgerToken string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source. Tests use a fake.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clk = c }
}

// WithConflictSink sets where backend-reported conflicts go.
func WithConflictSink(s ConflictSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine bound to a ledger and a backend. Call Start to
// begin syncing.
func New(cfg Config, board *ledger.Ledger, backend Backend, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		clk:       clock.Real(),
		backend:   backend,
		board:     board,
		logger:    slog.Default(),
		listeners: make(map[string]ErrorListener),
		online:    true,
		notifyCh:  make(chan struct{}, 1),
		flushCh:   make(chan chan error),
		onlineCh:  make(chan bool),
		depthCh:   make(chan chan int),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the ledger and launches the run loop.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.mu.Lock()
		e.started = true
		e.mu.Unlock()
		e.ledgerToken = e.board.Subscribe(func(datatypes.Change) {
			select {
			case e.notifyCh <- struct{}{}:
			default:
			}
		})
		go e.run()
	})
}

// Stop tears the session down without flushing.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		if e.running() {
			e.board.Unsubscribe(e.ledgerToken)
			<-e.doneCh
		}
	})
}

// running reports whether the run loop was ever launched. Methods that
// rendezvous on the loop's channels must not block when it does not
// exist.
func (e *Engine) running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// SetOnline flips connectivity. Going online immediately drains parked
// and retry-pending changes. Before Start only the flag is recorded;
// the run loop picks it up once it exists.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	e.online = online
	started := e.started
	e.mu.Unlock()

	if !started {
		return
	}
	select {
	case e.onlineCh <- online:
	case <-e.stopCh:
	}
}

// Online reports current connectivity.
func (e *Engine) Online() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

// ForceFlush sends everything pending right now, bypassing the
// debounce window. Blocks until the attempt finishes.
func (e *Engine) ForceFlush(ctx context.Context) error {
	if !e.running() {
		return errors.New("sync engine not started")
	}
	reply := make(chan error, 1)
	select {
	case e.flushCh <- reply:
	case <-e.stopCh:
		return errors.New("sync engine stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryDepth reports how many changes sit in the retry queue.
func (e *Engine) RetryDepth() int {
	if !e.running() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case e.depthCh <- reply:
		return <-reply
	case <-e.stopCh:
		return 0
	}
}

// SubscribeErrors registers a listener for sync failures. Returns a
// token for Unsubscribe.
func (e *Engine) SubscribeErrors(fn ErrorListener) string {
	token := uuid.NewString()
	e.mu.Lock()
	e.listeners[token] = fn
	e.mu.Unlock()
	return token
}

// UnsubscribeErrors removes a listener. Unknown tokens are a no-op.
func (e *Engine) UnsubscribeErrors(token string) {
	e.mu.Lock()
	delete(e.listeners, token)
	e.mu.Unlock()
}

// ============================================================================
// Run loop
// ============================================================================

func (e *Engine) run() {
	defer close(e.doneCh)

	var debounce clock.Timer
	var debounceC <-chan time.Time

	retryTicker := e.clk.NewTicker(e.cfg.RetryInterval)
	defer retryTicker.Stop()

	// retryQueue holds parked changes (offline) and changes whose send
	// failed with a retryable error.
	var retryQueue []datatypes.Change

	for {
		select {
		case <-e.notifyCh:
			if debounce == nil {
				debounce = e.clk.NewTimer(e.cfg.DebounceWindow)
				debounceC = debounce.C()
			} else {
				debounce.Reset(e.cfg.DebounceWindow)
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			retryQueue = e.flush(retryQueue)

		case <-retryTicker.C():
			if len(retryQueue) > 0 {
				retryQueue = e.flush(retryQueue)
			}

		case reply := <-e.flushCh:
			var err error
			retryQueue, err = e.flushReporting(retryQueue)
			reply <- err
			if debounce != nil {
				debounce.Stop()
				debounce = nil
				debounceC = nil
			}

		case online := <-e.onlineCh:
			if online && len(retryQueue) > 0 {
				retryQueue = e.flush(retryQueue)
			}

		case reply := <-e.depthCh:
			reply <- len(retryQueue)

		case <-e.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// flush combines the retry queue with freshly pending ledger changes
// and attempts one send. Returns the new retry queue.
func (e *Engine) flush(retryQueue []datatypes.Change) []datatypes.Change {
	out, _ := e.flushReporting(retryQueue)
	return out
}

func (e *Engine) flushReporting(retryQueue []datatypes.Change) ([]datatypes.Change, error) {
	batch := append(retryQueue, e.board.TakePending()...)
	if len(batch) == 0 {
		return nil, nil
	}

	if !e.Online() {
		// Park everything until connectivity returns. Parking does not
		// consume a retry attempt.
		e.logger.Debug("offline, parking changes", "count", len(batch))
		return batch, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conflicts, err := e.backend.SyncChanges(ctx, batch)
	if err != nil {
		return e.handleSendFailure(batch, err), err
	}

	e.logger.Info("synced changes", "count", len(batch), "conflicts", len(conflicts))
	for _, c := range conflicts {
		if e.sink != nil {
			e.sink.Raise(c)
		} else {
			e.logger.Warn("conflict reported with no sink configured", "conflict_id", c.ID, "type", c.Type)
		}
	}
	return nil, nil
}

// handleSendFailure requeues retryable changes and drops the rest.
func (e *Engine) handleSendFailure(batch []datatypes.Change, err error) []datatypes.Change {
	var perr *datatypes.PersistenceError
	if !errors.As(err, &perr) {
		perr = datatypes.NewServerError("sync failed", true, err)
	}

	if !perr.Retryable {
		e.logger.Error("batch rejected", "count", len(batch), "error", perr)
		e.notifyError(perr)
		return nil
	}

	var requeue []datatypes.Change
	dropped := 0
	for _, change := range batch {
		change.Retries++
		if change.Retries > e.cfg.MaxRetries {
			dropped++
			e.notifyError(datatypes.NewServerError(
				fmt.Sprintf("change %s dropped after %d attempts", change.ID, change.Retries-1),
				false,
				perr,
			))
			continue
		}
		requeue = append(requeue, change)
	}

	e.logger.Warn("sync attempt failed",
		"error", perr,
		"requeued", len(requeue),
		"dropped", dropped,
	)
	e.notifyError(perr)
	return requeue
}

func (e *Engine) notifyError(perr *datatypes.PersistenceError) {
	e.mu.RLock()
	listeners := make([]ErrorListener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("error listener panicked", "panic", r)
				}
			}()
			fn(perr)
		}()
	}
}
