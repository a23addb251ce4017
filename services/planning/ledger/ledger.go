// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger implements the optimistic change ledger: the client's
// authoritative in-memory view of in-flight assignment mutations.
package ledger

import (
	"log/slog"
	"sync"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/google/uuid"
)

// ChangeListener receives every change applied to the ledger. Listeners
// are invoked synchronously, before Apply returns, so local readers see
// each mutation before any network round trip.
type ChangeListener func(change datatypes.Change)

// Ledger holds the client's best-known state per assignment id plus the
// queue of changes not yet acknowledged by the backend.
//
// # Guarantees
//
//   - Per assignment id, Apply calls are last-write-wins: Snapshot
//     reflects only the most recently applied value.
//   - Optimistic state is monotonic per caller action: every local
//     mutation is visible to local readers before any confirmation.
//
// # Thread Safety
//
// Safe for concurrent use. Listener callbacks run with no ledger lock
// held; a listener may call back into the ledger.
type Ledger struct {
	mu          sync.RWMutex
	assignments map[string]datatypes.Assignment
	pending     []datatypes.Change
	listeners   map[string]ChangeListener
	logger      *slog.Logger
}

// New creates an empty Ledger. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		assignments: make(map[string]datatypes.Assignment),
		listeners:   make(map[string]ChangeListener),
		logger:      logger,
	}
}

// Apply records a change: the assignment is inserted or overwritten
// (removed for deletes), the change joins the pending queue, and all
// listeners are notified synchronously. There is no network wait.
func (l *Ledger) Apply(change datatypes.Change) {
	l.mu.Lock()
	switch change.Type {
	case datatypes.ChangeDelete:
		delete(l.assignments, change.Assignment.ID)
	default:
		l.assignments[change.Assignment.ID] = change.Assignment
	}
	l.pending = append(l.pending, change)
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.notify(listeners, change)
}

// ApplyRemote overwrites an assignment with an authoritative remote
// snapshot. Listeners are notified but nothing joins the pending
// queue; remote state must not echo back to the server.
func (l *Ledger) ApplyRemote(change datatypes.Change) {
	l.mu.Lock()
	switch change.Type {
	case datatypes.ChangeDelete:
		delete(l.assignments, change.Assignment.ID)
	default:
		l.assignments[change.Assignment.ID] = change.Assignment
	}
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.notify(listeners, change)
}

// Rollback clears all optimistic state and pending changes. For every
// assignment that was held, a synthetic delete change is emitted to
// listeners so subscribers can reconcile the UI. The synthetic changes
// are not queued for sync.
func (l *Ledger) Rollback() {
	l.mu.Lock()
	rolled := make([]datatypes.Change, 0, len(l.assignments))
	for _, a := range l.assignments {
		rolled = append(rolled, datatypes.NewChange(datatypes.ChangeDelete, a))
	}
	l.assignments = make(map[string]datatypes.Assignment)
	l.pending = nil
	listeners := l.listenersLocked()
	l.mu.Unlock()

	l.logger.Info("ledger rolled back", "discarded", len(rolled))
	for _, change := range rolled {
		l.notify(listeners, change)
	}
}

// Snapshot returns a copy of the current optimistic assignment set.
// The copy is safe to iterate while the ledger keeps mutating.
func (l *Ledger) Snapshot() []datatypes.Assignment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]datatypes.Assignment, 0, len(l.assignments))
	for _, a := range l.assignments {
		out = append(out, a)
	}
	return out
}

// Get returns the optimistic value for an assignment id.
func (l *Ledger) Get(id string) (datatypes.Assignment, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assignments[id]
	return a, ok
}

// Len returns the number of assignments in the optimistic set.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.assignments)
}

// Pending returns a copy of the unacknowledged change queue.
func (l *Ledger) Pending() []datatypes.Change {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]datatypes.Change, len(l.pending))
	copy(out, l.pending)
	return out
}

// TakePending drains and returns the pending queue. The sync engine
// calls this when assembling an outbound batch; changes it fails to
// deliver go to the engine's retry queue, not back here.
func (l *Ledger) TakePending() []datatypes.Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.pending
	l.pending = nil
	return out
}

// Subscribe registers a change listener and returns a token for
// Unsubscribe.
func (l *Ledger) Subscribe(listener ChangeListener) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := uuid.NewString()
	l.listeners[token] = listener
	return token
}

// Unsubscribe removes a listener. Unsubscribing an unknown or already
// removed token is a no-op; it reports whether a listener was removed.
func (l *Ledger) Unsubscribe(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.listeners[token]; ok {
		delete(l.listeners, token)
		return true
	}
	return false
}

// listenersLocked copies the listener set. Callers must hold l.mu.
func (l *Ledger) listenersLocked() []ChangeListener {
	out := make([]ChangeListener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		out = append(out, fn)
	}
	return out
}

// notify invokes listeners with panic recovery so one misbehaving
// subscriber cannot starve the rest.
func (l *Ledger) notify(listeners []ChangeListener, change datatypes.Change) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("change listener panicked",
						"change_id", change.ID,
						"panic", r,
					)
				}
			}()
			fn(change)
		}()
	}
}
