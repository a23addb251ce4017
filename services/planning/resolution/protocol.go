// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolution tracks raised conflicts and applies the chosen
// resolution back onto the ledger.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/ledger"
)

// Notifier tells the backend how a conflict was settled. The sync
// engine's HTTP backend implements this.
type Notifier interface {
	NotifyResolution(ctx context.Context, conflictID string, res datatypes.Resolution) error
}

// Broadcaster pushes conflict lifecycle events to collaborating
// clients. The realtime channel implements this.
type Broadcaster interface {
	BroadcastConflict(conflict datatypes.Conflict)
}

// ConflictListener observes conflict lifecycle events: once when a
// conflict is raised and once when it is resolved.
type ConflictListener func(conflict datatypes.Conflict)

// Protocol is the conflict correlation table.
//
// # Description
//
// Every raised conflict gets an entry and a buffered resolution
// channel. Await blocks a saving caller until Resolve settles the
// conflict; the buffer means Resolve never blocks waiting for an Await
// that may never come. Dismissing a conflict only hides it from the
// visible list; it stays open and resolvable.
//
// # Thread Safety
//
// Safe for concurrent use.
type Protocol struct {
	mu        sync.RWMutex
	active    map[string]*datatypes.Conflict
	dismissed map[string]struct{}
	waiters   map[string]chan datatypes.Resolution
	listeners map[string]ConflictListener

	board       *ledger.Ledger
	notifier    Notifier
	broadcaster Broadcaster
	logger      *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithNotifier sets the backend resolution notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Protocol) { p.notifier = n }
}

// WithBroadcaster sets the realtime broadcaster.
func WithBroadcaster(b Broadcaster) Option {
	return func(p *Protocol) { p.broadcaster = b }
}

// WithLogger sets the protocol logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) { p.logger = l }
}

// New creates a Protocol applying resolutions to the given ledger.
func New(board *ledger.Ledger, opts ...Option) *Protocol {
	p := &Protocol{
		active:    make(map[string]*datatypes.Conflict),
		dismissed: make(map[string]struct{}),
		waiters:   make(map[string]chan datatypes.Resolution),
		listeners: make(map[string]ConflictListener),
		board:     board,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Raise registers a conflict and moves it to awaiting_resolution.
// Raising the same conflict id twice is a no-op; the first entry wins.
func (p *Protocol) Raise(conflict datatypes.Conflict) {
	p.mu.Lock()
	if _, exists := p.active[conflict.ID]; exists {
		p.mu.Unlock()
		return
	}
	conflict.State = datatypes.ConflictAwaiting
	p.active[conflict.ID] = &conflict
	p.waiters[conflict.ID] = make(chan datatypes.Resolution, 1)
	listeners := p.listenersLocked()
	p.mu.Unlock()

	p.logger.Info("conflict raised",
		"conflict_id", conflict.ID,
		"type", conflict.Type,
		"affected", len(conflict.AffectedAssignments),
	)

	if p.broadcaster != nil {
		p.broadcaster.BroadcastConflict(conflict)
	}
	p.notifyListeners(listeners, conflict)
}

// Await blocks until the conflict is resolved or the context ends.
// Unknown ids fail immediately; the conflict may already be settled.
func (p *Protocol) Await(ctx context.Context, conflictID string) (datatypes.Resolution, error) {
	p.mu.RLock()
	waiter, ok := p.waiters[conflictID]
	p.mu.RUnlock()
	if !ok {
		return datatypes.Resolution{}, fmt.Errorf("no active conflict %s", conflictID)
	}

	select {
	case res := <-waiter:
		// Re-buffer for any other waiter on the same conflict.
		waiter <- res
		return res, nil
	case <-ctx.Done():
		return datatypes.Resolution{}, ctx.Err()
	}
}

// Resolve settles a conflict and applies the chosen strategy to the
// ledger.
//
// # Description
//
// accept_local re-queues the local snapshot so the next sync sends it
// as an authoritative overwrite. accept_remote overwrites the ledger
// entry without queueing anything; the server already holds that
// state. merge combines the two snapshots field by field and queues
// the result. manual only clears the conflict.
//
// # Inputs
//
//   - ctx: Context for the backend notification.
//   - conflictID: The conflict to settle.
//   - res: The chosen resolution.
//
// # Outputs
//
//   - error: Non-nil for unknown conflicts, invalid resolutions, or a
//     failed backend notification. The conflict stays active on error.
func (p *Protocol) Resolve(ctx context.Context, conflictID string, res datatypes.Resolution) error {
	p.mu.RLock()
	conflict, ok := p.active[conflictID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no active conflict %s", conflictID)
	}

	if err := res.Validate(conflict.Type); err != nil {
		return err
	}

	if err := p.apply(*conflict, res); err != nil {
		return err
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyResolution(ctx, conflictID, res); err != nil {
			return fmt.Errorf("notify resolution for %s: %w", conflictID, err)
		}
	}

	p.mu.Lock()
	conflict.State = datatypes.ConflictResolved
	conflict.Resolution = &res
	final := *conflict
	delete(p.active, conflictID)
	delete(p.dismissed, conflictID)
	waiter := p.waiters[conflictID]
	delete(p.waiters, conflictID)
	listeners := p.listenersLocked()
	p.mu.Unlock()

	if waiter != nil {
		waiter <- res
	}

	p.logger.Info("conflict resolved",
		"conflict_id", conflictID,
		"action", res.Action,
		"user_id", res.UserID,
	)

	if p.broadcaster != nil {
		p.broadcaster.BroadcastConflict(final)
	}
	p.notifyListeners(listeners, final)
	return nil
}

// apply carries out the resolution's effect on the ledger.
func (p *Protocol) apply(conflict datatypes.Conflict, res datatypes.Resolution) error {
	switch res.Action {
	case datatypes.ResolveAcceptLocal:
		p.board.Apply(datatypes.NewChange(datatypes.ChangeUpdate, *res.ResolvedAssignment))
		return nil

	case datatypes.ResolveAcceptRemote:
		p.board.ApplyRemote(datatypes.NewChange(datatypes.ChangeUpdate, *res.ResolvedAssignment))
		return nil

	case datatypes.ResolveMerge:
		if conflict.Local == nil || conflict.Remote == nil {
			return &datatypes.ValidationError{
				Rule:    "merge-snapshots",
				Message: "merge requires both local and remote snapshots",
			}
		}
		merged := mergeAssignments(*conflict.Local, *conflict.Remote)
		p.board.Apply(datatypes.NewChange(datatypes.ChangeUpdate, merged))
		return nil

	case datatypes.ResolveManual:
		return nil

	default:
		return &datatypes.ValidationError{
			Rule:    "resolution-action",
			Message: "unknown resolution action: " + string(res.Action),
		}
	}
}

// mergeAssignments combines two versions of the same assignment. The
// later UpdatedAt wins field by field for status, score, and
// explanation; a confirmation is never silently downgraded back to
// proposed.
func mergeAssignments(local, remote datatypes.Assignment) datatypes.Assignment {
	newer, older := local, remote
	if remote.UpdatedAt.After(local.UpdatedAt) {
		newer, older = remote, local
	}

	merged := newer
	if merged.Status == datatypes.StatusProposed && older.Status == datatypes.StatusConfirmed {
		merged.Status = datatypes.StatusConfirmed
	}
	if merged.Explanation == "" {
		merged.Explanation = older.Explanation
	}
	return merged
}

// Dismiss hides a conflict from the visible list without resolving it.
// The inconsistency stays open: waiters keep blocking, the conflict is
// still resolvable by id, and nothing is broadcast or applied to the
// ledger.
func (p *Protocol) Dismiss(conflictID, userID string) error {
	p.mu.Lock()
	if _, ok := p.active[conflictID]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("no active conflict %s", conflictID)
	}
	p.dismissed[conflictID] = struct{}{}
	p.mu.Unlock()

	p.logger.Info("conflict dismissed", "conflict_id", conflictID, "user_id", userID)
	return nil
}

// Active returns a copy of all unresolved conflicts. Dismissed
// conflicts are excluded even though they remain unresolved.
func (p *Protocol) Active() []datatypes.Conflict {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]datatypes.Conflict, 0, len(p.active))
	for id, c := range p.active {
		if _, hidden := p.dismissed[id]; hidden {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// Get returns one active conflict by id.
func (p *Protocol) Get(conflictID string) (datatypes.Conflict, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.active[conflictID]
	if !ok {
		return datatypes.Conflict{}, false
	}
	return *c, true
}

// Subscribe registers a conflict lifecycle listener. Returns a token
// for Unsubscribe.
func (p *Protocol) Subscribe(fn ConflictListener) string {
	token := uuid.NewString()
	p.mu.Lock()
	p.listeners[token] = fn
	p.mu.Unlock()
	return token
}

// Unsubscribe removes a listener. Unknown tokens are a no-op.
func (p *Protocol) Unsubscribe(token string) {
	p.mu.Lock()
	delete(p.listeners, token)
	p.mu.Unlock()
}

func (p *Protocol) listenersLocked() []ConflictListener {
	out := make([]ConflictListener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}

func (p *Protocol) notifyListeners(listeners []ConflictListener, conflict datatypes.Conflict) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("conflict listener panicked", "conflict_id", conflict.ID, "panic", r)
				}
			}()
			fn(conflict)
		}()
	}
}
