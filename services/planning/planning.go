// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planning composes the optimistic ledger, conflict handling,
// debounced persistence, and the realtime channel into one client
// session against a planning server.
package planning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/clock"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/constraints"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/detect"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/ledger"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/observability"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/realtime"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/report"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/resolution"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/syncengine"
)

// Config configures one planning session.
type Config struct {
	// ServerURL is the planning server base URL, e.g.
	// "https://plan.example.com".
	ServerURL string

	// RealtimeURL is the websocket endpoint, e.g.
	// "wss://plan.example.com/planning/ws". Empty disables the
	// realtime channel.
	RealtimeURL string

	// UserID identifies this planner on the realtime channel.
	UserID string

	// Sync configures the debounced persistence engine. Zero fields
	// take the engine defaults.
	Sync syncengine.Config
}

// Service is one planner's session: a consistent facade over the
// ledger, conflict detection and resolution, the sync engine, and the
// realtime channel.
//
// # Thread Safety
//
// Safe for concurrent use.
type Service struct {
	cfg       Config
	board     *ledger.Ledger
	detector  *detect.Detector
	engine    *syncengine.Engine
	protocol  *resolution.Protocol
	channel   *realtime.Channel
	validator *constraints.Engine
	backend   syncengine.Backend
	metrics   *observability.Metrics
	logger    *slog.Logger

	presenceMu sync.RWMutex
	presence   map[string]bool

	started bool
	mu      sync.Mutex
}

// Option customizes a Service.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	clk       clock.Clock
	metrics   *observability.Metrics
	backend   syncengine.Backend
	capacity  detect.CapacityProvider
	validator *constraints.Engine
}

// WithLogger sets the logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock injects a clock for the debounce and backoff timers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

// WithMetrics attaches a metrics sink. Nil metrics are valid and
// record nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackend overrides the HTTP backend. Used by tests.
func WithBackend(b syncengine.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCapacityProvider supplies the demand table for conflict
// detection.
func WithCapacityProvider(p detect.CapacityProvider) Option {
	return func(o *options) { o.capacity = p }
}

// WithConstraintEngine overrides the default constraint set.
func WithConstraintEngine(e *constraints.Engine) Option {
	return func(o *options) { o.validator = e }
}

// New assembles a planning session. Call Start before mutating the
// board.
func New(cfg Config, opts ...Option) *Service {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clk == nil {
		o.clk = clock.Real()
	}
	if o.backend == nil {
		o.backend = syncengine.NewHTTPBackend(cfg.ServerURL)
	}
	if o.validator == nil {
		o.validator = constraints.DefaultEngine(o.logger)
	}

	s := &Service{
		cfg:       cfg,
		board:     ledger.New(o.logger),
		detector:  detect.NewDetector(o.capacity, o.logger),
		validator: o.validator,
		backend:   o.backend,
		metrics:   o.metrics,
		logger:    o.logger,
		presence:  make(map[string]bool),
	}

	if cfg.RealtimeURL != "" {
		s.channel = realtime.New(realtime.Config{
			URL:    cfg.RealtimeURL,
			UserID: cfg.UserID,
		}, realtime.WithClock(o.clk), realtime.WithLogger(o.logger))
	}

	protoOpts := []resolution.Option{
		resolution.WithLogger(o.logger),
		resolution.WithNotifier(o.backend),
	}
	if s.channel != nil {
		protoOpts = append(protoOpts, resolution.WithBroadcaster(s.channel))
	}
	s.protocol = resolution.New(s.board, protoOpts...)

	s.engine = syncengine.New(cfg.Sync, s.board, o.backend,
		syncengine.WithClock(o.clk),
		syncengine.WithLogger(o.logger),
		syncengine.WithConflictSink(s.protocol))

	s.wireMetrics()
	return s
}

// wireMetrics hooks the metric sink into component subscriptions.
// All Metrics methods accept a nil receiver, so this is wired
// unconditionally.
func (s *Service) wireMetrics() {
	s.engine.SubscribeErrors(func(perr *datatypes.PersistenceError) {
		s.metrics.SyncFailure(string(perr.Type))
	})
	s.protocol.Subscribe(func(c datatypes.Conflict) {
		switch c.State {
		case datatypes.ConflictAwaiting:
			s.metrics.ConflictRaised(string(c.Type))
		case datatypes.ConflictResolved:
			if c.Resolution != nil {
				s.metrics.ConflictResolved(string(c.Resolution.Action))
			}
		}
	})
	if s.channel != nil {
		s.channel.SubscribeState(func(st realtime.State) {
			s.metrics.RealtimeConnected(st == realtime.StateConnected)
			if st == realtime.StateBackingOff {
				s.metrics.Reconnect()
			}
		})
		s.channel.Subscribe(s.onRealtimeMessage)
	}
}

// onRealtimeMessage folds peer activity into the local session.
func (s *Service) onRealtimeMessage(msg realtime.Message) {
	switch msg.Type {
	case realtime.MessageAssignmentChange:
		if msg.Change != nil {
			s.board.ApplyRemote(*msg.Change)
		}
	case realtime.MessageConflictDetected:
		if msg.Conflict != nil {
			s.protocol.Raise(*msg.Conflict)
		}
	case realtime.MessageConflictResolved:
		// Informational. The resolved state reaches the board through
		// the assignment_change frames the resolution produced.
	case realtime.MessageUserJoined:
		s.presenceMu.Lock()
		s.presence[msg.UserID] = true
		s.presenceMu.Unlock()
	case realtime.MessageUserLeft:
		s.presenceMu.Lock()
		delete(s.presence, msg.UserID)
		s.presenceMu.Unlock()
	}
}

// Start brings up the sync engine and the realtime channel.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.engine.Start()
	if s.channel != nil {
		s.channel.Connect()
	}
	s.started = true
	s.logger.Info("Planning session started",
		"server_url", s.cfg.ServerURL,
		"realtime", s.channel != nil)
}

// Stop tears the session down without flushing. Callers that need the
// queue drained call ForceSync first.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.engine.Stop()
	if s.channel != nil {
		s.channel.Close()
	}
	s.started = false
	s.logger.Info("Planning session stopped")
}

// ================================================================
// Board mutations
// ================================================================

// SaveAssignment applies an assignment optimistically.
//
// # Description
//
// The change is first checked against the current optimistic set. If
// it would double book an employee or exceed a demand's capacity, the
// conflicts are raised through the resolution protocol and an error is
// returned without touching the board. Otherwise the change lands in
// the ledger immediately, is queued for debounced persistence, and is
// mirrored to collaborating planners.
func (s *Service) SaveAssignment(a datatypes.Assignment) error {
	changeType := datatypes.ChangeAdd
	if _, exists := s.board.Get(a.ID); exists {
		changeType = datatypes.ChangeUpdate
	}
	change := datatypes.NewChange(changeType, a)

	conflicts := s.detector.Check(change, s.board.Snapshot())
	if len(conflicts) > 0 {
		ids := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			s.protocol.Raise(c)
			ids = append(ids, c.ID)
		}
		sort.Strings(ids)
		return datatypes.NewConflictError(
			fmt.Sprintf("assignment %s raised conflicts %s", a.ID, strings.Join(ids, ", ")), nil)
	}

	s.board.Apply(change)
	s.broadcast(change)
	return nil
}

// RemoveAssignment deletes an assignment from the board.
func (s *Service) RemoveAssignment(id string) error {
	a, ok := s.board.Get(id)
	if !ok {
		return datatypes.NewValidationError(fmt.Sprintf("unknown assignment %s", id), nil)
	}
	change := datatypes.NewChange(datatypes.ChangeDelete, a)
	s.board.Apply(change)
	s.broadcast(change)
	return nil
}

func (s *Service) broadcast(change datatypes.Change) {
	if s.channel == nil {
		return
	}
	if err := s.channel.BroadcastChange(change); err != nil {
		// The sync engine still persists the change; peers catch up on
		// their next board fetch.
		s.logger.Debug("Realtime broadcast skipped", "change_id", change.ID, "error", err)
	}
}

// LoadBoard replaces the local state with the server's board for one
// date. Local pending changes are discarded; call ForceSync first when
// they should survive.
func (s *Service) LoadBoard(ctx context.Context, date time.Time) error {
	assignments, err := s.backend.FetchBoard(ctx, date)
	if err != nil {
		return err
	}

	s.board.Rollback()
	for _, a := range assignments {
		s.board.ApplyRemote(datatypes.NewChange(datatypes.ChangeUpdate, a))
	}
	s.logger.Info("Board loaded",
		"date", date.Format("2006-01-02"),
		"assignments", len(assignments))
	return nil
}

// Rollback discards the optimistic state and the pending queue.
func (s *Service) Rollback() {
	s.board.Rollback()
}

// CurrentState returns the optimistic assignment set.
func (s *Service) CurrentState() []datatypes.Assignment {
	return s.board.Snapshot()
}

// PendingCount returns the number of unsynced changes.
func (s *Service) PendingCount() int {
	return len(s.board.Pending())
}

// ================================================================
// Validation
// ================================================================

// Validate runs the constraint engine over the optimistic set and
// returns both the raw result and a severity summary.
func (s *Service) Validate(ctx context.Context, vctx *constraints.Context) (*constraints.Result, report.Summary, error) {
	result, err := s.validator.Evaluate(ctx, s.board.Snapshot(), vctx)
	if err != nil {
		return nil, report.Summary{}, err
	}
	for _, v := range result.Violations {
		s.metrics.Violation(string(v.Severity))
	}
	return result, report.Summarize(result.Violations), nil
}

// ================================================================
// Conflicts
// ================================================================

// ActiveConflicts returns the unresolved conflicts, minus any the
// planner dismissed from view.
func (s *Service) ActiveConflicts() []datatypes.Conflict {
	return s.protocol.Active()
}

// ResolveConflict settles one conflict with the chosen action.
func (s *Service) ResolveConflict(ctx context.Context, conflictID string, res datatypes.Resolution) error {
	return s.protocol.Resolve(ctx, conflictID, res)
}

// DismissConflict hides a conflict from the visible list. The
// underlying inconsistency stays unresolved and the conflict can still
// be settled through ResolveConflict.
func (s *Service) DismissConflict(conflictID, userID string) error {
	return s.protocol.Dismiss(conflictID, userID)
}

// AwaitResolution blocks until the conflict is resolved or the context
// expires.
func (s *Service) AwaitResolution(ctx context.Context, conflictID string) (datatypes.Resolution, error) {
	return s.protocol.Await(ctx, conflictID)
}

// ================================================================
// Sync control
// ================================================================

// ForceSync flushes the pending queue immediately, bypassing the
// debounce window.
func (s *Service) ForceSync(ctx context.Context) error {
	batch := len(s.board.Pending()) + s.engine.RetryDepth()
	err := s.engine.ForceFlush(ctx)
	if err == nil && batch > 0 && s.engine.Online() {
		s.metrics.SyncBatch(batch)
	}
	s.metrics.RetryDepth(s.engine.RetryDepth())
	return err
}

// SetOnline toggles connectivity for both the sync engine and the
// realtime channel. Going online drains the retry queue and
// re-establishes the websocket.
func (s *Service) SetOnline(online bool) {
	s.engine.SetOnline(online)
	if s.channel != nil {
		s.channel.SetOnline(online)
	}
}

// Online reports the sync engine's connectivity flag.
func (s *Service) Online() bool {
	return s.engine.Online()
}

// RetryDepth returns the number of changes waiting for a retry.
func (s *Service) RetryDepth() int {
	return s.engine.RetryDepth()
}

// ================================================================
// Subscriptions
// ================================================================

// OnChange registers a listener for every ledger change, local or
// remote. Returns an unsubscribe token.
func (s *Service) OnChange(fn ledger.ChangeListener) string {
	return s.board.Subscribe(fn)
}

// OnConflict registers a listener for conflict lifecycle events.
func (s *Service) OnConflict(fn resolution.ConflictListener) string {
	return s.protocol.Subscribe(fn)
}

// OnSyncError registers a listener for persistence failures.
func (s *Service) OnSyncError(fn syncengine.ErrorListener) string {
	return s.engine.SubscribeErrors(fn)
}

// Presence returns the user ids currently seen on the realtime
// channel, sorted.
func (s *Service) Presence() []string {
	s.presenceMu.RLock()
	defer s.presenceMu.RUnlock()
	users := make([]string, 0, len(s.presence))
	for u := range s.presence {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
