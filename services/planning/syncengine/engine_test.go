// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package syncengine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/clock"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/ledger"
)

var testEpoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// ============================================================================
// Fakes
// ============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	batches   [][]datatypes.Change
	conflicts []datatypes.Conflict
	errs      []error // consumed one per call, nil once exhausted
	calls     chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(chan struct{}, 16)}
}

func (f *fakeBackend) SyncChanges(_ context.Context, changes []datatypes.Change) ([]datatypes.Conflict, error) {
	f.mu.Lock()
	copied := make([]datatypes.Change, len(changes))
	copy(copied, changes)
	f.batches = append(f.batches, copied)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	conflicts := f.conflicts
	f.mu.Unlock()

	f.calls <- struct{}{}
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

func (f *fakeBackend) FetchBoard(context.Context, time.Time) ([]datatypes.Assignment, error) {
	return nil, nil
}

func (f *fakeBackend) NotifyResolution(context.Context, string, datatypes.Resolution) error {
	return nil
}

func (f *fakeBackend) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBackend) batch(i int) []datatypes.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[i]
}

func (f *fakeBackend) waitCall(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sync call")
	}
}

type fakeSink struct {
	mu        sync.Mutex
	conflicts []datatypes.Conflict
}

func (f *fakeSink) Raise(c datatypes.Conflict) {
	f.mu.Lock()
	f.conflicts = append(f.conflicts, c)
	f.mu.Unlock()
}

func (f *fakeSink) raised() []datatypes.Conflict {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]datatypes.Conflict, len(f.conflicts))
	copy(out, f.conflicts)
	return out
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	clk     *clock.Fake
	board   *ledger.Ledger
	backend *fakeBackend
	sink    *fakeSink
	engine  *Engine
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clk:     clock.NewFake(testEpoch),
		board:   ledger.New(nil),
		backend: newFakeBackend(),
		sink:    &fakeSink{},
	}
	h.engine = New(cfg, h.board, h.backend,
		WithClock(h.clk),
		WithConflictSink(h.sink),
	)
	h.engine.Start()
	t.Cleanup(h.engine.Stop)

	// The run loop owns one retry ticker from the start.
	h.clk.BlockUntil(1)
	return h
}

func (h *harness) apply(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		a, err := datatypes.NewAssignment(fmt.Sprintf("a-%d", i), fmt.Sprintf("dem-%d", i), "emp-1", 90)
		require.NoError(t, err)
		h.board.Apply(datatypes.NewChange(datatypes.ChangeAdd, a))
	}
	// Wait for the run loop to arm the debounce timer (ticker + timer).
	h.clk.BlockUntil(2)
}

// ============================================================================
// Tests
// ============================================================================

func TestDebounce_CollapsesRapidEditsIntoOneBatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.apply(t, 5)
	h.clk.Advance(DefaultDebounceWindow)
	h.backend.waitCall(t)

	require.Equal(t, 1, h.backend.batchCount())
	assert.Len(t, h.backend.batch(0), 5)
}

func TestDebounce_WindowResetsOnEachChange(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.apply(t, 1)
	h.clk.Advance(300 * time.Millisecond)

	// A second change inside the window pushes the deadline out. The
	// timer count does not change on a reset, so give the run loop a
	// moment to process the notification before advancing.
	h.apply(t, 1)
	time.Sleep(50 * time.Millisecond)
	h.clk.Advance(300 * time.Millisecond)
	assert.Equal(t, 0, h.backend.batchCount())

	h.clk.Advance(200 * time.Millisecond)
	h.backend.waitCall(t)
	require.Equal(t, 1, h.backend.batchCount())
	assert.Len(t, h.backend.batch(0), 2)
}

func TestRetry_FailedBatchRequeuedAndDrained(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.backend.mu.Lock()
	h.backend.errs = []error{datatypes.NewNetworkError("connection refused", nil)}
	h.backend.mu.Unlock()

	h.apply(t, 2)
	h.clk.Advance(DefaultDebounceWindow)
	h.backend.waitCall(t)

	require.Equal(t, 2, h.engine.RetryDepth())

	// The next retry tick succeeds and empties the queue.
	h.clk.Advance(DefaultRetryInterval)
	h.backend.waitCall(t)

	assert.Equal(t, 0, h.engine.RetryDepth())
	require.Equal(t, 2, h.backend.batchCount())
	assert.Len(t, h.backend.batch(1), 2)
}

func TestRetry_DroppedAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2})

	var reported []*datatypes.PersistenceError
	var mu sync.Mutex
	h.engine.SubscribeErrors(func(err *datatypes.PersistenceError) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	h.backend.mu.Lock()
	h.backend.errs = []error{
		datatypes.NewNetworkError("down", nil),
		datatypes.NewNetworkError("down", nil),
		datatypes.NewNetworkError("down", nil),
	}
	h.backend.mu.Unlock()

	h.apply(t, 1)
	h.clk.Advance(DefaultDebounceWindow)
	h.backend.waitCall(t)

	for i := 0; i < 2; i++ {
		h.clk.Advance(DefaultRetryInterval)
		h.backend.waitCall(t)
	}

	assert.Equal(t, 0, h.engine.RetryDepth())

	mu.Lock()
	defer mu.Unlock()
	var dropped bool
	for _, err := range reported {
		if !err.Retryable && err.Type == datatypes.ErrorTypeServer {
			dropped = true
		}
	}
	assert.True(t, dropped, "expected a drop notification after retries ran out")
}

func TestConflictsRoutedToSinkNotRetried(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.backend.mu.Lock()
	h.backend.conflicts = []datatypes.Conflict{
		datatypes.NewConflict(datatypes.ConflictConcurrentModify, []string{"a-0"}, "remote edit"),
	}
	h.backend.mu.Unlock()

	h.apply(t, 1)
	h.clk.Advance(DefaultDebounceWindow)
	h.backend.waitCall(t)

	// RetryDepth is served by the run loop after the flush completes,
	// so it doubles as a completion barrier.
	assert.Equal(t, 0, h.engine.RetryDepth())
	require.Len(t, h.sink.raised(), 1)
	assert.Equal(t, datatypes.ConflictConcurrentModify, h.sink.raised()[0].Type)
}

func TestValidationErrorNotRetried(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.backend.mu.Lock()
	h.backend.errs = []error{datatypes.NewValidationError("bad payload", nil)}
	h.backend.mu.Unlock()

	h.apply(t, 1)
	h.clk.Advance(DefaultDebounceWindow)
	h.backend.waitCall(t)

	assert.Equal(t, 0, h.engine.RetryDepth())
}

func TestOffline_ParksChangesUntilOnline(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.engine.SetOnline(false)

	h.apply(t, 3)
	h.clk.Advance(DefaultDebounceWindow)

	// Parked, not sent, and parking costs no retry attempts.
	require.Eventually(t, func() bool { return h.engine.RetryDepth() == 3 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.backend.batchCount())

	h.engine.SetOnline(true)
	h.backend.waitCall(t)

	require.Equal(t, 1, h.backend.batchCount())
	batch := h.backend.batch(0)
	assert.Len(t, batch, 3)
	for _, change := range batch {
		assert.Zero(t, change.Retries)
	}
}

func TestForceFlush_BypassesDebounce(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.apply(t, 2)

	require.NoError(t, h.engine.ForceFlush(context.Background()))
	require.Equal(t, 1, h.backend.batchCount())
	assert.Len(t, h.backend.batch(0), 2)

	// The window elapsing afterwards must not double-send.
	h.clk.Advance(DefaultDebounceWindow)
	assert.Equal(t, 1, h.backend.batchCount())
}

func TestForceFlush_PropagatesError(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.backend.mu.Lock()
	h.backend.errs = []error{datatypes.NewNetworkError("down", nil)}
	h.backend.mu.Unlock()

	h.apply(t, 1)

	err := h.engine.ForceFlush(context.Background())
	require.Error(t, err)

	var perr *datatypes.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, datatypes.ErrorTypeNetwork, perr.Type)
	assert.Equal(t, 1, h.engine.RetryDepth())
}

func TestForceFlush_EmptyQueueIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	require.NoError(t, h.engine.ForceFlush(context.Background()))
	assert.Equal(t, 0, h.backend.batchCount())
}

func TestSetOnline_BeforeStartRecordsFlagWithoutBlocking(t *testing.T) {
	e := New(DefaultConfig(), ledger.New(nil), newFakeBackend())

	done := make(chan struct{})
	go func() {
		e.SetOnline(false)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetOnline blocked with no run loop to service it")
	}
	assert.False(t, e.Online())

	e.Start()
	t.Cleanup(e.Stop)
	assert.False(t, e.Online())
}

func TestStop_BeforeStartReturns(t *testing.T) {
	e := New(DefaultConfig(), ledger.New(nil), newFakeBackend())

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked waiting for a run loop that never started")
	}
	assert.Equal(t, 0, e.RetryDepth())
}
