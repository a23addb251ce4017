// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for deterministic tests.
//
// Timers and tickers created from a Fake only fire inside Advance. The
// firing channels are buffered with capacity 1 and sends never block,
// matching the drop-on-slow-receiver behavior of time.Ticker.
//
// Thread Safety: Fake is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	ch      chan time.Time
	at      time.Time
	period  time.Duration // zero for timers
	stopped bool
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// BlockUntil waits until at least n timers and tickers are active.
// Tests use it to rendezvous with a goroutine that arms a timer before
// advancing the clock.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	for f.activeLocked() < n {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

func (f *Fake) activeLocked() int {
	count := 0
	for _, w := range f.waiters {
		if !w.stopped {
			count++
		}
	}
	return count
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer returns a timer firing once at now+d.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		ch: make(chan time.Time, 1),
		at: f.now.Add(d),
	}
	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return &fakeTimer{clock: f, w: w}
}

// NewTicker returns a ticker firing every d.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{
		ch:     make(chan time.Time, 1),
		at:     f.now.Add(d),
		period: d,
	}
	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return &fakeTicker{clock: f, w: w}
}

// Advance moves the clock forward by d, firing every timer and ticker
// whose deadline falls within the window in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		next := f.earliestLocked(target)
		if next == nil {
			break
		}
		f.now = next.at
		select {
		case next.ch <- next.at:
		default:
		}
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			next.stopped = true
		}
	}

	f.now = target
	f.mu.Unlock()
}

// earliestLocked returns the unstopped waiter with the earliest
// deadline at or before target, or nil.
func (f *Fake) earliestLocked(target time.Time) *fakeWaiter {
	var next *fakeWaiter
	for _, w := range f.waiters {
		if w.stopped || w.at.After(target) {
			continue
		}
		if next == nil || w.at.Before(next.at) {
			next = w
		}
	}
	return next
}

type fakeTimer struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time {
	return t.w.ch
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.w.stopped
	t.w.stopped = true
	return active
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	active := !t.w.stopped
	t.w.stopped = false
	t.w.at = t.clock.now.Add(d)
	t.clock.cond.Broadcast()
	return active
}

type fakeTicker struct {
	clock *Fake
	w     *fakeWaiter
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.w.ch
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
}

// Compile-time interface compliance.
var _ Clock = (*Fake)(nil)
