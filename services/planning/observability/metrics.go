// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes Prometheus metrics for the planning
// engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the planning engine's instruments. A nil *Metrics is
// valid and records nothing, so instrumentation points never need nil
// checks at the call site.
type Metrics struct {
	syncBatches   prometheus.Counter
	syncBatchSize prometheus.Histogram
	syncFailures  *prometheus.CounterVec
	retryDepth    prometheus.Gauge

	conflictsRaised   *prometheus.CounterVec
	conflictsResolved *prometheus.CounterVec

	violations *prometheus.CounterVec

	wsReconnects prometheus.Counter
	wsState      prometheus.Gauge
}

// New registers the planning metrics with the given registerer. A nil
// registerer falls back to the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		syncBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "planning_sync_batches_total",
			Help: "Total change batches pushed to the backend",
		}),
		syncBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "planning_sync_batch_size",
			Help:    "Number of changes per sync batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		syncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_sync_failures_total",
			Help: "Total sync failures by error type",
		}, []string{"error_type"}),
		retryDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "planning_sync_retry_depth",
			Help: "Changes currently waiting in the retry queue",
		}),
		conflictsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_conflicts_raised_total",
			Help: "Total conflicts raised by type",
		}, []string{"type"}),
		conflictsResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_conflicts_resolved_total",
			Help: "Total conflicts resolved by action",
		}, []string{"action"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_constraint_violations_total",
			Help: "Total constraint violations by severity",
		}, []string{"severity"}),
		wsReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "planning_realtime_reconnects_total",
			Help: "Total realtime reconnect attempts",
		}),
		wsState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "planning_realtime_connected",
			Help: "1 when the realtime channel is connected",
		}),
	}
}

// SyncBatch records one pushed batch and its size.
func (m *Metrics) SyncBatch(size int) {
	if m == nil {
		return
	}
	m.syncBatches.Inc()
	m.syncBatchSize.Observe(float64(size))
}

// SyncFailure records a failed sync attempt.
func (m *Metrics) SyncFailure(errorType string) {
	if m == nil {
		return
	}
	m.syncFailures.WithLabelValues(errorType).Inc()
}

// RetryDepth sets the current retry queue depth.
func (m *Metrics) RetryDepth(depth int) {
	if m == nil {
		return
	}
	m.retryDepth.Set(float64(depth))
}

// ConflictRaised records a raised conflict.
func (m *Metrics) ConflictRaised(conflictType string) {
	if m == nil {
		return
	}
	m.conflictsRaised.WithLabelValues(conflictType).Inc()
}

// ConflictResolved records a resolution by action.
func (m *Metrics) ConflictResolved(action string) {
	if m == nil {
		return
	}
	m.conflictsResolved.WithLabelValues(action).Inc()
}

// Violation records one constraint violation.
func (m *Metrics) Violation(severity string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(severity).Inc()
}

// Reconnect records a realtime reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.wsReconnects.Inc()
}

// RealtimeConnected flags the realtime channel state.
func (m *Metrics) RealtimeConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.wsState.Set(1)
	} else {
		m.wsState.Set(0)
	}
}
