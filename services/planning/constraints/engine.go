// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package constraints implements the pluggable constraint registry and
// the violation engine that evaluates assignment sets against it.
package constraints

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// Context carries the read-only entities a constraint may consult.
type Context struct {
	Employees map[string]datatypes.Employee
	Demands   map[string]datatypes.Demand
	Absences  []datatypes.Absence
	Skills    map[string]datatypes.Skill
	Stations  map[string]datatypes.Station
	Templates map[string]datatypes.ShiftTemplate

	// AsOf is the evaluation reference date.
	AsOf time.Time
}

// Constraint evaluates a single assignment.
type Constraint interface {
	// ID is the stable constraint identifier.
	ID() string

	// Severity is the default severity for violations this constraint
	// produces. The registry may override it per configuration.
	Severity() datatypes.Severity

	// Evaluate checks one assignment. Returning an error (or
	// panicking) does not abort the run; the engine converts it into
	// a synthetic error-severity violation naming the constraint.
	Evaluate(ctx context.Context, a datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error)
}

// BatchConstraint evaluates the whole assignment set at once. Used for
// cross-assignment rules such as double booking.
type BatchConstraint interface {
	ID() string
	Severity() datatypes.Severity
	EvaluateBatch(ctx context.Context, assignments []datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error)
}

// Result is the outcome of one engine run.
type Result struct {
	// Violations are all violations produced, in evaluation order.
	Violations []datatypes.ConstraintViolation `json:"violations"`
}

// CanProceed reports whether the assignment set can be worked with:
// true when no critical violations exist.
func (r *Result) CanProceed() bool {
	for _, v := range r.Violations {
		if v.Severity == datatypes.SeverityCritical {
			return false
		}
	}
	return true
}

// Valid reports whether the assignment set is fully valid: true when
// no blocking (error or critical) violations exist. This is a stricter
// threshold than CanProceed.
func (r *Result) Valid() bool {
	for _, v := range r.Violations {
		if v.Blocking() {
			return false
		}
	}
	return true
}

// InvalidAssignments returns the ids of assignments affected by at
// least one blocking violation.
func (r *Result) InvalidAssignments() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range r.Violations {
		if !v.Blocking() {
			continue
		}
		for _, id := range v.AffectedAssignments {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Engine holds the constraint registry and runs evaluations.
//
// # Thread Safety
//
// Safe for concurrent use after construction. Enable/Disable and
// severity overrides may race with Evaluate; each run sees a coherent
// copy of the registry taken at its start.
type Engine struct {
	mu            sync.RWMutex
	perAssignment []Constraint
	batch         []BatchConstraint
	disabled      map[string]bool
	overrides     map[string]datatypes.Severity
	logger        *slog.Logger
}

// NewEngine creates an empty Engine. Register constraints before use,
// or use DefaultEngine for the built-in set.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		disabled:  make(map[string]bool),
		overrides: make(map[string]datatypes.Severity),
		logger:    logger,
	}
}

// DefaultEngine creates an Engine with all built-in constraints
// registered and enabled.
func DefaultEngine(logger *slog.Logger) *Engine {
	e := NewEngine(logger)
	e.Register(&assignmentModelConstraint{})
	e.Register(&skillMatchConstraint{})
	e.Register(&absenceConstraint{})
	e.RegisterBatch(&doubleBookingConstraint{})
	e.RegisterBatch(&demandCapacityConstraint{})
	return e
}

// Register adds a per-assignment constraint.
func (e *Engine) Register(c Constraint) {
	e.mu.Lock()
	e.perAssignment = append(e.perAssignment, c)
	e.mu.Unlock()
}

// RegisterBatch adds a cross-assignment constraint.
func (e *Engine) RegisterBatch(c BatchConstraint) {
	e.mu.Lock()
	e.batch = append(e.batch, c)
	e.mu.Unlock()
}

// Enable re-enables a constraint by id.
func (e *Engine) Enable(id string) {
	e.mu.Lock()
	delete(e.disabled, id)
	e.mu.Unlock()
}

// Disable disables a constraint by id. Disabled constraints are
// skipped entirely during evaluation.
func (e *Engine) Disable(id string) {
	e.mu.Lock()
	e.disabled[id] = true
	e.mu.Unlock()
}

// Enabled reports whether a constraint id is currently enabled.
func (e *Engine) Enabled(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.disabled[id]
}

// SetSeverity overrides the severity of all violations produced by the
// named constraint.
func (e *Engine) SetSeverity(id string, severity datatypes.Severity) {
	e.mu.Lock()
	e.overrides[id] = severity
	e.mu.Unlock()
}

// Evaluate runs every enabled constraint over the assignment set.
//
// # Description
//
// Per-assignment constraints run against each assignment in turn;
// batch constraints run once over the whole set. A constraint that
// returns an error or panics yields a synthetic error-severity
// violation naming the constraint and evaluation continues — one
// broken rule never hides the others' findings.
//
// # Inputs
//
//   - ctx: Context for cancellation, checked between constraints.
//   - assignments: The assignment set to validate.
//   - vctx: Entity context. Nil is treated as empty.
//
// # Outputs
//
//   - *Result: All violations produced.
//   - error: Non-nil only on cancellation.
func (e *Engine) Evaluate(ctx context.Context, assignments []datatypes.Assignment, vctx *Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if vctx == nil {
		vctx = &Context{}
	}

	e.mu.RLock()
	per := make([]Constraint, len(e.perAssignment))
	copy(per, e.perAssignment)
	batch := make([]BatchConstraint, len(e.batch))
	copy(batch, e.batch)
	disabled := make(map[string]bool, len(e.disabled))
	for id := range e.disabled {
		disabled[id] = true
	}
	overrides := make(map[string]datatypes.Severity, len(e.overrides))
	for id, s := range e.overrides {
		overrides[id] = s
	}
	e.mu.RUnlock()

	result := &Result{}

	for _, c := range per {
		if disabled[c.ID()] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, a := range assignments {
			violations := e.safeEvaluate(ctx, c, a, vctx)
			result.Violations = append(result.Violations, applyOverride(violations, overrides)...)
		}
	}

	for _, c := range batch {
		if disabled[c.ID()] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		violations := e.safeEvaluateBatch(ctx, c, assignments, vctx)
		result.Violations = append(result.Violations, applyOverride(violations, overrides)...)
	}

	return result, nil
}

// safeEvaluate runs one per-assignment constraint with panic and error
// isolation.
func (e *Engine) safeEvaluate(ctx context.Context, c Constraint, a datatypes.Assignment, vctx *Context) (out []datatypes.ConstraintViolation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("constraint panicked",
				"constraint", c.ID(),
				"assignment_id", a.ID,
				"panic", r,
			)
			out = []datatypes.ConstraintViolation{syntheticViolation(c.ID(), a.ID, fmt.Sprintf("%v", r))}
		}
	}()

	violations, err := c.Evaluate(ctx, a, vctx)
	if err != nil {
		e.logger.Warn("constraint evaluation failed",
			"constraint", c.ID(),
			"assignment_id", a.ID,
			"error", err,
		)
		return []datatypes.ConstraintViolation{syntheticViolation(c.ID(), a.ID, err.Error())}
	}
	return violations
}

// safeEvaluateBatch runs one batch constraint with panic and error
// isolation.
func (e *Engine) safeEvaluateBatch(ctx context.Context, c BatchConstraint, assignments []datatypes.Assignment, vctx *Context) (out []datatypes.ConstraintViolation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("batch constraint panicked",
				"constraint", c.ID(),
				"panic", r,
			)
			out = []datatypes.ConstraintViolation{syntheticViolation(c.ID(), "", fmt.Sprintf("%v", r))}
		}
	}()

	violations, err := c.EvaluateBatch(ctx, assignments, vctx)
	if err != nil {
		e.logger.Warn("batch constraint evaluation failed",
			"constraint", c.ID(),
			"error", err,
		)
		return []datatypes.ConstraintViolation{syntheticViolation(c.ID(), "", err.Error())}
	}
	return violations
}

// syntheticViolation represents a constraint that failed to evaluate.
func syntheticViolation(constraintID, assignmentID, detail string) datatypes.ConstraintViolation {
	var affected []string
	if assignmentID != "" {
		affected = []string{assignmentID}
	}
	return datatypes.ConstraintViolation{
		ConstraintID:        constraintID,
		Severity:            datatypes.SeverityError,
		Message:             fmt.Sprintf("constraint %s failed to evaluate: %s", constraintID, detail),
		AffectedAssignments: affected,
		SuggestedActions:    []string{"Review the constraint configuration"},
		Timestamp:           time.Now(),
	}
}

func applyOverride(violations []datatypes.ConstraintViolation, overrides map[string]datatypes.Severity) []datatypes.ConstraintViolation {
	for i := range violations {
		if s, ok := overrides[violations[i].ConstraintID]; ok {
			violations[i].Severity = s
		}
	}
	return violations
}
