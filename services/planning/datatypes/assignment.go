// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the value types shared by the planning
// consistency engine: assignments, pending changes, conflicts,
// resolutions, constraint violations, and the persistence error
// taxonomy.
//
// All types here are plain values. Assignment mutators return a new
// value and never modify the receiver, so instances can be shared
// freely between the ledger, the sync engine, and UI callers.
package datatypes

import (
	"time"
)

// AssignmentStatus is the lifecycle status of an assignment.
type AssignmentStatus string

const (
	// StatusProposed is the initial status of a generated or manually
	// created assignment.
	StatusProposed AssignmentStatus = "proposed"

	// StatusConfirmed means a planner accepted the assignment.
	StatusConfirmed AssignmentStatus = "confirmed"

	// StatusRejected is terminal. A rejected assignment never changes
	// status again.
	StatusRejected AssignmentStatus = "rejected"
)

// Score boundaries for assignment validation.
const (
	// MinScore and MaxScore bound the assignment score range.
	MinScore = 0
	MaxScore = 100

	// LowScoreThreshold is the score below which an explanation is
	// mandatory.
	LowScoreThreshold = 50

	// ConfirmScoreThreshold is the minimum score required to confirm
	// an assignment.
	ConfirmScoreThreshold = 30

	// MinExplanationLength is the minimum explanation length for
	// low-scoring assignments.
	MinExplanationLength = 10
)

// Assignment binds one employee to one demand.
//
// # Description
//
// Assignment is an immutable value. Construct it with NewAssignment and
// derive updated versions with WithStatus / WithScore; both re-validate
// every invariant and stamp a fresh UpdatedAt. Direct field mutation is
// possible but bypasses validation and is reserved for decoding wire
// payloads that the backend already validated.
//
// # Invariants
//
//   - Score is within [0, 100].
//   - Score < 50 requires an Explanation of at least 10 characters.
//   - Status transitions: proposed→confirmed, proposed→rejected,
//     confirmed→rejected. Rejected is absorbing.
//   - Confirming requires Score >= 30.
type Assignment struct {
	// ID uniquely identifies the assignment.
	ID string `json:"id"`

	// DemandID references the staffing demand being covered.
	DemandID string `json:"demandId"`

	// EmployeeID references the employee covering the demand.
	EmployeeID string `json:"employeeId"`

	// Status is the lifecycle status.
	Status AssignmentStatus `json:"status"`

	// Score is the match quality in [0, 100].
	Score int `json:"score"`

	// Explanation justifies low scores. Required when Score < 50.
	Explanation string `json:"explanation,omitempty"`

	// CreatedAt is when the assignment was first created.
	CreatedAt time.Time `json:"createdAt"`

	// CreatedBy identifies the planner or generator that created it.
	CreatedBy string `json:"createdBy,omitempty"`

	// UpdatedAt is stamped by every mutator.
	UpdatedAt time.Time `json:"updatedAt"`
}

// AssignmentOption configures NewAssignment.
type AssignmentOption func(*Assignment)

// WithExplanation sets the initial explanation.
func WithExplanation(explanation string) AssignmentOption {
	return func(a *Assignment) {
		a.Explanation = explanation
	}
}

// WithInitialStatus overrides the default proposed status.
func WithInitialStatus(status AssignmentStatus) AssignmentOption {
	return func(a *Assignment) {
		a.Status = status
	}
}

// WithCreatedBy records the creating planner or generator.
func WithCreatedBy(userID string) AssignmentOption {
	return func(a *Assignment) {
		a.CreatedBy = userID
	}
}

// WithTimestamps overrides the created/updated stamps. Used when
// rehydrating assignments the backend already owns.
func WithTimestamps(createdAt, updatedAt time.Time) AssignmentOption {
	return func(a *Assignment) {
		a.CreatedAt = createdAt
		a.UpdatedAt = updatedAt
	}
}

// NewAssignment constructs a validated Assignment.
//
// # Inputs
//
//   - id: Assignment identifier. Must be non-empty.
//   - demandID: Demand reference. Must be non-empty.
//   - employeeID: Employee reference. Must be non-empty.
//   - score: Match quality in [0, 100].
//   - opts: Optional settings (explanation, status, author, stamps).
//
// # Outputs
//
//   - Assignment: The validated assignment.
//   - error: *ValidationError naming the violated rule.
func NewAssignment(id, demandID, employeeID string, score int, opts ...AssignmentOption) (Assignment, error) {
	now := time.Now()
	a := Assignment{
		ID:         id,
		DemandID:   demandID,
		EmployeeID: employeeID,
		Status:     StatusProposed,
		Score:      score,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, opt := range opts {
		opt(&a)
	}

	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Validate checks all assignment invariants.
//
// Returns a *ValidationError naming the first violated rule, or nil.
func (a Assignment) Validate() error {
	if a.ID == "" {
		return &ValidationError{Rule: "id", Message: "assignment id must not be empty"}
	}
	if a.DemandID == "" {
		return &ValidationError{Rule: "demand", Message: "demand reference must not be empty"}
	}
	if a.EmployeeID == "" {
		return &ValidationError{Rule: "employee", Message: "employee reference must not be empty"}
	}
	switch a.Status {
	case StatusProposed, StatusConfirmed, StatusRejected:
	default:
		return &ValidationError{Rule: "status", Message: "unknown status: " + string(a.Status)}
	}
	if a.Score < MinScore || a.Score > MaxScore {
		return &ValidationError{Rule: "score-range", Message: "score must be between 0 and 100"}
	}
	if a.Score < LowScoreThreshold && len(a.Explanation) < MinExplanationLength {
		return &ValidationError{
			Rule:    "low-score-explanation",
			Message: "assignments scoring below 50 require an explanation of at least 10 characters",
		}
	}
	return nil
}

// WithStatus returns a copy with the target status applied.
//
// # Description
//
// Validates that the transition is reachable from the current status
// (proposed→confirmed, proposed→rejected, confirmed→rejected) and that
// confirmation meets the minimum score. The receiver is unchanged.
//
// # Outputs
//
//   - Assignment: The updated copy with a fresh UpdatedAt.
//   - error: *InvalidTransitionError or *ValidationError.
func (a Assignment) WithStatus(status AssignmentStatus) (Assignment, error) {
	if !transitionAllowed(a.Status, status) {
		return Assignment{}, &InvalidTransitionError{From: a.Status, To: status}
	}
	if status == StatusConfirmed && a.Score < ConfirmScoreThreshold {
		return Assignment{}, &ValidationError{
			Rule:    "confirm-score",
			Message: "assignments scoring below 30 cannot be confirmed",
		}
	}

	next := a
	next.Status = status
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return Assignment{}, err
	}
	return next, nil
}

// WithScore returns a copy with the new score and explanation applied.
//
// The explanation replaces the existing one; pass the current value to
// keep it. Fails if the score leaves [0, 100] or the low-score
// explanation rule is violated.
func (a Assignment) WithScore(score int, explanation string) (Assignment, error) {
	next := a
	next.Score = score
	next.Explanation = explanation
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return Assignment{}, err
	}
	return next, nil
}

// Active reports whether the assignment still occupies its employee.
// Rejected assignments are inactive.
func (a Assignment) Active() bool {
	return a.Status != StatusRejected
}

// transitionAllowed encodes the status transition table.
func transitionAllowed(from, to AssignmentStatus) bool {
	switch from {
	case StatusProposed:
		return to == StatusConfirmed || to == StatusRejected
	case StatusConfirmed:
		return to == StatusRejected
	default:
		return false
	}
}
