// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// Severity is the ordinal classification of a constraint violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: info < warning < error < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Blocking reports whether a violation of this severity invalidates the
// affected assignments (error or critical).
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ConstraintViolation is the output of the violation engine.
//
// Violations are derived data: they are recomputed on demand and never
// persisted as mutable entities.
type ConstraintViolation struct {
	// ConstraintID names the constraint that produced the violation.
	ConstraintID string `json:"constraintId"`

	// Severity classifies the violation.
	Severity Severity `json:"severity"`

	// Message describes the violation. May contain entity placeholders
	// of the form {employee:ID}, {demand:ID}, {station:ID}, {skill:ID}
	// that the report package substitutes with display names.
	Message string `json:"message"`

	// AffectedAssignments lists the assignment ids involved.
	AffectedAssignments []string `json:"affectedAssignments"`

	// SuggestedActions are remediation hints for planners.
	SuggestedActions []string `json:"suggestedActions,omitempty"`

	// Timestamp is when the violation was computed.
	Timestamp time.Time `json:"timestamp"`
}

// Blocking reports whether this violation invalidates its assignments.
func (v ConstraintViolation) Blocking() bool {
	return v.Severity.Blocking()
}
