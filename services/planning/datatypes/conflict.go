// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected incompatibility.
type ConflictType string

const (
	ConflictDoubleBooking    ConflictType = "double_booking"
	ConflictSkillMismatch    ConflictType = "skill_mismatch"
	ConflictCapacityExceeded ConflictType = "capacity_exceeded"
	ConflictConcurrentModify ConflictType = "concurrent_modification"
)

// ConflictState is the lifecycle state of a conflict.
//
// Conflicts move detected → awaiting_resolution → resolved. Resolved is
// terminal; a conflict is never revisited.
type ConflictState string

const (
	ConflictDetected ConflictState = "detected"
	ConflictAwaiting ConflictState = "awaiting_resolution"
	ConflictResolved ConflictState = "resolved"
)

// ResolutionAction is the caller's choice for resolving a conflict.
type ResolutionAction string

const (
	// ResolveAcceptLocal keeps the ledger's version and re-sends it as
	// an authoritative overwrite.
	ResolveAcceptLocal ResolutionAction = "accept_local"

	// ResolveAcceptRemote replaces the ledger entry with the remote
	// snapshot and discards the local pending change.
	ResolveAcceptRemote ResolutionAction = "accept_remote"

	// ResolveMerge combines fields from both versions. Only valid for
	// concurrent_modification conflicts with both snapshots present.
	ResolveMerge ResolutionAction = "merge"

	// ResolveManual clears the conflict without automated effect; the
	// caller issues a fresh corrective mutation afterwards.
	ResolveManual ResolutionAction = "manual"
)

// Resolution is the chosen outcome for a conflict.
type Resolution struct {
	// Action selects the resolution strategy.
	Action ResolutionAction `json:"action"`

	// ResolvedAssignment is the snapshot to keep. Required for
	// accept_local and accept_remote.
	ResolvedAssignment *Assignment `json:"resolvedAssignment,omitempty"`

	// UserID identifies who resolved the conflict.
	UserID string `json:"userId,omitempty"`
}

// Validate checks that the resolution is applicable to a conflict of
// the given type. Returns a *ValidationError on failure.
func (r Resolution) Validate(conflictType ConflictType) error {
	switch r.Action {
	case ResolveAcceptLocal, ResolveAcceptRemote:
		if r.ResolvedAssignment == nil {
			return &ValidationError{
				Rule:    "resolution-snapshot",
				Message: string(r.Action) + " requires a resolved assignment snapshot",
			}
		}
	case ResolveMerge:
		if conflictType != ConflictConcurrentModify {
			return &ValidationError{
				Rule:    "merge-conflict-type",
				Message: "merge is only valid for concurrent_modification conflicts",
			}
		}
	case ResolveManual:
	default:
		return &ValidationError{Rule: "resolution-action", Message: "unknown resolution action: " + string(r.Action)}
	}
	return nil
}

// Conflict is a detected incompatibility between assignments, or
// between local and remote state.
//
// Local and Remote carry the competing snapshots for
// concurrent_modification conflicts; they are nil for pre-flight
// conflicts where only the affected ids matter.
type Conflict struct {
	// ID uniquely identifies the conflict.
	ID string `json:"id"`

	// Type classifies the incompatibility.
	Type ConflictType `json:"type"`

	// AffectedAssignments lists the assignment ids involved.
	AffectedAssignments []string `json:"affectedAssignments"`

	// Message describes the conflict for planners.
	Message string `json:"message"`

	// Local is this client's candidate, when known.
	Local *Assignment `json:"localAssignment,omitempty"`

	// Remote is the authoritative or peer candidate, when known.
	Remote *Assignment `json:"remoteAssignment,omitempty"`

	// Resolution is set once the conflict is resolved.
	Resolution *Resolution `json:"resolution,omitempty"`

	// State is the lifecycle state.
	State ConflictState `json:"state"`

	// DetectedAt is when the conflict was produced.
	DetectedAt time.Time `json:"detectedAt"`
}

// NewConflict creates a Conflict in the detected state.
func NewConflict(conflictType ConflictType, affected []string, message string) Conflict {
	return Conflict{
		ID:                  uuid.NewString(),
		Type:                conflictType,
		AffectedAssignments: affected,
		Message:             message,
		State:               ConflictDetected,
		DetectedAt:          time.Now(),
	}
}
