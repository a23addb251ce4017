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

// ChangeType is the kind of pending mutation.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one pending mutation intended for the backend.
//
// A Change is created when a caller saves or removes an assignment and
// destroyed when the sync engine commits it or a rollback supersedes
// it. The Assignment field carries the full snapshot at mutation time;
// for deletes only the assignment id is meaningful to the backend, but
// the snapshot is kept so subscribers can render what was removed.
type Change struct {
	// ID uniquely identifies this change for deduplication.
	ID string `json:"id"`

	// Type is the mutation kind.
	Type ChangeType `json:"type"`

	// Assignment is the snapshot at mutation time.
	Assignment Assignment `json:"assignment"`

	// Timestamp is the client-side mutation time.
	Timestamp time.Time `json:"timestamp"`

	// Retries counts delivery attempts made by the retry queue. Not
	// part of the wire format.
	Retries int `json:"-"`
}

// NewChange creates a Change with a fresh id and timestamp.
func NewChange(changeType ChangeType, assignment Assignment) Change {
	return Change{
		ID:         uuid.NewString(),
		Type:       changeType,
		Assignment: assignment,
		Timestamp:  time.Now(),
	}
}
