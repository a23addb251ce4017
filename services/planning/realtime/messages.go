// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package realtime maintains the websocket channel that mirrors
// planning changes between collaborating clients.
package realtime

import (
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// MessageType discriminates realtime payloads.
type MessageType string

const (
	// MessageAuth is the first frame after connecting; it identifies
	// the user to the hub.
	MessageAuth MessageType = "auth"

	// MessageAssignmentChange mirrors one ledger change to peers.
	MessageAssignmentChange MessageType = "assignment_change"

	// MessageConflictDetected announces a newly raised conflict.
	MessageConflictDetected MessageType = "conflict_detected"

	// MessageConflictResolved announces a peer-applied resolution.
	MessageConflictResolved MessageType = "conflict_resolved"

	// MessageUserJoined announces a peer joining the board.
	MessageUserJoined MessageType = "user_joined"

	// MessageUserLeft announces a peer leaving the board.
	MessageUserLeft MessageType = "user_left"
)

// Message is one frame on the realtime channel. The payload fields
// matching Type are set, the rest are omitted.
type Message struct {
	Type MessageType `json:"type"`

	// SenderID is the originating user. Clients drop their own echoes.
	SenderID string `json:"senderId,omitempty"`

	// Change carries the payload of assignment_change frames.
	Change *datatypes.Change `json:"change,omitempty"`

	// Conflict carries the payload of conflict_detected frames.
	Conflict *datatypes.Conflict `json:"conflict,omitempty"`

	// ConflictID and Resolution carry the payload of conflict_resolved
	// frames.
	ConflictID string                `json:"conflictId,omitempty"`
	Resolution *datatypes.Resolution `json:"resolution,omitempty"`

	// UserID carries the subject of presence messages.
	UserID string `json:"userId,omitempty"`

	SentAt time.Time `json:"sentAt,omitempty"`
}
