// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the planning
// persistence service.
package handlers

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// BoardStore is the authoritative server-side assignment set.
//
// # Description
//
// Clients work optimistically and push change batches. The store
// detects concurrent modifications by comparing UpdatedAt stamps: a
// change based on an older version of an assignment that meanwhile
// moved on is rejected as a conflict carrying both snapshots, so the
// client can run its resolution protocol.
//
// # Thread Safety
//
// Safe for concurrent use.
type BoardStore struct {
	mu          sync.RWMutex
	assignments map[string]datatypes.Assignment

	// demandDates maps demand ids to their calendar date for the
	// per-date board view. Assignments whose demand is unknown show up
	// on every date rather than silently vanishing.
	demandDates map[string]time.Time
}

// NewBoardStore creates an empty store.
func NewBoardStore() *BoardStore {
	return &BoardStore{
		assignments: make(map[string]datatypes.Assignment),
		demandDates: make(map[string]time.Time),
	}
}

// SetDemandDate registers the calendar date of a demand.
func (s *BoardStore) SetDemandDate(demandID string, date time.Time) {
	s.mu.Lock()
	s.demandDates[demandID] = date
	s.mu.Unlock()
}

// ApplyChanges applies a client batch and returns the conflicts it
// produced. Non-conflicting changes in the batch are applied even when
// others conflict; the client resolves the remainder.
func (s *BoardStore) ApplyChanges(changes []datatypes.Change) []datatypes.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []datatypes.Conflict
	for _, change := range changes {
		incoming := change.Assignment

		if change.Type == datatypes.ChangeDelete {
			delete(s.assignments, incoming.ID)
			continue
		}

		current, exists := s.assignments[incoming.ID]
		if exists && current.UpdatedAt.After(incoming.UpdatedAt) {
			local := incoming
			remote := current
			c := datatypes.NewConflict(
				datatypes.ConflictConcurrentModify,
				[]string{incoming.ID},
				fmt.Sprintf("assignment %s was modified by someone else", incoming.ID),
			)
			c.Local = &local
			c.Remote = &remote
			conflicts = append(conflicts, c)
			continue
		}
		s.assignments[incoming.ID] = incoming
	}
	return conflicts
}

// Put stores an assignment unconditionally. Used when a resolution
// settles on a snapshot.
func (s *BoardStore) Put(a datatypes.Assignment) {
	s.mu.Lock()
	s.assignments[a.ID] = a
	s.mu.Unlock()
}

// Get returns one assignment.
func (s *BoardStore) Get(id string) (datatypes.Assignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	return a, ok
}

// ForDate returns the assignments on the given calendar date, sorted
// by id for stable output. Assignments on demands without a known date
// are always included.
func (s *BoardStore) ForDate(date time.Time) []datatypes.Assignment {
	y, m, d := date.UTC().Date()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []datatypes.Assignment
	for _, a := range s.assignments {
		when, known := s.demandDates[a.DemandID]
		if known {
			wy, wm, wd := when.UTC().Date()
			if wy != y || wm != m || wd != d {
				continue
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every stored assignment, sorted by id.
func (s *BoardStore) All() []datatypes.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]datatypes.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps the whole board for the given set. Used by snapshot
// restore.
func (s *BoardStore) Replace(assignments []datatypes.Assignment) {
	s.mu.Lock()
	s.assignments = make(map[string]datatypes.Assignment, len(assignments))
	for _, a := range assignments {
		s.assignments[a.ID] = a
	}
	s.mu.Unlock()
}
