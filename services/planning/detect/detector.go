// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detect implements the pre-flight conflict detector that runs
// before a change is admitted to the ledger.
package detect

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// DefaultCapacity is assumed when the capacity provider has no answer
// for a demand. One is the strictest interpretation and surfaces
// over-staffing early; the backend corrects optimistic mistakes.
const DefaultCapacity = 1

// CapacityProvider supplies demand metadata the detector needs. The
// composing application wires it to the demand lookup service.
type CapacityProvider interface {
	// DemandCapacity returns how many employees a demand can absorb.
	// The second return is false when the demand is unknown.
	DemandCapacity(demandID string) (int, bool)

	// DemandDate returns the date a demand is scheduled for. The
	// second return is false when unknown.
	DemandDate(demandID string) (time.Time, bool)
}

// StaticProvider is a map-backed CapacityProvider for tests and for
// servers that preload the demand table.
type StaticProvider struct {
	Demands map[string]datatypes.Demand
}

func (p StaticProvider) DemandCapacity(demandID string) (int, bool) {
	d, ok := p.Demands[demandID]
	if !ok || d.Capacity == 0 {
		return 0, false
	}
	return d.Capacity, true
}

func (p StaticProvider) DemandDate(demandID string) (time.Time, bool) {
	d, ok := p.Demands[demandID]
	if !ok || d.Date.IsZero() {
		return time.Time{}, false
	}
	return d.Date, true
}

// Detector runs synchronous conflict checks against the optimistic
// assignment set before a mutation is accepted locally.
//
// If Check returns conflicts, the caller must not apply the mutation;
// the conflicts go through the resolution protocol first.
type Detector struct {
	capacity CapacityProvider
	logger   *slog.Logger
}

// NewDetector creates a Detector. The provider may be nil, in which
// case every demand falls back to DefaultCapacity and date comparisons
// degrade to demand-id comparisons.
func NewDetector(capacity CapacityProvider, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{capacity: capacity, logger: logger}
}

// Check inspects a candidate change against the current optimistic set
// and returns the conflicts it would introduce. An empty result means
// the change may be applied.
//
// Delete changes never conflict: removing an assignment cannot double
// book or exceed capacity.
func (d *Detector) Check(candidate datatypes.Change, current []datatypes.Assignment) []datatypes.Conflict {
	if candidate.Type == datatypes.ChangeDelete {
		return nil
	}
	a := candidate.Assignment
	if !a.Active() {
		return nil
	}

	var conflicts []datatypes.Conflict
	if c := d.checkDoubleBooking(a, current); c != nil {
		conflicts = append(conflicts, *c)
	}
	if c := d.checkCapacity(a, current); c != nil {
		conflicts = append(conflicts, *c)
	}

	if len(conflicts) > 0 {
		d.logger.Info("pre-flight conflicts detected",
			"assignment_id", a.ID,
			"count", len(conflicts),
		)
	}
	return conflicts
}

// checkDoubleBooking flags any other active assignment binding the same
// employee to a different demand on the same date. When demand dates
// are unknown the demands are conservatively treated as overlapping.
func (d *Detector) checkDoubleBooking(a datatypes.Assignment, current []datatypes.Assignment) *datatypes.Conflict {
	var clashing []string
	for _, other := range current {
		if other.ID == a.ID || !other.Active() {
			continue
		}
		if other.EmployeeID != a.EmployeeID || other.DemandID == a.DemandID {
			continue
		}
		if !d.demandsOverlap(a.DemandID, other.DemandID) {
			continue
		}
		clashing = append(clashing, other.ID)
	}
	if len(clashing) == 0 {
		return nil
	}

	affected := append(clashing, a.ID)
	c := datatypes.NewConflict(
		datatypes.ConflictDoubleBooking,
		affected,
		fmt.Sprintf("{employee:%s} is already assigned to another demand on the same date", a.EmployeeID),
	)
	return &c
}

// checkCapacity compares the active head count on the candidate's
// demand, including the candidate itself, against the demand capacity.
func (d *Detector) checkCapacity(a datatypes.Assignment, current []datatypes.Assignment) *datatypes.Conflict {
	capacity := DefaultCapacity
	if d.capacity != nil {
		if c, ok := d.capacity.DemandCapacity(a.DemandID); ok {
			capacity = c
		}
	}

	occupied := []string{}
	for _, other := range current {
		if other.ID == a.ID || !other.Active() {
			continue
		}
		if other.DemandID == a.DemandID {
			occupied = append(occupied, other.ID)
		}
	}

	if len(occupied)+1 <= capacity {
		return nil
	}

	affected := append(occupied, a.ID)
	c := datatypes.NewConflict(
		datatypes.ConflictCapacityExceeded,
		affected,
		fmt.Sprintf("{demand:%s} would hold %d assignments but its capacity is %d",
			a.DemandID, len(occupied)+1, capacity),
	)
	return &c
}

// demandsOverlap reports whether two demands fall on the same date.
// Unknown dates count as overlapping.
func (d *Detector) demandsOverlap(demandA, demandB string) bool {
	if d.capacity == nil {
		return true
	}
	dateA, okA := d.capacity.DemandDate(demandA)
	dateB, okB := d.capacity.DemandDate(demandB)
	if !okA || !okB {
		return true
	}
	ya, ma, da := dateA.Date()
	yb, mb, db := dateB.Date()
	return ya == yb && ma == mb && da == db
}
