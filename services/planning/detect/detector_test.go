// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detect

import (
	"testing"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shiftDate = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func provider() StaticProvider {
	return StaticProvider{Demands: map[string]datatypes.Demand{
		"d1": {ID: "d1", Date: shiftDate, Capacity: 2},
		"d2": {ID: "d2", Date: shiftDate, Capacity: 1},
		"d3": {ID: "d3", Date: shiftDate.AddDate(0, 0, 1), Capacity: 1},
	}}
}

func assignment(t *testing.T, id, demandID, employeeID string, score int) datatypes.Assignment {
	t.Helper()
	a, err := datatypes.NewAssignment(id, demandID, employeeID, score)
	require.NoError(t, err)
	return a
}

func TestCheck_CleanChange(t *testing.T) {
	d := NewDetector(provider(), nil)
	change := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a1", "d1", "e1", 85))

	assert.Empty(t, d.Check(change, nil))
}

func TestCheck_DoubleBooking(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "d1", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d2", "e1", 70))

	conflicts := d.Check(candidate, []datatypes.Assignment{existing})
	require.Len(t, conflicts, 1)
	assert.Equal(t, datatypes.ConflictDoubleBooking, conflicts[0].Type)
	assert.ElementsMatch(t, []string{"a1", "a2"}, conflicts[0].AffectedAssignments)
}

func TestCheck_DifferentDatesDoNotDoubleBook(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "d1", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d3", "e1", 70))

	assert.Empty(t, d.Check(candidate, []datatypes.Assignment{existing}))
}

func TestCheck_RejectedAssignmentsAreIgnored(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "d1", "e1", 85)
	rejected, err := existing.WithStatus(datatypes.StatusRejected)
	require.NoError(t, err)

	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d2", "e1", 70))
	assert.Empty(t, d.Check(candidate, []datatypes.Assignment{rejected}))
}

func TestCheck_UnknownDatesAreConservative(t *testing.T) {
	// No provider: demands on unknown dates are assumed to overlap.
	d := NewDetector(nil, nil)

	existing := assignment(t, "a1", "d1", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d2", "e1", 70))

	conflicts := d.Check(candidate, []datatypes.Assignment{existing})
	require.Len(t, conflicts, 1)
	assert.Equal(t, datatypes.ConflictDoubleBooking, conflicts[0].Type)
}

func TestCheck_CapacityExceeded(t *testing.T) {
	d := NewDetector(provider(), nil)

	// d2 has capacity 1 and is already occupied.
	existing := assignment(t, "a1", "d2", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d2", "e2", 70))

	conflicts := d.Check(candidate, []datatypes.Assignment{existing})
	require.Len(t, conflicts, 1)
	assert.Equal(t, datatypes.ConflictCapacityExceeded, conflicts[0].Type)
	assert.ElementsMatch(t, []string{"a1", "a2"}, conflicts[0].AffectedAssignments)
}

func TestCheck_CapacityWithHeadroom(t *testing.T) {
	d := NewDetector(provider(), nil)

	// d1 has capacity 2.
	existing := assignment(t, "a1", "d1", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "d1", "e2", 70))

	assert.Empty(t, d.Check(candidate, []datatypes.Assignment{existing}))
}

func TestCheck_UnknownDemandDefaultsToCapacityOne(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "dX", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeAdd, assignment(t, "a2", "dX", "e2", 70))

	conflicts := d.Check(candidate, []datatypes.Assignment{existing})
	require.Len(t, conflicts, 1)
	assert.Equal(t, datatypes.ConflictCapacityExceeded, conflicts[0].Type)
}

func TestCheck_DeleteBypassesDetection(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "d2", "e1", 85)
	candidate := datatypes.NewChange(datatypes.ChangeDelete, assignment(t, "a2", "d2", "e1", 70))

	assert.Empty(t, d.Check(candidate, []datatypes.Assignment{existing}))
}

func TestCheck_UpdateOfSameAssignmentDoesNotSelfConflict(t *testing.T) {
	d := NewDetector(provider(), nil)

	existing := assignment(t, "a1", "d2", "e1", 85)
	updated, err := existing.WithScore(60, "")
	require.NoError(t, err)
	candidate := datatypes.NewChange(datatypes.ChangeUpdate, updated)

	assert.Empty(t, d.Check(candidate, []datatypes.Assignment{existing}))
}
