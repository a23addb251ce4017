// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package constraints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// Built-in constraint ids.
const (
	ConstraintAssignmentModel = "assignment-model"
	ConstraintSkillMatch      = "skill-match"
	ConstraintAbsence         = "absence"
	ConstraintDoubleBooking   = "double-booking"
	ConstraintDemandCapacity  = "demand-capacity"
)

// ============================================================================
// Assignment model invariants
// ============================================================================

// assignmentModelConstraint re-checks the assignment value invariants
// (score range, low-score explanation, status) so that records that
// slipped past entry validation still surface as violations.
type assignmentModelConstraint struct{}

func (c *assignmentModelConstraint) ID() string { return ConstraintAssignmentModel }

func (c *assignmentModelConstraint) Severity() datatypes.Severity { return datatypes.SeverityError }

func (c *assignmentModelConstraint) Evaluate(_ context.Context, a datatypes.Assignment, _ *Context) ([]datatypes.ConstraintViolation, error) {
	verr := a.Validate()
	if verr == nil {
		return nil, nil
	}
	msg := verr.Error()
	var ve *datatypes.ValidationError
	if errors.As(verr, &ve) {
		msg = ve.Message
	}
	return []datatypes.ConstraintViolation{{
		ConstraintID:        c.ID(),
		Severity:            c.Severity(),
		Message:             msg,
		AffectedAssignments: []string{a.ID},
		SuggestedActions:    []string{"Review the assignment details"},
		Timestamp:           time.Now(),
	}}, nil
}

// ============================================================================
// Skill match
// ============================================================================

// skillMatchConstraint flags assignments where the employee lacks a
// skill the demand requires. Unknown employees or demands are skipped;
// the engine cannot judge what it cannot see.
type skillMatchConstraint struct{}

func (c *skillMatchConstraint) ID() string { return ConstraintSkillMatch }

func (c *skillMatchConstraint) Severity() datatypes.Severity { return datatypes.SeverityError }

func (c *skillMatchConstraint) Evaluate(_ context.Context, a datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error) {
	if !a.Active() {
		return nil, nil
	}
	demand, ok := vctx.Demands[a.DemandID]
	if !ok || len(demand.RequiredSkills) == 0 {
		return nil, nil
	}
	employee, ok := vctx.Employees[a.EmployeeID]
	if !ok {
		return nil, nil
	}

	held := make(map[string]bool, len(employee.Skills))
	for _, s := range employee.Skills {
		held[s] = true
	}

	var out []datatypes.ConstraintViolation
	for _, required := range demand.RequiredSkills {
		if held[required] {
			continue
		}
		out = append(out, datatypes.ConstraintViolation{
			ConstraintID: c.ID(),
			Severity:     c.Severity(),
			Message: fmt.Sprintf("{employee:%s} is missing skill {skill:%s} required by {demand:%s}",
				a.EmployeeID, required, a.DemandID),
			AffectedAssignments: []string{a.ID},
			SuggestedActions: []string{
				fmt.Sprintf("Reassign {demand:%s} to a qualified employee", a.DemandID),
				fmt.Sprintf("Review training for {employee:%s}", a.EmployeeID),
			},
			Timestamp: time.Now(),
		})
	}
	return out, nil
}

// ============================================================================
// Absence
// ============================================================================

// absenceConstraint flags assignments that place an employee on a day
// they are recorded absent.
type absenceConstraint struct{}

func (c *absenceConstraint) ID() string { return ConstraintAbsence }

func (c *absenceConstraint) Severity() datatypes.Severity { return datatypes.SeverityError }

func (c *absenceConstraint) Evaluate(_ context.Context, a datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error) {
	if !a.Active() {
		return nil, nil
	}
	demand, ok := vctx.Demands[a.DemandID]
	if !ok {
		return nil, nil
	}
	for _, absence := range vctx.Absences {
		if absence.EmployeeID != a.EmployeeID {
			continue
		}
		if !sameDay(absence.Date, demand.Date) {
			continue
		}
		return []datatypes.ConstraintViolation{{
			ConstraintID: c.ID(),
			Severity:     c.Severity(),
			Message: fmt.Sprintf("{employee:%s} is absent on %s but assigned to {demand:%s}",
				a.EmployeeID, demand.Date.Format("2006-01-02"), a.DemandID),
			AffectedAssignments: []string{a.ID},
			SuggestedActions: []string{
				fmt.Sprintf("Reassign {demand:%s} to an available employee", a.DemandID),
				fmt.Sprintf("Contact {employee:%s} about availability", a.EmployeeID),
			},
			Timestamp: time.Now(),
		}}, nil
	}
	return nil, nil
}

// ============================================================================
// Double booking (batch)
// ============================================================================

// doubleBookingConstraint finds employees assigned to more than one
// demand on the same date. One violation is produced per employee and
// date, listing every clashing assignment.
type doubleBookingConstraint struct{}

func (c *doubleBookingConstraint) ID() string { return ConstraintDoubleBooking }

func (c *doubleBookingConstraint) Severity() datatypes.Severity { return datatypes.SeverityCritical }

func (c *doubleBookingConstraint) EvaluateBatch(_ context.Context, assignments []datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error) {
	type slot struct {
		employeeID string
		day        string
	}

	groups := make(map[slot][]datatypes.Assignment)
	var order []slot
	for _, a := range assignments {
		if !a.Active() {
			continue
		}
		day := "unknown"
		if demand, ok := vctx.Demands[a.DemandID]; ok {
			day = demand.Date.Format("2006-01-02")
		}
		key := slot{employeeID: a.EmployeeID, day: day}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], a)
	}

	var out []datatypes.ConstraintViolation
	for _, key := range order {
		clash := groups[key]
		if len(clash) < 2 {
			continue
		}
		// Same demand twice is a duplicate record, not a double booking.
		distinct := make(map[string]bool)
		affected := make([]string, 0, len(clash))
		for _, a := range clash {
			distinct[a.DemandID] = true
			affected = append(affected, a.ID)
		}
		if len(distinct) < 2 {
			continue
		}
		out = append(out, datatypes.ConstraintViolation{
			ConstraintID: c.ID(),
			Severity:     c.Severity(),
			Message: fmt.Sprintf("{employee:%s} is booked on %d demands on %s",
				key.employeeID, len(distinct), key.day),
			AffectedAssignments: affected,
			SuggestedActions: []string{
				fmt.Sprintf("Keep one assignment for {employee:%s} and reassign the rest", key.employeeID),
			},
			Timestamp: time.Now(),
		})
	}
	return out, nil
}

// ============================================================================
// Demand capacity (batch)
// ============================================================================

// demandCapacityConstraint flags demands staffed beyond their
// capacity. Demands without a known capacity fall back to one slot.
type demandCapacityConstraint struct{}

func (c *demandCapacityConstraint) ID() string { return ConstraintDemandCapacity }

func (c *demandCapacityConstraint) Severity() datatypes.Severity { return datatypes.SeverityWarning }

func (c *demandCapacityConstraint) EvaluateBatch(_ context.Context, assignments []datatypes.Assignment, vctx *Context) ([]datatypes.ConstraintViolation, error) {
	groups := make(map[string][]datatypes.Assignment)
	var order []string
	for _, a := range assignments {
		if !a.Active() {
			continue
		}
		if _, seen := groups[a.DemandID]; !seen {
			order = append(order, a.DemandID)
		}
		groups[a.DemandID] = append(groups[a.DemandID], a)
	}

	var out []datatypes.ConstraintViolation
	for _, demandID := range order {
		staffed := groups[demandID]
		capacity := 1
		if demand, ok := vctx.Demands[demandID]; ok && demand.Capacity > 0 {
			capacity = demand.Capacity
		}
		if len(staffed) <= capacity {
			continue
		}
		affected := make([]string, 0, len(staffed))
		for _, a := range staffed {
			affected = append(affected, a.ID)
		}
		out = append(out, datatypes.ConstraintViolation{
			ConstraintID: c.ID(),
			Severity:     c.Severity(),
			Message: fmt.Sprintf("{demand:%s} is staffed with %d employees but has capacity %d",
				demandID, len(staffed), capacity),
			AffectedAssignments: affected,
			SuggestedActions: []string{
				fmt.Sprintf("Move surplus employees off {demand:%s}", demandID),
			},
			Timestamp: time.Now(),
		})
	}
	return out, nil
}

// sameDay compares two timestamps by calendar date in UTC.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

var (
	_ Constraint      = (*assignmentModelConstraint)(nil)
	_ Constraint      = (*skillMatchConstraint)(nil)
	_ Constraint      = (*absenceConstraint)(nil)
	_ BatchConstraint = (*doubleBookingConstraint)(nil)
	_ BatchConstraint = (*demandCapacityConstraint)(nil)
)
