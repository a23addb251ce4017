// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/constraints"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

func sampleViolations() []datatypes.ConstraintViolation {
	return []datatypes.ConstraintViolation{
		{ConstraintID: "skill-match", Severity: datatypes.SeverityError, Message: "first"},
		{ConstraintID: "demand-capacity", Severity: datatypes.SeverityWarning, Message: "second"},
		{ConstraintID: "double-booking", Severity: datatypes.SeverityCritical, Message: "third"},
		{ConstraintID: "skill-match", Severity: datatypes.SeverityError, Message: "fourth"},
		{ConstraintID: "shift-notes", Severity: datatypes.SeverityInfo, Message: "fifth"},
	}
}

func TestGroupByConstraint(t *testing.T) {
	groups := GroupByConstraint(sampleViolations())

	require.Len(t, groups, 4)
	require.Len(t, groups["skill-match"], 2)
	assert.Equal(t, "first", groups["skill-match"][0].Message)
	assert.Equal(t, "fourth", groups["skill-match"][1].Message)
}

func TestFilterBySeverity(t *testing.T) {
	errs := FilterBySeverity(sampleViolations(), datatypes.SeverityError)
	require.Len(t, errs, 2)
	for _, v := range errs {
		assert.Equal(t, datatypes.SeverityError, v.Severity)
	}
}

func TestFilterMinSeverity(t *testing.T) {
	out := FilterMinSeverity(sampleViolations(), datatypes.SeverityError)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.True(t, v.Blocking())
	}
}

func TestSortBySeverity_StableAndNonDestructive(t *testing.T) {
	in := sampleViolations()
	out := SortBySeverity(in)

	require.Len(t, out, 5)
	assert.Equal(t, datatypes.SeverityCritical, out[0].Severity)
	// Equal severities keep their evaluation order.
	assert.Equal(t, "first", out[1].Message)
	assert.Equal(t, "fourth", out[2].Message)
	assert.Equal(t, datatypes.SeverityInfo, out[4].Severity)

	// Input untouched.
	assert.Equal(t, "first", in[0].Message)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleViolations())

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.BySeverity["error"])
	assert.Equal(t, 1, s.BySeverity["critical"])
	assert.Equal(t, 3, s.Blocking)
	assert.False(t, s.CanProceed)

	empty := Summarize(nil)
	assert.True(t, empty.CanProceed)
	assert.Zero(t, empty.Total)
}

type fakeDirectory struct {
	employees map[string]string
	skills    map[string]string
}

func (d fakeDirectory) EmployeeName(id string) (string, bool) {
	name, ok := d.employees[id]
	return name, ok
}

func (d fakeDirectory) StationName(string) (string, bool) { return "", false }

func (d fakeDirectory) SkillName(id string) (string, bool) {
	name, ok := d.skills[id]
	return name, ok
}

func (d fakeDirectory) DemandLabel(string) (string, bool) { return "", false }

func TestHumanize(t *testing.T) {
	dir := fakeDirectory{
		employees: map[string]string{"emp-1": "Ada Lovelace"},
		skills:    map[string]string{"sk-7": "Welding"},
	}

	msg := Humanize("{employee:emp-1} is missing skill {skill:sk-7} required by {demand:dem-9}", dir)
	assert.Equal(t, "Ada Lovelace is missing skill Welding required by dem-9", msg)
}

func TestHumanize_NilDirectoryStripsTokens(t *testing.T) {
	msg := Humanize("{employee:emp-1} is double booked", nil)
	assert.Equal(t, "emp-1 is double booked", msg)
}

func TestHumanizeViolation(t *testing.T) {
	dir := fakeDirectory{employees: map[string]string{"emp-1": "Ada"}}

	v := datatypes.ConstraintViolation{
		Message:          "{employee:emp-1} is absent",
		SuggestedActions: []string{"Contact {employee:emp-1} about availability"},
	}
	out := HumanizeViolation(v, dir)

	assert.Equal(t, "Ada is absent", out.Message)
	assert.Equal(t, "Contact Ada about availability", out.SuggestedActions[0])
	// Original untouched.
	assert.Equal(t, "{employee:emp-1} is absent", v.Message)
}

func TestSeverityPresentation(t *testing.T) {
	assert.Equal(t, "⛔", SeverityIcon(datatypes.SeverityCritical))
	assert.Equal(t, "red", SeverityColor(datatypes.SeverityCritical))
	assert.Equal(t, "?", SeverityIcon(datatypes.Severity("bogus")))
	assert.Equal(t, "gray", SeverityColor(datatypes.Severity("bogus")))
}

func TestCategorizeFix(t *testing.T) {
	tests := []struct {
		action string
		want   FixCategory
	}{
		{"Reassign dem-1 to a qualified employee", FixAutomatable},
		{"Swap the two assignments", FixAutomatable},
		{"Move surplus employees off dem-2", FixAutomatable},
		{"Contact Ada about availability", FixManual},
		{"Approve the overtime request", FixManual},
		{"Escalate to shift lead", FixManual},
		{"Something unexpected", FixManual},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CategorizeFix(tt.action), tt.action)
	}
}

func TestCanAutoResolve(t *testing.T) {
	v := datatypes.ConstraintViolation{
		SuggestedActions: []string{
			"Contact Ada about availability",
			"Reassign dem-1 to a qualified employee",
		},
	}
	assert.True(t, CanAutoResolve(v))

	v.SuggestedActions = []string{"Contact Ada about availability"}
	assert.False(t, CanAutoResolve(v))

	assert.False(t, CanAutoResolve(datatypes.ConstraintViolation{}))
}

func TestConstraintDisplayName(t *testing.T) {
	assert.Equal(t, "Double booking", ConstraintDisplayName(constraints.ConstraintDoubleBooking))
	assert.Equal(t, "Skill match", ConstraintDisplayName(constraints.ConstraintSkillMatch))
	// Custom constraint ids pass through untouched.
	assert.Equal(t, "night-shift-rest", ConstraintDisplayName("night-shift-rest"))
}
