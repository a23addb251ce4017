// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"regexp"
	"strings"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/constraints"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// constraintDisplayNames maps the built-in constraint ids to the
// labels planners see as group headings in violation reports.
var constraintDisplayNames = map[string]string{
	constraints.ConstraintAssignmentModel: "Assignment validity",
	constraints.ConstraintSkillMatch:      "Skill match",
	constraints.ConstraintAbsence:         "Absence overlap",
	constraints.ConstraintDoubleBooking:   "Double booking",
	constraints.ConstraintDemandCapacity:  "Demand capacity",
}

// ConstraintDisplayName resolves a constraint id to its display name.
// Unknown ids, custom constraints included, pass through unchanged.
func ConstraintDisplayName(id string) string {
	if name, ok := constraintDisplayNames[id]; ok {
		return name
	}
	return id
}

// EntityDirectory resolves entity ids to display names. Implementations
// typically wrap the planning board's entity context. A nil directory
// or an unresolvable id leaves the raw id in place.
type EntityDirectory interface {
	EmployeeName(id string) (string, bool)
	StationName(id string) (string, bool)
	SkillName(id string) (string, bool)
	DemandLabel(id string) (string, bool)
}

// Violation messages embed entity references as {kind:id} tokens so
// that display names can be resolved at render time rather than at
// detection time.
var tokenPattern = regexp.MustCompile(`\{(employee|station|skill|demand):([^}]+)\}`)

// Humanize substitutes {kind:id} tokens in a message with display
// names from the directory.
func Humanize(message string, dir EntityDirectory) string {
	return tokenPattern.ReplaceAllStringFunc(message, func(token string) string {
		parts := tokenPattern.FindStringSubmatch(token)
		kind, id := parts[1], parts[2]
		if dir == nil {
			return id
		}
		var name string
		var ok bool
		switch kind {
		case "employee":
			name, ok = dir.EmployeeName(id)
		case "station":
			name, ok = dir.StationName(id)
		case "skill":
			name, ok = dir.SkillName(id)
		case "demand":
			name, ok = dir.DemandLabel(id)
		}
		if !ok {
			return id
		}
		return name
	})
}

// HumanizeViolation returns a copy of the violation with its message
// and suggested actions rendered through the directory.
func HumanizeViolation(v datatypes.ConstraintViolation, dir EntityDirectory) datatypes.ConstraintViolation {
	v.Message = Humanize(v.Message, dir)
	if len(v.SuggestedActions) > 0 {
		actions := make([]string, len(v.SuggestedActions))
		for i, a := range v.SuggestedActions {
			actions[i] = Humanize(a, dir)
		}
		v.SuggestedActions = actions
	}
	return v
}

// SeverityIcon returns the glyph planners see next to a violation.
func SeverityIcon(s datatypes.Severity) string {
	switch s {
	case datatypes.SeverityCritical:
		return "⛔"
	case datatypes.SeverityError:
		return "✖"
	case datatypes.SeverityWarning:
		return "⚠"
	case datatypes.SeverityInfo:
		return "ℹ"
	default:
		return "?"
	}
}

// SeverityColor returns the display color name for a severity.
func SeverityColor(s datatypes.Severity) string {
	switch s {
	case datatypes.SeverityCritical:
		return "red"
	case datatypes.SeverityError:
		return "orange"
	case datatypes.SeverityWarning:
		return "yellow"
	case datatypes.SeverityInfo:
		return "blue"
	default:
		return "gray"
	}
}

// FixCategory classifies a suggested action by how it can be carried
// out.
type FixCategory string

const (
	// FixAutomatable means the system could apply the action itself.
	FixAutomatable FixCategory = "automatable"

	// FixManual means a planner has to act outside the system.
	FixManual FixCategory = "manual"
)

var automatableVerbs = []string{"reassign", "swap", "move", "remove", "keep"}
var manualVerbs = []string{"contact", "approve", "review", "escalate"}

// CategorizeFix classifies one suggested action by its leading verb.
// Unrecognized actions default to manual; a wrong "manual" costs a
// click, a wrong "automatable" could rewrite the board.
func CategorizeFix(action string) FixCategory {
	lower := strings.ToLower(action)
	for _, verb := range automatableVerbs {
		if strings.HasPrefix(lower, verb) {
			return FixAutomatable
		}
	}
	for _, verb := range manualVerbs {
		if strings.HasPrefix(lower, verb) {
			return FixManual
		}
	}
	return FixManual
}

// CanAutoResolve reports whether at least one of the violation's
// suggested actions is automatable.
func CanAutoResolve(v datatypes.ConstraintViolation) bool {
	for _, action := range v.SuggestedActions {
		if CategorizeFix(action) == FixAutomatable {
			return true
		}
	}
	return false
}
