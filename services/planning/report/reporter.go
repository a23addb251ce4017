// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report turns raw constraint violations into grouped,
// filtered, human-readable summaries for planners.
package report

import (
	"sort"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// Summary aggregates a violation set by severity.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
	Blocking   int            `json:"blocking"`
	CanProceed bool           `json:"canProceed"`
}

// GroupByConstraint buckets violations by constraint id, preserving
// the original order within each bucket.
func GroupByConstraint(violations []datatypes.ConstraintViolation) map[string][]datatypes.ConstraintViolation {
	groups := make(map[string][]datatypes.ConstraintViolation)
	for _, v := range violations {
		groups[v.ConstraintID] = append(groups[v.ConstraintID], v)
	}
	return groups
}

// FilterBySeverity keeps only violations of exactly the given severity.
func FilterBySeverity(violations []datatypes.ConstraintViolation, severity datatypes.Severity) []datatypes.ConstraintViolation {
	var out []datatypes.ConstraintViolation
	for _, v := range violations {
		if v.Severity == severity {
			out = append(out, v)
		}
	}
	return out
}

// FilterMinSeverity keeps violations at or above the given severity.
func FilterMinSeverity(violations []datatypes.ConstraintViolation, min datatypes.Severity) []datatypes.ConstraintViolation {
	threshold := min.Rank()
	var out []datatypes.ConstraintViolation
	for _, v := range violations {
		if v.Severity.Rank() >= threshold {
			out = append(out, v)
		}
	}
	return out
}

// SortBySeverity orders violations most severe first. The sort is
// stable so violations of equal severity keep their evaluation order.
// The input slice is not modified.
func SortBySeverity(violations []datatypes.ConstraintViolation) []datatypes.ConstraintViolation {
	out := make([]datatypes.ConstraintViolation, len(violations))
	copy(out, violations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}

// Summarize computes severity counts over a violation set.
func Summarize(violations []datatypes.ConstraintViolation) Summary {
	s := Summary{
		Total:      len(violations),
		BySeverity: make(map[string]int),
		CanProceed: true,
	}
	for _, v := range violations {
		s.BySeverity[string(v.Severity)]++
		if v.Blocking() {
			s.Blocking++
		}
		if v.Severity == datatypes.SeverityCritical {
			s.CanProceed = false
		}
	}
	return s
}
