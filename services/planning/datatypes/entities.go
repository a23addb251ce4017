// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// The entity types below mirror what the external CRUD services expose.
// The planning engine treats them as read-only context for constraint
// evaluation and message generation; it never mutates them.

// Employee is a workforce member.
type Employee struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Skills []string `json:"skills,omitempty"`
}

// Demand is one staffing need on a station for a date.
type Demand struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	StationID      string    `json:"stationId"`
	RequiredSkills []string  `json:"requiredSkills,omitempty"`

	// Capacity is how many employees the demand can absorb. Zero means
	// unknown; consumers fall back to a conservative default.
	Capacity int `json:"capacity,omitempty"`
}

// Station is a production station.
type Station struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// Skill is a qualification employees can hold.
type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Absence marks an employee as unavailable on a date.
type Absence struct {
	EmployeeID string    `json:"employeeId"`
	Date       time.Time `json:"date"`
	Reason     string    `json:"reason,omitempty"`
}

// ShiftTemplate describes a recurring shift window.
type ShiftTemplate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}
