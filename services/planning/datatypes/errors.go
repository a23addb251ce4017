// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
)

// ValidationError reports a violated assignment or resolution invariant.
//
// Rule is a stable machine-readable identifier; Message is for humans.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Message)
}

// InvalidTransitionError reports a status transition that is not
// reachable from the current status.
type InvalidTransitionError struct {
	From AssignmentStatus
	To   AssignmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// PersistenceErrorType classifies failures surfaced by the sync path.
type PersistenceErrorType string

const (
	// ErrorTypeNetwork is a transport failure. Retryable.
	ErrorTypeNetwork PersistenceErrorType = "network"

	// ErrorTypeValidation is an invariant violation. The caller must
	// correct the input; retrying cannot help.
	ErrorTypeValidation PersistenceErrorType = "validation"

	// ErrorTypeConflict is a concurrent edit requiring resolution. It
	// is not a failure in the usual sense.
	ErrorTypeConflict PersistenceErrorType = "conflict"

	// ErrorTypeServer is a backend-reported error. Retryable only when
	// the backend marks it so.
	ErrorTypeServer PersistenceErrorType = "server"
)

// PersistenceError is the failure taxonomy surfaced to callers of the
// persistence service.
type PersistenceError struct {
	// Type classifies the failure.
	Type PersistenceErrorType `json:"type"`

	// Message describes the failure.
	Message string `json:"message"`

	// Retryable indicates whether automatic retry may succeed.
	Retryable bool `json:"retryable"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport failure as a retryable error.
func NewNetworkError(message string, err error) *PersistenceError {
	return &PersistenceError{Type: ErrorTypeNetwork, Message: message, Retryable: true, Err: err}
}

// NewValidationError wraps an invariant violation. Never retryable.
func NewValidationError(message string, err error) *PersistenceError {
	return &PersistenceError{Type: ErrorTypeValidation, Message: message, Retryable: false, Err: err}
}

// NewConflictError marks a concurrent edit needing resolution.
func NewConflictError(message string, err error) *PersistenceError {
	return &PersistenceError{Type: ErrorTypeConflict, Message: message, Retryable: false, Err: err}
}

// NewServerError wraps a backend-reported failure.
func NewServerError(message string, retryable bool, err error) *PersistenceError {
	return &PersistenceError{Type: ErrorTypeServer, Message: message, Retryable: retryable, Err: err}
}
