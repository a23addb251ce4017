// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

// ConflictRegistry remembers the conflicts handed back to clients so
// the resolve endpoint can check a resolution against the conflict it
// answers.
//
// # Thread Safety
//
// Safe for concurrent use.
type ConflictRegistry struct {
	mu        sync.RWMutex
	conflicts map[string]datatypes.Conflict
}

// NewConflictRegistry creates an empty registry.
func NewConflictRegistry() *ConflictRegistry {
	return &ConflictRegistry{conflicts: make(map[string]datatypes.Conflict)}
}

// Record stores a batch of open conflicts.
func (r *ConflictRegistry) Record(conflicts []datatypes.Conflict) {
	r.mu.Lock()
	for _, c := range conflicts {
		r.conflicts[c.ID] = c
	}
	r.mu.Unlock()
}

// Get looks up one open conflict.
func (r *ConflictRegistry) Get(id string) (datatypes.Conflict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conflicts[id]
	return c, ok
}

// Close removes a settled conflict.
func (r *ConflictRegistry) Close(id string) {
	r.mu.Lock()
	delete(r.conflicts, id)
	r.mu.Unlock()
}

// Open returns the number of unresolved conflicts.
func (r *ConflictRegistry) Open() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conflicts)
}

// resolveRequest is the envelope clients POST to settle a conflict:
// the resolution object plus the resolving user.
type resolveRequest struct {
	Resolution resolvePayload `json:"resolution" binding:"required"`
	UserID     string         `json:"userId"`
}

type resolvePayload struct {
	Action             datatypes.ResolutionAction `json:"action" binding:"required,resolution_action"`
	ResolvedAssignment *datatypes.Assignment      `json:"resolvedAssignment"`
}

// SetupValidation installs the custom binding validations on gin's
// default binding engine. Call once before serving.
func SetupValidation() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	return RegisterValidations(v)
}

// RegisterValidations installs the custom binding validations used by
// the planning handlers.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("resolution_action", func(fl validator.FieldLevel) bool {
		switch datatypes.ResolutionAction(fl.Field().String()) {
		case datatypes.ResolveAcceptLocal, datatypes.ResolveAcceptRemote,
			datatypes.ResolveMerge, datatypes.ResolveManual:
			return true
		}
		return false
	})
}

// ResolveConflict settles one open conflict.
//
// # Description
//
// Validates the resolution against the recorded conflict, applies the
// settled snapshot to the board for accept actions, closes the
// conflict, and relays the outcome to connected planners.
func ResolveConflict(store *BoardStore, registry *ConflictRegistry, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conflictID := c.Param("id")
		conflict, ok := registry.Get(conflictID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "unknown conflict id"})
			return
		}

		var req resolveRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}

		res := datatypes.Resolution{
			Action:             req.Resolution.Action,
			ResolvedAssignment: req.Resolution.ResolvedAssignment,
			UserID:             req.UserID,
		}
		if err := res.Validate(conflict.Type); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		switch res.Action {
		case datatypes.ResolveAcceptLocal, datatypes.ResolveAcceptRemote:
			store.Put(*res.ResolvedAssignment)
			if hub != nil {
				hub.RelayChange(datatypes.NewChange(datatypes.ChangeUpdate, *res.ResolvedAssignment))
			}
		case datatypes.ResolveMerge:
			if res.ResolvedAssignment != nil {
				store.Put(*res.ResolvedAssignment)
				if hub != nil {
					hub.RelayChange(datatypes.NewChange(datatypes.ChangeUpdate, *res.ResolvedAssignment))
				}
			}
		case datatypes.ResolveManual:
			// The caller follows up with a corrective mutation.
		}

		registry.Close(conflictID)
		slog.Info("Conflict resolved",
			"conflict_id", conflictID,
			"action", res.Action,
			"user_id", res.UserID)
		c.Status(http.StatusNoContent)
	}
}
