// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/datatypes"
)

type syncRequest struct {
	Changes []datatypes.Change `json:"changes" binding:"required"`
}

type syncResponse struct {
	Conflicts []datatypes.Conflict `json:"conflicts"`
}

// SyncChanges accepts an optimistic change batch from a client.
//
// # Description
//
// Applies every non-conflicting change to the board and reports the
// ones that collided with a newer server-side version. A batch with
// collisions answers 409 so the client enters conflict resolution;
// the non-conflicting part of the batch is still applied.
func SyncChanges(store *BoardStore, registry *ConflictRegistry, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}

		for _, change := range req.Changes {
			if change.Type == datatypes.ChangeDelete {
				continue
			}
			if err := change.Assignment.Validate(); err != nil {
				slog.Warn("Rejecting invalid assignment in sync batch",
					"assignment_id", change.Assignment.ID,
					"error", err)
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
		}

		conflicts := store.ApplyChanges(req.Changes)
		if len(conflicts) > 0 {
			registry.Record(conflicts)
			slog.Info("Sync batch produced conflicts",
				"changes", len(req.Changes),
				"conflicts", len(conflicts))
			c.JSON(http.StatusConflict, syncResponse{Conflicts: conflicts})
			return
		}

		if hub != nil {
			for _, change := range req.Changes {
				hub.RelayChange(change)
			}
		}
		c.JSON(http.StatusOK, syncResponse{Conflicts: []datatypes.Conflict{}})
	}
}
