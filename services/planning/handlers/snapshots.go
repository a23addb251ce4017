// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/snapshot"
)

type createSnapshotRequest struct {
	Label     string `json:"label" binding:"required"`
	CreatedBy string `json:"createdBy"`
}

// CreateSnapshot persists the current board as a named snapshot.
func CreateSnapshot(store *BoardStore, snapshots *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSnapshotRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}

		snap, err := snapshots.Save(store.All(), req.Label, req.CreatedBy)
		if err != nil {
			slog.Error("Failed to save snapshot", "label", req.Label, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save snapshot"})
			return
		}
		c.JSON(http.StatusCreated, snap)
	}
}

// ListSnapshots returns snapshot metadata, newest first.
func ListSnapshots(snapshots *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		metas, err := snapshots.List()
		if err != nil {
			slog.Error("Failed to list snapshots", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list snapshots"})
			return
		}
		if metas == nil {
			metas = []snapshot.Meta{}
		}
		c.JSON(http.StatusOK, gin.H{"snapshots": metas})
	}
}

// RestoreSnapshot swaps the board for a stored snapshot.
func RestoreSnapshot(store *BoardStore, snapshots *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		snap, err := snapshots.Load(id)
		if errors.Is(err, snapshot.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "unknown snapshot id"})
			return
		}
		if err != nil {
			slog.Error("Failed to load snapshot", "snapshot_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load snapshot"})
			return
		}

		store.Replace(snap.Assignments)
		slog.Info("Board restored from snapshot",
			"snapshot_id", id,
			"assignments", len(snap.Assignments))
		c.JSON(http.StatusOK, gin.H{"restored": snap.ID, "assignments": len(snap.Assignments)})
	}
}

// DeleteSnapshot removes a stored snapshot.
func DeleteSnapshot(snapshots *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := snapshots.Delete(id); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "unknown snapshot id"})
				return
			}
			slog.Error("Failed to delete snapshot", "snapshot_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete snapshot"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
