// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the planning HTTP surface onto a gin router.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/handlers"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/snapshot"
)

// Deps carries the shared state the planning routes close over.
type Deps struct {
	Store     *handlers.BoardStore
	Registry  *handlers.ConflictRegistry
	Snapshots *snapshot.Store
	Hub       *handlers.Hub

	// Metrics is the registry exposed on /metrics. Nil falls back to
	// the default registry.
	Metrics *prometheus.Registry
}

// SetupRoutes registers the planning endpoints.
func SetupRoutes(router *gin.Engine, deps Deps) error {
	if err := handlers.SetupValidation(); err != nil {
		return err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	var metricsHandler http.Handler
	if deps.Metrics != nil {
		metricsHandler = promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	planning := router.Group("/planning")
	{
		planning.POST("/sync", handlers.SyncChanges(deps.Store, deps.Registry, deps.Hub))
		planning.GET("/data/:date", handlers.GetBoard(deps.Store))
		planning.POST("/conflicts/:id/resolve", handlers.ResolveConflict(deps.Store, deps.Registry, deps.Hub))
		planning.GET("/ws", handlers.ServeWS(deps.Hub))

		snapshots := planning.Group("/snapshots")
		{
			snapshots.POST("", handlers.CreateSnapshot(deps.Store, deps.Snapshots))
			snapshots.GET("", handlers.ListSnapshots(deps.Snapshots))
			snapshots.POST("/:id/restore", handlers.RestoreSnapshot(deps.Store, deps.Snapshots))
			snapshots.DELETE("/:id", handlers.DeleteSnapshot(deps.Snapshots))
		}
	}
	return nil
}
