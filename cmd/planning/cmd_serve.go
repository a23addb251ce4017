// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/handlers"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/routes"
	"github.com/Philbertano/shiftwise-workforce-planning-sub003/services/planning/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the planning server",
	RunE:  runServe,
}

// demandFile is the YAML shape of the optional demand table.
type demandFile struct {
	Demands []demandEntry `yaml:"demands"`
}

type demandEntry struct {
	ID   string    `yaml:"id"`
	Date time.Time `yaml:"date"`
}

func runServe(cmd *cobra.Command, args []string) error {
	port := getEnvInt("PLANNING_PORT", 12340)
	snapshotDir := getEnvString("PLANNING_SNAPSHOT_DIR", "./data/snapshots")
	demandsFile := os.Getenv("PLANNING_DEMANDS_FILE")

	store := handlers.NewBoardStore()
	if demandsFile != "" {
		if err := loadDemandTable(store, demandsFile); err != nil {
			return fmt.Errorf("load demand table: %w", err)
		}
	}

	snapshots, err := snapshot.Open(snapshot.DefaultConfig(snapshotDir))
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer snapshots.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := gin.New()
	router.Use(gin.Recovery())
	if err := routes.SetupRoutes(router, routes.Deps{
		Store:     store,
		Registry:  handlers.NewConflictRegistry(),
		Snapshots: snapshots,
		Hub:       handlers.NewHub(),
		Metrics:   registry,
	}); err != nil {
		return fmt.Errorf("setup routes: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Planning server listening", "port", port, "snapshot_dir", snapshotDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down planning server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadDemandTable seeds the board store with demand dates so the
// per-date view can filter.
func loadDemandTable(store *handlers.BoardStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file demandFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}
	for _, d := range file.Demands {
		if d.ID == "" || d.Date.IsZero() {
			continue
		}
		store.SetDemandDate(d.ID, d.Date)
	}
	slog.Info("Loaded demand table", "path", path, "demands", len(file.Demands))
	return nil
}
