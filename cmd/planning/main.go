// Copyright (C) 2025 The Shiftwise Workforce Planning Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command planning starts the shift planning server.
//
// It reads configuration from environment variables and serves the
// sync, board, conflict, snapshot, and realtime endpoints.
//
// # Environment Variables
//
//   - PLANNING_PORT: HTTP server port (default: 12340)
//   - PLANNING_SNAPSHOT_DIR: badger directory for board snapshots (default: ./data/snapshots)
//   - PLANNING_DEMANDS_FILE: optional YAML demand table for the per-date board view
//
// # Usage
//
//	# Build
//	go build -o planning ./cmd/planning
//
//	# Run
//	./planning serve
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Philbertano/shiftwise-workforce-planning-sub003/pkg/logging"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logLevel(),
		LogDir:  os.Getenv("PLANNING_LOG_DIR"),
		Service: "planning-server",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

// logLevel maps PLANNING_LOG_LEVEL onto a logging.Level.
func logLevel() logging.Level {
	switch os.Getenv("PLANNING_LOG_LEVEL") {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

var rootCmd = &cobra.Command{
	Use:   "planning",
	Short: "Shift planning server with optimistic sync and realtime collaboration",
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		slog.Warn("Ignoring non-numeric environment variable", "key", key, "value", value)
	}
	return defaultValue
}
