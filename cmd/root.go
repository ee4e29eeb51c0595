// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

// Package cmd implements the CLI commands for netstage using cobra.
// It provides the root command structure and version management.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/we-are-mono/netstage/config"
	"github.com/we-are-mono/netstage/engine"
	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/system"
)

// Version is the application version string.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "netstage",
	Short: "Netstage - staged network configuration with atomic apply",
	Long: `Netstage stages bridge and interface changes and applies them atomically.

Every apply captures a snapshot first; a failed step or lost connectivity
rolls the system back to it.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("Netstage v%s (built: %s)\n", Version, BuildTime))
}

// Execute runs the root command and handles any errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion updates the version and build time for display in help and version output.
func SetVersion(version, buildTime string) {
	Version = version
	BuildTime = buildTime
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("Netstage v%s (built: %s)\n", version, buildTime))
}

// exitWithError is a helper function that exits with code 1.
// It can be overridden in tests to avoid actual exit.
var exitWithError = func() {
	os.Exit(1)
}

// runtime bundles everything a command needs. Commands construct it, use it,
// and close it; nothing global holds a database handle.
type runtime struct {
	cfg         *config.Engine
	store       *store.Store
	nm          *system.NetworkManager
	ledger      *engine.Ledger
	coordinator *engine.Coordinator
	applier     *engine.Applier
}

func (r *runtime) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

// openRuntime loads configuration, initializes logging, opens the store, and
// wires the engine.
func openRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	backends := []logger.Backend{logger.NewConsoleBackend(cfg.LogFormat)}
	if cfg.LogFile != "" {
		fb, err := logger.NewFileBackend(cfg.LogFile, cfg.LogFormat)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		backends = append(backends, fb)
	}
	logger.Init(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "netstage",
	}, backends)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	nm := system.NewDefaultNetworkManager()
	coordinator := engine.NewCoordinator(st, nm)
	checker := engine.NewPingChecker(cfg.PingCount, 5*time.Second)
	applier := engine.NewApplier(st, nm, coordinator, checker, cfg)

	return &runtime{
		cfg:         cfg,
		store:       st,
		nm:          nm,
		ledger:      engine.NewLedger(st),
		coordinator: coordinator,
		applier:     applier,
	}, nil
}
