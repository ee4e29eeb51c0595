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

// Package config manages netstage engine configuration and its persistence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultConfigBasePath = "/etc/netstage"
	configFileName        = "engine"
)

// Engine holds the tunable configuration of the staging and apply engine.
type Engine struct {
	// DatabasePath is the SQLite database holding bridges, interfaces,
	// pending changes, and snapshots.
	DatabasePath string `json:"database_path"`

	// VerifyTarget is an optional control-plane address that must stay
	// reachable after an apply. When empty, verification pings the
	// gateways referenced by the applied configurations.
	VerifyTarget string `json:"verify_target,omitempty"`

	// VerifyTimeoutSeconds bounds the whole verification phase. A broken
	// apply can make connectivity checks hang, so this is enforced with a
	// deadline rather than trusted to the pinger.
	VerifyTimeoutSeconds int `json:"verify_timeout_seconds"`

	// PingCount is the number of echo requests per verification target.
	PingCount int `json:"ping_count"`

	// SnapshotKeep is how many resolved snapshots to retain after a
	// successful apply.
	SnapshotKeep int `json:"snapshot_keep"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file,omitempty"`
}

// Default returns the engine configuration used when no config file exists.
func Default() *Engine {
	return &Engine{
		DatabasePath:         "/var/lib/netstage/netstage.db",
		VerifyTimeoutSeconds: 15,
		PingCount:            3,
		SnapshotKeep:         10,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// GetConfigDir returns the configuration directory path.
// Checks NETSTAGE_CONFIG_DIR environment variable, falls back to /etc/netstage
func GetConfigDir() string {
	if dir := os.Getenv("NETSTAGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return defaultConfigBasePath
}

// Load reads the engine configuration from disk. A missing file is not an
// error: defaults are returned so a fresh install works without setup.
func Load() (*Engine, error) {
	cfg := Default()
	if err := loadJSON(configFileName, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save persists the engine configuration with a backup and an atomic write.
func Save(cfg *Engine) error {
	return saveJSON(configFileName, cfg)
}

// loadJSON loads configuration for a given namespace from the config file.
// The config parameter should be a pointer to the config struct to unmarshal into
func loadJSON(namespace string, config interface{}) error {
	path := filepath.Join(GetConfigDir(), namespace+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s config: %w", namespace, err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		// Provide more helpful error message for JSON syntax errors
		if syntaxErr, ok := err.(*json.SyntaxError); ok {
			line, col := getLineCol(data, syntaxErr.Offset)
			return fmt.Errorf("failed to parse %s config at %s line %d, column %d: %w",
				namespace, path, line, col, err)
		}
		return fmt.Errorf("failed to parse %s config: %w", namespace, err)
	}

	return nil
}

// getLineCol calculates the line and column number for a byte offset in JSON data
func getLineCol(data []byte, offset int64) (line, col int) {
	line = 1
	col = 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return
}

// saveJSON saves configuration for a given namespace to the config file.
// Automatically creates backups and uses atomic writes
func saveJSON(namespace string, config interface{}) error {
	dir := GetConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, namespace+".json")

	// Create backup if file exists
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
		if err := copyFile(path, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s config: %w", namespace, err)
	}

	// Write atomically (temp file + rename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0600)
}
