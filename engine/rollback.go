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

package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/system"
	"github.com/we-are-mono/netstage/types"
)

// Coordinator captures pre-apply snapshots and restores them. Restore is
// best-effort per link: one failed link does not stop the others.
type Coordinator struct {
	store *store.Store
	nm    *system.NetworkManager
}

// NewCoordinator creates a rollback coordinator.
func NewCoordinator(st *store.Store, nm *system.NetworkManager) *Coordinator {
	return &Coordinator{store: st, nm: nm}
}

// RestoreResult reports the per-link outcome of a restore.
type RestoreResult struct {
	SnapshotID string
	Restored   []string
	Failures   map[string]error
}

// Err returns a RestoreError when any link failed, nil otherwise.
func (r *RestoreResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &RestoreError{Failures: r.Failures}
}

// Capture records the current network state and persists it as the rollback
// target for the apply about to run.
func (c *Coordinator) Capture(scope string) (*types.Snapshot, error) {
	links, err := c.nm.CaptureLinkStates()
	if err != nil {
		return nil, fmt.Errorf("capture link states: %w", err)
	}

	snap := &types.Snapshot{
		ID:        uuid.New().String(),
		Scope:     scope,
		Links:     links,
		Status:    types.SnapshotActive,
		CreatedAt: time.Now(),
	}

	// Route table capture is forensic, not required for restore.
	if table, err := c.nm.ReadRouteTable(); err == nil {
		snap.RouteTable = table
	}

	if err := c.store.SaveSnapshot(snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	logger.Info("Captured network snapshot",
		logger.Field{Key: "snapshot_id", Value: snap.ID},
		logger.Field{Key: "links", Value: len(links)})
	return snap, nil
}

// Restore converges the system back to the snapshot. Links created since the
// capture are removed, links in the capture are restored field by field.
// Every link is attempted; failures are collected, not fatal.
func (c *Coordinator) Restore(snap *types.Snapshot) *RestoreResult {
	result := &RestoreResult{
		SnapshotID: snap.ID,
		Failures:   make(map[string]error),
	}

	// Remove links that did not exist at capture time.
	if current, err := c.nm.CaptureLinkStates(); err == nil {
		for name, state := range current {
			if _, existed := snap.Links[name]; existed {
				continue
			}
			// Only virtual links are removed; physical ones stay.
			if state.Kind == "physical" {
				continue
			}
			logger.Info("Removing link created after snapshot",
				logger.Field{Key: "link", Value: name})
			if err := c.nm.DeleteLink(name); err != nil {
				result.Failures[name] = err
			}
		}
	}

	for name, state := range snap.Links {
		if err := c.nm.RestoreLink(state); err != nil {
			logger.Warn("Failed to restore link",
				logger.Field{Key: "link", Value: name},
				logger.Field{Key: "error", Value: err.Error()})
			result.Failures[name] = err
			continue
		}
		result.Restored = append(result.Restored, name)
	}

	now := time.Now()
	if err := c.store.MarkSnapshotRolledBack(snap.ID, now); err != nil {
		logger.Warn("Failed to mark snapshot rolled back",
			logger.Field{Key: "snapshot_id", Value: snap.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}

	logger.Info("Restore finished",
		logger.Field{Key: "snapshot_id", Value: snap.ID},
		logger.Field{Key: "restored", Value: len(result.Restored)},
		logger.Field{Key: "failed", Value: len(result.Failures)})
	return result
}

// RestoreByID restores a snapshot chosen by the operator.
func (c *Coordinator) RestoreByID(id string) (*RestoreResult, error) {
	snap, err := c.store.GetSnapshot(id)
	if err != nil {
		return nil, err
	}
	return c.Restore(snap), nil
}
