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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/we-are-mono/netstage/config"
	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/system"
	"github.com/we-are-mono/netstage/types"
)

// Applier executes the pending change ledger atomically: snapshot, ordered
// apply, connectivity verification, then commit or rollback. Only one apply
// can run at a time.
type Applier struct {
	mu sync.Mutex // held for the duration of an apply run

	store       *store.Store
	nm          *system.NetworkManager
	coordinator *Coordinator
	checker     ConnectivityChecker

	verifyTarget  string
	verifyTimeout time.Duration
	snapshotKeep  int
}

// NewApplier creates an applier wired to the given store, network manager,
// rollback coordinator, and connectivity checker.
func NewApplier(st *store.Store, nm *system.NetworkManager, coord *Coordinator, checker ConnectivityChecker, cfg *config.Engine) *Applier {
	return &Applier{
		store:         st,
		nm:            nm,
		coordinator:   coord,
		checker:       checker,
		verifyTarget:  cfg.VerifyTarget,
		verifyTimeout: time.Duration(cfg.VerifyTimeoutSeconds) * time.Second,
		snapshotKeep:  cfg.SnapshotKeep,
	}
}

// ApplyResult summarizes an apply run.
type ApplyResult struct {
	Applied           int
	SnapshotID        string
	RollbackPerformed bool
	RestoreFailures   map[string]error
}

// ApplyAll executes every pending change in priority order. On the first
// failed step, or on failed verification, the pre-apply snapshot is restored
// and the already-applied changes return to the ledger.
//
// An empty ledger is a no-op: no snapshot is taken and nothing is touched.
func (a *Applier) ApplyAll(ctx context.Context) (*ApplyResult, error) {
	if !a.mu.TryLock() {
		return nil, ErrApplyInProgress
	}
	defer a.mu.Unlock()

	changes, err := a.store.ListPending()
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		logger.Info("No pending changes to apply")
		return &ApplyResult{}, nil
	}

	snap, err := a.coordinator.Capture(types.SnapshotScopeAll)
	if err != nil {
		return nil, &SnapshotError{Err: err}
	}

	result := &ApplyResult{SnapshotID: snap.ID}

	var applied []*types.PendingChange
	var stepErr error
	for _, change := range changes {
		// Cancellation takes effect between steps; an in-flight netlink
		// call is never abandoned half-done.
		if err := ctx.Err(); err != nil {
			stepErr = a.failStep(change, err)
			break
		}

		logger.Info("Applying change",
			logger.Field{Key: "change_id", Value: change.ID},
			logger.Field{Key: "resource", Value: change.ResourceID},
			logger.Field{Key: "action", Value: string(change.Action)})

		cmd, err := buildCommand(change)
		if err != nil {
			stepErr = a.failStep(change, err)
			break
		}
		if err := cmd.run(a.nm); err != nil {
			stepErr = a.failStep(change, err)
			break
		}
		if err := a.promote(change); err != nil {
			stepErr = a.failStep(change, err)
			break
		}
		applied = append(applied, change)
	}

	if stepErr != nil {
		a.rollback(snap, applied, result, stepErr)
		return result, stepErr
	}

	if err := a.verify(ctx, applied); err != nil {
		logger.Warn("Verification failed, rolling back",
			logger.Field{Key: "error", Value: err.Error()})
		a.rollback(snap, applied, result, err)
		return result, err
	}

	if err := a.store.MarkSnapshotApplied(snap.ID, time.Now()); err != nil {
		logger.Warn("Failed to mark snapshot applied",
			logger.Field{Key: "snapshot_id", Value: snap.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	if a.snapshotKeep > 0 {
		if n, err := a.store.PruneSnapshots(a.snapshotKeep); err == nil && n > 0 {
			logger.Debug("Pruned old snapshots", logger.Field{Key: "count", Value: n})
		}
	}

	result.Applied = len(applied)
	logger.Info("Apply committed",
		logger.Field{Key: "applied", Value: result.Applied},
		logger.Field{Key: "snapshot_id", Value: snap.ID})
	return result, nil
}

// failStep marks a change failed and flags its resource record.
func (a *Applier) failStep(change *types.PendingChange, cause error) error {
	now := time.Now()
	change.Status = types.ChangeFailed
	change.UpdatedAt = now
	if err := a.store.SaveChange(change); err != nil {
		logger.Error("Failed to persist failed change",
			logger.Field{Key: "change_id", Value: change.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}

	switch change.Kind {
	case types.KindBridge:
		if bridge, err := a.store.GetBridge(change.ResourceID); err == nil {
			bridge.Status = types.StatusError
			bridge.LastError = cause.Error()
			bridge.UpdatedAt = now
			_ = a.store.SaveBridge(bridge) //nolint:errcheck
		}
	case types.KindInterface:
		if iface, err := a.store.GetInterface(change.ResourceID); err == nil {
			iface.Status = types.StatusError
			iface.LastError = cause.Error()
			iface.UpdatedAt = now
			_ = a.store.SaveInterface(iface) //nolint:errcheck
		}
	}

	return &ApplyStepError{
		ChangeID: change.ID,
		Resource: change.ResourceID,
		Action:   change.Action,
		Err:      cause,
	}
}

// promote commits a successfully executed change: the desired configuration
// becomes live and the ledger entry is marked applied.
func (a *Applier) promote(change *types.PendingChange) error {
	now := time.Now()

	switch change.Kind {
	case types.KindBridge:
		if change.Action == types.ActionDelete {
			if err := a.store.DeleteBridge(change.ResourceID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			break
		}
		bridge, err := a.store.GetBridge(change.ResourceID)
		if err != nil {
			return err
		}
		var cfg types.BridgeConfig
		if err := json.Unmarshal(change.Desired, &cfg); err != nil {
			return fmt.Errorf("unmarshal desired config: %w", err)
		}
		bridge.Live = &cfg
		bridge.Pending = nil
		bridge.Status = types.StatusActive
		bridge.LastError = ""
		bridge.UpdatedAt = now
		if err := a.store.SaveBridge(bridge); err != nil {
			return err
		}
	case types.KindInterface:
		if change.Action == types.ActionDelete {
			if err := a.store.DeleteInterface(change.ResourceID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			break
		}
		iface, err := a.store.GetInterface(change.ResourceID)
		if err != nil {
			return err
		}
		var cfg types.InterfaceConfig
		if err := json.Unmarshal(change.Desired, &cfg); err != nil {
			return fmt.Errorf("unmarshal desired config: %w", err)
		}
		iface.Live = &cfg
		iface.Pending = nil
		iface.Status = types.StatusActive
		iface.LastError = ""
		iface.UpdatedAt = now
		if err := a.store.SaveInterface(iface); err != nil {
			return err
		}
	}

	change.Status = types.ChangeApplied
	change.UpdatedAt = now
	return a.store.SaveChange(change)
}

// rollback restores the snapshot and returns the already-promoted changes to
// the ledger so the records again mirror pre-apply reality. The triggering
// error and any per-link restore failures end up on the resource records.
func (a *Applier) rollback(snap *types.Snapshot, applied []*types.PendingChange, result *ApplyResult, cause error) {
	restore := a.coordinator.Restore(snap)
	result.RollbackPerformed = true
	result.RestoreFailures = restore.Failures

	for _, change := range applied {
		if err := a.revert(change, cause); err != nil {
			logger.Error("Failed to revert change record",
				logger.Field{Key: "change_id", Value: change.ID},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	// Restore failures win over the revert status: the operator must see
	// exactly which links did not recover.
	a.flagRestoreFailures(restore.Failures)
}

// revert reconstructs a resource record as it was before the change was
// promoted, marks the change pending again, and attaches the error that
// triggered the rollback to the record.
func (a *Applier) revert(change *types.PendingChange, cause error) error {
	now := time.Now()

	switch change.Kind {
	case types.KindBridge:
		bridge, err := a.store.GetBridge(change.ResourceID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			bridge = &types.Bridge{Name: change.ResourceID, CreatedAt: change.CreatedAt}
		}
		if err := rebuildRecord(change, &bridge.Live, &bridge.Pending); err != nil {
			return err
		}
		bridge.Status = types.StatusError
		bridge.LastError = cause.Error()
		bridge.UpdatedAt = now
		if err := a.store.SaveBridge(bridge); err != nil {
			return err
		}
	case types.KindInterface:
		iface, err := a.store.GetInterface(change.ResourceID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			iface = &types.Interface{Name: change.ResourceID, CreatedAt: change.CreatedAt}
		}
		if err := rebuildRecord(change, &iface.Live, &iface.Pending); err != nil {
			return err
		}
		iface.Status = types.StatusError
		iface.LastError = cause.Error()
		iface.UpdatedAt = now
		if err := a.store.SaveInterface(iface); err != nil {
			return err
		}
	}

	change.Status = types.ChangePending
	change.UpdatedAt = now
	return a.store.SaveChange(change)
}

// flagRestoreFailures maps per-link restore failures back to the matching
// resource records so manual intervention targets only what did not recover.
func (a *Applier) flagRestoreFailures(failures map[string]error) {
	now := time.Now()
	for name, ferr := range failures {
		msg := fmt.Sprintf("rollback failed: %v", ferr)
		if bridge, err := a.store.GetBridge(name); err == nil {
			bridge.Status = types.StatusError
			bridge.LastError = msg
			bridge.UpdatedAt = now
			_ = a.store.SaveBridge(bridge) //nolint:errcheck
			continue
		}
		if iface, err := a.store.GetInterface(name); err == nil {
			iface.Status = types.StatusError
			iface.LastError = msg
			iface.UpdatedAt = now
			_ = a.store.SaveInterface(iface) //nolint:errcheck
		}
	}
}

// rebuildRecord repopulates live and pending configs from the ledger entry's
// captured states.
func rebuildRecord[T any](change *types.PendingChange, live, pending **T) error {
	*live = nil
	if len(change.Current) > 0 {
		cfg := new(T)
		if err := json.Unmarshal(change.Current, cfg); err != nil {
			return fmt.Errorf("unmarshal captured current config: %w", err)
		}
		*live = cfg
	}

	*pending = nil
	if len(change.Desired) > 0 {
		cfg := new(T)
		if err := json.Unmarshal(change.Desired, cfg); err != nil {
			return fmt.Errorf("unmarshal desired config: %w", err)
		}
		*pending = cfg
	}
	return nil
}

// verify pings the configured target, or the gateways the applied changes
// reference, within the verification deadline.
func (a *Applier) verify(ctx context.Context, applied []*types.PendingChange) error {
	targets := a.verifyTargets(applied)
	if len(targets) == 0 {
		logger.Debug("No verification targets, skipping connectivity check")
		return nil
	}

	timeout := a.verifyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, target := range targets {
		logger.Info("Verifying connectivity", logger.Field{Key: "target", Value: target})
		if err := a.checker.Check(ctx, target); err != nil {
			return &VerificationError{Target: target, Err: err}
		}
	}
	return nil
}

func (a *Applier) verifyTargets(applied []*types.PendingChange) []string {
	if a.verifyTarget != "" {
		return []string{a.verifyTarget}
	}

	seen := make(map[string]bool)
	var targets []string
	add := func(gw string) {
		if gw != "" && !seen[gw] {
			seen[gw] = true
			targets = append(targets, gw)
		}
	}

	for _, change := range applied {
		if len(change.Desired) == 0 {
			continue
		}
		switch change.Kind {
		case types.KindBridge:
			var cfg types.BridgeConfig
			if err := json.Unmarshal(change.Desired, &cfg); err == nil {
				add(cfg.IPv4Gateway)
				add(cfg.IPv6Gateway)
			}
		case types.KindInterface:
			var cfg types.InterfaceConfig
			if err := json.Unmarshal(change.Desired, &cfg); err == nil {
				add(cfg.Gateway)
			}
		}
	}
	return targets
}
