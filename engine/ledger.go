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

// Package engine implements the staging ledger, the atomic apply state
// machine, and the snapshot/rollback coordinator.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/types"
	"github.com/we-are-mono/netstage/validation"
)

// StageOptions carries the optional attributes of a staged change.
type StageOptions struct {
	Description string
	Priority    int // 0 means DefaultChangePriority
}

func (o StageOptions) priority() int {
	if o.Priority == 0 {
		return types.DefaultChangePriority
	}
	return o.Priority
}

// Ledger is the ordered queue of staged changes. It holds at most one
// outstanding entry per resource: staging again replaces the desired
// configuration in place while preserving the originally captured current
// state, so a later rollback lands on pre-first-staging reality.
// Stage and discard operations are serialized; the read-modify-write on the
// outstanding entry must not interleave.
type Ledger struct {
	mu    sync.Mutex
	store *store.Store
}

// NewLedger creates a ledger over the given store.
func NewLedger(st *store.Store) *Ledger {
	return &Ledger{store: st}
}

// StageBridge stages a create or update for a bridge. The action is derived
// from the record: no live configuration means create.
func (l *Ledger) StageBridge(name string, cfg *types.BridgeConfig, opts StageOptions) (*types.PendingChange, error) {
	if err := validation.ValidateBridgeConfig(name, cfg); err != nil {
		return nil, &ValidationError{Resource: "bridge " + name, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	bridge, err := l.store.GetBridge(name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if bridge == nil {
		bridge = &types.Bridge{
			Name:      name,
			Status:    types.StatusPending,
			CreatedAt: now,
		}
	}

	desired, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal desired config: %w", err)
	}

	change, err := l.upsertChange(types.KindBridge, name, func(change *types.PendingChange) error {
		if bridge.Live == nil {
			change.Action = types.ActionCreate
		} else {
			change.Action = types.ActionUpdate
			if change.Current == nil {
				current, err := json.Marshal(bridge.Live)
				if err != nil {
					return fmt.Errorf("marshal current config: %w", err)
				}
				change.Current = current
			}
		}
		change.Desired = desired
		change.Description = opts.Description
		change.Priority = opts.priority()
		return nil
	}, now)
	if err != nil {
		return nil, err
	}

	bridge.Pending = cfg.Clone()
	if bridge.Live != nil {
		bridge.Status = types.StatusPendingChanges
	}
	bridge.UpdatedAt = now
	if err := l.store.SaveBridge(bridge); err != nil {
		return nil, err
	}

	logger.Info("Staged bridge change",
		logger.Field{Key: "bridge", Value: name},
		logger.Field{Key: "action", Value: string(change.Action)},
		logger.Field{Key: "change_id", Value: change.ID})
	return change, nil
}

// StageBridgeDelete stages removal of a bridge. Deleting a bridge whose only
// ledger entry is an unapplied create cancels both: the net effect of the
// two stagings is nothing.
func (l *Ledger) StageBridgeDelete(name string, opts StageOptions) (*types.PendingChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bridge, err := l.store.GetBridge(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ValidationError{Resource: "bridge " + name, Err: errors.New("bridge does not exist")}
		}
		return nil, err
	}

	now := time.Now()

	outstanding, err := l.store.GetOutstanding(types.KindBridge, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if outstanding != nil && outstanding.Action == types.ActionCreate {
		outstanding.Status = types.ChangeDiscarded
		outstanding.UpdatedAt = now
		if err := l.store.SaveChange(outstanding); err != nil {
			return nil, err
		}
		if err := l.store.DeleteBridge(name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Info("Cancelled unapplied bridge create",
			logger.Field{Key: "bridge", Value: name},
			logger.Field{Key: "change_id", Value: outstanding.ID})
		return nil, nil
	}

	current, err := json.Marshal(bridge.Live)
	if err != nil {
		return nil, fmt.Errorf("marshal current config: %w", err)
	}

	change, err := l.upsertChange(types.KindBridge, name, func(change *types.PendingChange) error {
		change.Action = types.ActionDelete
		if change.Current == nil {
			change.Current = current
		}
		change.Desired = nil
		change.Description = opts.Description
		change.Priority = opts.priority()
		return nil
	}, now)
	if err != nil {
		return nil, err
	}

	bridge.Pending = nil
	bridge.Status = types.StatusPendingChanges
	bridge.UpdatedAt = now
	if err := l.store.SaveBridge(bridge); err != nil {
		return nil, err
	}

	logger.Info("Staged bridge deletion",
		logger.Field{Key: "bridge", Value: name},
		logger.Field{Key: "change_id", Value: change.ID})
	return change, nil
}

// StageInterface stages a configuration change for an interface. Physical
// interfaces always exist on the system, so the action is create only when
// the record has never been applied.
func (l *Ledger) StageInterface(name string, cfg *types.InterfaceConfig, opts StageOptions) (*types.PendingChange, error) {
	if err := validation.ValidateInterfaceConfig(name, cfg); err != nil {
		return nil, &ValidationError{Resource: "interface " + name, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	iface, err := l.store.GetInterface(name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if iface == nil {
		iface = &types.Interface{
			Name:      name,
			Status:    types.StatusPending,
			CreatedAt: now,
		}
	}

	desired, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal desired config: %w", err)
	}

	change, err := l.upsertChange(types.KindInterface, name, func(change *types.PendingChange) error {
		if iface.Live == nil {
			change.Action = types.ActionCreate
		} else {
			change.Action = types.ActionUpdate
			if change.Current == nil {
				current, err := json.Marshal(iface.Live)
				if err != nil {
					return fmt.Errorf("marshal current config: %w", err)
				}
				change.Current = current
			}
		}
		change.Desired = desired
		change.Description = opts.Description
		change.Priority = opts.priority()
		return nil
	}, now)
	if err != nil {
		return nil, err
	}

	iface.Pending = cfg.Clone()
	if iface.Live != nil {
		iface.Status = types.StatusPendingChanges
	}
	iface.UpdatedAt = now
	if err := l.store.SaveInterface(iface); err != nil {
		return nil, err
	}

	logger.Info("Staged interface change",
		logger.Field{Key: "interface", Value: name},
		logger.Field{Key: "action", Value: string(change.Action)},
		logger.Field{Key: "change_id", Value: change.ID})
	return change, nil
}

// StageInterfaceDelete stages deconfiguration of an interface. The link is
// never deleted from the system, only flushed and brought down.
func (l *Ledger) StageInterfaceDelete(name string, opts StageOptions) (*types.PendingChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iface, err := l.store.GetInterface(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ValidationError{Resource: "interface " + name, Err: errors.New("interface is not managed")}
		}
		return nil, err
	}

	now := time.Now()

	outstanding, err := l.store.GetOutstanding(types.KindInterface, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if outstanding != nil && outstanding.Action == types.ActionCreate {
		outstanding.Status = types.ChangeDiscarded
		outstanding.UpdatedAt = now
		if err := l.store.SaveChange(outstanding); err != nil {
			return nil, err
		}
		if err := l.store.DeleteInterface(name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		logger.Info("Cancelled unapplied interface change",
			logger.Field{Key: "interface", Value: name},
			logger.Field{Key: "change_id", Value: outstanding.ID})
		return nil, nil
	}

	current, err := json.Marshal(iface.Live)
	if err != nil {
		return nil, fmt.Errorf("marshal current config: %w", err)
	}

	change, err := l.upsertChange(types.KindInterface, name, func(change *types.PendingChange) error {
		change.Action = types.ActionDelete
		if change.Current == nil {
			change.Current = current
		}
		change.Desired = nil
		change.Description = opts.Description
		change.Priority = opts.priority()
		return nil
	}, now)
	if err != nil {
		return nil, err
	}

	iface.Pending = nil
	iface.Status = types.StatusPendingChanges
	iface.UpdatedAt = now
	if err := l.store.SaveInterface(iface); err != nil {
		return nil, err
	}

	logger.Info("Staged interface deconfiguration",
		logger.Field{Key: "interface", Value: name},
		logger.Field{Key: "change_id", Value: change.ID})
	return change, nil
}

// upsertChange finds the outstanding entry for a resource and mutates it, or
// creates a fresh one. The first-staged CreatedAt and Current survive
// re-staging.
func (l *Ledger) upsertChange(kind types.ResourceKind, resourceID string, mutate func(*types.PendingChange) error, now time.Time) (*types.PendingChange, error) {
	change, err := l.store.GetOutstanding(kind, resourceID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		change = &types.PendingChange{
			ID:         uuid.New().String(),
			Kind:       kind,
			ResourceID: resourceID,
			Status:     types.ChangePending,
			CreatedAt:  now,
		}
	}

	if err := mutate(change); err != nil {
		return nil, err
	}
	change.UpdatedAt = now

	if err := l.store.SaveChange(change); err != nil {
		return nil, err
	}
	return change, nil
}

// List returns all pending changes in apply order.
func (l *Ledger) List() ([]*types.PendingChange, error) {
	return l.store.ListPending()
}

// History returns resolved changes, most recent first.
func (l *Ledger) History(limit int) ([]*types.PendingChange, error) {
	return l.store.ListChangeHistory(limit)
}

// Discard abandons a pending change and restores the resource's pending
// mirror to its live configuration. Discarding an unapplied create removes
// the record entirely.
func (l *Ledger) Discard(changeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discard(changeID)
}

func (l *Ledger) discard(changeID string) error {
	change, err := l.store.GetChange(changeID)
	if err != nil {
		return err
	}
	if change.Status != types.ChangePending {
		return fmt.Errorf("change %s is not pending (status: %s)", changeID, change.Status)
	}

	now := time.Now()
	change.Status = types.ChangeDiscarded
	change.UpdatedAt = now
	if err := l.store.SaveChange(change); err != nil {
		return err
	}

	switch change.Kind {
	case types.KindBridge:
		if change.Action == types.ActionCreate {
			if err := l.store.DeleteBridge(change.ResourceID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			break
		}
		bridge, err := l.store.GetBridge(change.ResourceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			return err
		}
		bridge.Pending = nil
		bridge.Status = types.StatusActive
		bridge.UpdatedAt = now
		if err := l.store.SaveBridge(bridge); err != nil {
			return err
		}
	case types.KindInterface:
		if change.Action == types.ActionCreate {
			if err := l.store.DeleteInterface(change.ResourceID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			break
		}
		iface, err := l.store.GetInterface(change.ResourceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			return err
		}
		iface.Pending = nil
		iface.Status = types.StatusActive
		iface.UpdatedAt = now
		if err := l.store.SaveInterface(iface); err != nil {
			return err
		}
	}

	logger.Info("Discarded change",
		logger.Field{Key: "change_id", Value: changeID},
		logger.Field{Key: "resource", Value: change.ResourceID})
	return nil
}

// DiscardAll abandons every pending change. Returns the number discarded.
func (l *Ledger) DiscardAll() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changes, err := l.store.ListPending()
	if err != nil {
		return 0, err
	}
	for _, change := range changes {
		if err := l.discard(change.ID); err != nil {
			return 0, err
		}
	}
	return len(changes), nil
}
