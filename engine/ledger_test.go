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
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/types"
)

func TestStageBridgeCreate(t *testing.T) {
	e := newTestEngine(t)

	cfg := &types.BridgeConfig{Ports: []string{"eth0"}, IPv4Addr: "192.168.1.1/24"}
	change, err := e.ledger.StageBridge("br0", cfg, StageOptions{Description: "lan bridge"})
	require.NoError(t, err)

	assert.Equal(t, types.ActionCreate, change.Action)
	assert.Equal(t, types.ChangePending, change.Status)
	assert.Equal(t, types.DefaultChangePriority, change.Priority)
	assert.Equal(t, "lan bridge", change.Description)
	assert.Nil(t, change.Current, "a create has no prior state")

	bridge, err := e.store.GetBridge("br0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, bridge.Status)
	assert.Nil(t, bridge.Live)
	assert.True(t, cfg.Equal(bridge.Pending))
}

func TestStageBridgeRejectsInvalidConfig(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.StageBridge("br0", &types.BridgeConfig{IPv4Addr: "bogus"}, StageOptions{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Resource, "br0")

	// Nothing entered the ledger or the resource table.
	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = e.store.GetBridge("br0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStageBridgeReplacesOutstandingChange(t *testing.T) {
	e := newTestEngine(t)

	// The bridge is already live; the first staging captures that state.
	live := &types.BridgeConfig{Ports: []string{"eth0"}, IPv4Addr: "10.0.0.1/24"}
	now := time.Now()
	require.NoError(t, e.store.SaveBridge(&types.Bridge{
		Name: "br0", Status: types.StatusActive, Live: live, CreatedAt: now, UpdatedAt: now,
	}))

	cfgB := &types.BridgeConfig{Ports: []string{"eth0", "eth1"}, IPv4Addr: "10.0.0.1/24"}
	first, err := e.ledger.StageBridge("br0", cfgB, StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.ActionUpdate, first.Action)

	cfgC := &types.BridgeConfig{Ports: []string{"eth2"}, IPv4Addr: "10.0.0.2/24"}
	second, err := e.ledger.StageBridge("br0", cfgC, StageOptions{})
	require.NoError(t, err)

	// Same ledger entry, new desired state, original capture intact.
	assert.Equal(t, first.ID, second.ID)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Second)

	var capturedCurrent types.BridgeConfig
	require.NoError(t, json.Unmarshal(second.Current, &capturedCurrent))
	assert.True(t, live.Equal(&capturedCurrent), "current must reflect pre-first-staging state")

	var desired types.BridgeConfig
	require.NoError(t, json.Unmarshal(second.Desired, &desired))
	assert.True(t, cfgC.Equal(&desired))

	pending, err := e.ledger.List()
	require.NoError(t, err)
	require.Len(t, pending, 1, "at most one outstanding change per resource")
}

func TestStageBridgeDeleteCancelsUnappliedCreate(t *testing.T) {
	e := newTestEngine(t)

	created, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)

	change, err := e.ledger.StageBridgeDelete("br0", StageOptions{})
	require.NoError(t, err)
	assert.Nil(t, change, "create plus delete nets out to nothing")

	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = e.store.GetBridge("br0")
	assert.ErrorIs(t, err, store.ErrNotFound)

	resolved, err := e.store.GetChange(created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangeDiscarded, resolved.Status)
}

func TestStageBridgeDelete(t *testing.T) {
	e := newTestEngine(t)

	live := &types.BridgeConfig{IPv4Addr: "10.0.0.1/24"}
	now := time.Now()
	require.NoError(t, e.store.SaveBridge(&types.Bridge{
		Name: "br0", Status: types.StatusActive, Live: live, CreatedAt: now, UpdatedAt: now,
	}))

	change, err := e.ledger.StageBridgeDelete("br0", StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.ActionDelete, change.Action)
	assert.Nil(t, change.Desired)

	var captured types.BridgeConfig
	require.NoError(t, json.Unmarshal(change.Current, &captured))
	assert.True(t, live.Equal(&captured))

	bridge, err := e.store.GetBridge("br0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingChanges, bridge.Status)
	assert.Nil(t, bridge.Pending)
}

func TestStageBridgeDeleteUnknownBridge(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.StageBridgeDelete("br9", StageOptions{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStageInterface(t *testing.T) {
	e := newTestEngine(t)

	cfg := &types.InterfaceConfig{Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24"}
	change, err := e.ledger.StageInterface("eth0", cfg, StageOptions{Priority: 10})
	require.NoError(t, err)

	assert.Equal(t, types.KindInterface, change.Kind)
	assert.Equal(t, types.ActionCreate, change.Action)
	assert.Equal(t, 10, change.Priority)

	iface, err := e.store.GetInterface("eth0")
	require.NoError(t, err)
	assert.True(t, cfg.Equal(iface.Pending))
}

func TestStageInterfaceDeleteCancelsUnappliedCreate(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.StageInterface("eth0", &types.InterfaceConfig{Method: types.MethodDHCP}, StageOptions{})
	require.NoError(t, err)

	change, err := e.ledger.StageInterfaceDelete("eth0", StageOptions{})
	require.NoError(t, err)
	assert.Nil(t, change)

	_, err = e.store.GetInterface("eth0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiscardUpdateRestoresMirror(t *testing.T) {
	e := newTestEngine(t)

	live := &types.InterfaceConfig{Method: types.MethodDHCP}
	now := time.Now()
	require.NoError(t, e.store.SaveInterface(&types.Interface{
		Name: "eth0", Status: types.StatusActive, Live: live, CreatedAt: now, UpdatedAt: now,
	}))

	change, err := e.ledger.StageInterface("eth0", &types.InterfaceConfig{
		Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24",
	}, StageOptions{})
	require.NoError(t, err)

	require.NoError(t, e.ledger.Discard(change.ID))

	iface, err := e.store.GetInterface("eth0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, iface.Status)
	assert.Nil(t, iface.Pending)
	assert.True(t, live.Equal(iface.Live))

	resolved, err := e.store.GetChange(change.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangeDiscarded, resolved.Status)
}

func TestDiscardCreateRemovesRecord(t *testing.T) {
	e := newTestEngine(t)

	change, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)

	require.NoError(t, e.ledger.Discard(change.ID))

	_, err = e.store.GetBridge("br0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDiscardRejectsResolvedChange(t *testing.T) {
	e := newTestEngine(t)

	change, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)
	require.NoError(t, e.ledger.Discard(change.ID))

	err = e.ledger.Discard(change.ID)
	assert.ErrorContains(t, err, "is not pending")
}

func TestDiscardAll(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)
	_, err = e.ledger.StageInterface("eth0", &types.InterfaceConfig{Method: types.MethodDHCP}, StageOptions{})
	require.NoError(t, err)

	n, err := e.ledger.DiscardAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHistory(t *testing.T) {
	e := newTestEngine(t)

	change, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)
	require.NoError(t, e.ledger.Discard(change.ID))

	history, err := e.ledger.History(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ChangeDiscarded, history[0].Status)
}

func TestStageBridgeDeleteOverUpdatePreservesCapture(t *testing.T) {
	e := newTestEngine(t)

	live := &types.BridgeConfig{IPv4Addr: "10.0.0.1/24"}
	now := time.Now()
	require.NoError(t, e.store.SaveBridge(&types.Bridge{
		Name: "br0", Status: types.StatusActive, Live: live, CreatedAt: now, UpdatedAt: now,
	}))

	update, err := e.ledger.StageBridge("br0", &types.BridgeConfig{IPv4Addr: "10.0.0.2/24"}, StageOptions{})
	require.NoError(t, err)

	// Escalating the outstanding update to a delete reuses the entry.
	del, err := e.ledger.StageBridgeDelete("br0", StageOptions{})
	require.NoError(t, err)
	require.NotNil(t, del)
	assert.Equal(t, update.ID, del.ID)
	assert.Equal(t, types.ActionDelete, del.Action)

	var captured types.BridgeConfig
	require.NoError(t, json.Unmarshal(del.Current, &captured))
	assert.True(t, live.Equal(&captured))
}

func TestStageSerializesConcurrentStagings(t *testing.T) {
	e := newTestEngine(t)
	cfg := &types.BridgeConfig{IPv4Addr: "192.168.1.1/24"}

	// Racing stagings of the same resource must collapse into a single
	// outstanding entry, never two pending rows.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.StageBridge("br0", cfg, StageOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestValidationErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &ValidationError{Resource: "bridge br0", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "bridge br0")
}
