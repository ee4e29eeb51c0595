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

package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/we-are-mono/netstage/types"
)

func makeSnapshot(id string, status types.SnapshotStatus, created time.Time) *types.Snapshot {
	return &types.Snapshot{
		ID:    id,
		Scope: types.SnapshotScopeAll,
		Links: map[string]types.LinkState{
			"eth0": {Name: "eth0", Kind: "device", Existed: true, Up: true, MTU: 1500,
				Addresses: []string{"10.0.0.5/24"}, Gateway: "10.0.0.1"},
			"br0": {Name: "br0", Kind: "bridge", Existed: true, Up: true, MTU: 1500,
				Ports: []string{"eth1"}},
		},
		RouteTable: "default via 10.0.0.1 dev eth0",
		Status:     status,
		CreatedAt:  created,
	}
}

func TestSnapshotSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	snap := makeSnapshot("snap-1", types.SnapshotActive, now)
	require.NoError(t, s.SaveSnapshot(snap))

	got, err := s.GetSnapshot("snap-1")
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotScopeAll, got.Scope)
	assert.Equal(t, types.SnapshotActive, got.Status)
	assert.Equal(t, "default via 10.0.0.1 dev eth0", got.RouteTable)
	require.Len(t, got.Links, 2)
	assert.Equal(t, []string{"10.0.0.5/24"}, got.Links["eth0"].Addresses)
	assert.Equal(t, []string{"eth1"}, got.Links["br0"].Ports)
	assert.Nil(t, got.AppliedAt)
	assert.Nil(t, got.RolledBackAt)

	_, err = s.GetSnapshot("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotLifecycle(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveSnapshot(makeSnapshot("snap-1", types.SnapshotActive, now)))

	appliedAt := now.Add(time.Minute)
	require.NoError(t, s.MarkSnapshotApplied("snap-1", appliedAt))

	got, err := s.GetSnapshot("snap-1")
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotApplied, got.Status)
	require.NotNil(t, got.AppliedAt)
	assert.WithinDuration(t, appliedAt, *got.AppliedAt, time.Second)

	rolledBackAt := now.Add(2 * time.Minute)
	require.NoError(t, s.MarkSnapshotRolledBack("snap-1", rolledBackAt))

	got, err = s.GetSnapshot("snap-1")
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotRolledBack, got.Status)
	require.NotNil(t, got.RolledBackAt)

	assert.ErrorIs(t, s.MarkSnapshotApplied("missing", now), ErrNotFound)
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveSnapshot(makeSnapshot("old", types.SnapshotApplied, base)))
	require.NoError(t, s.SaveSnapshot(makeSnapshot("new", types.SnapshotActive, base.Add(time.Minute))))

	snaps, err := s.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "new", snaps[0].ID)
	assert.Equal(t, "old", snaps[1].ID)
}

func TestPruneSnapshotsKeepsActiveAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	// Five resolved snapshots plus one old active one.
	for i := 0; i < 5; i++ {
		snap := makeSnapshot(fmt.Sprintf("resolved-%d", i), types.SnapshotApplied, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.SaveSnapshot(snap))
	}
	require.NoError(t, s.SaveSnapshot(makeSnapshot("active", types.SnapshotActive, base.Add(-time.Hour))))

	pruned, err := s.PruneSnapshots(2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pruned)

	snaps, err := s.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	ids := make(map[string]bool)
	for _, snap := range snaps {
		ids[snap.ID] = true
	}
	assert.True(t, ids["active"], "active snapshot must survive pruning")
	assert.True(t, ids["resolved-4"])
	assert.True(t, ids["resolved-3"])
}
