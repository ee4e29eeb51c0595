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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/we-are-mono/netstage/types"
)

// SaveSnapshot inserts or updates a snapshot record.
func (s *Store) SaveSnapshot(snap *types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, err := json.Marshal(snap.Links)
	if err != nil {
		return fmt.Errorf("marshal snapshot links: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, scope, links, route_table, status, created_at, applied_at, rolled_back_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			applied_at = excluded.applied_at,
			rolled_back_at = excluded.rolled_back_at
	`, snap.ID, snap.Scope, string(links), snap.RouteTable, snap.Status,
		snap.CreatedAt, snap.AppliedAt, snap.RolledBackAt)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// GetSnapshot returns the snapshot with the given ID.
func (s *Store) GetSnapshot(id string) (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, scope, links, route_table, status, created_at, applied_at, rolled_back_at
		FROM snapshots WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns all snapshots, most recent first.
func (s *Store) ListSnapshots() ([]*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, scope, links, route_table, status, created_at, applied_at, rolled_back_at
		FROM snapshots ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*types.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// MarkSnapshotApplied records that the apply the snapshot guarded succeeded.
func (s *Store) MarkSnapshotApplied(id string, at time.Time) error {
	return s.updateSnapshotStatus(id, types.SnapshotApplied, "applied_at", at)
}

// MarkSnapshotRolledBack records that the snapshot was restored.
func (s *Store) MarkSnapshotRolledBack(id string, at time.Time) error {
	return s.updateSnapshotStatus(id, types.SnapshotRolledBack, "rolled_back_at", at)
}

func (s *Store) updateSnapshotStatus(id string, status types.SnapshotStatus, column string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		fmt.Sprintf("UPDATE snapshots SET status = ?, %s = ? WHERE id = ?", column),
		status, at, id)
	if err != nil {
		return fmt.Errorf("update snapshot %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneSnapshots deletes resolved snapshots beyond the keep most recent.
// Active snapshots are never pruned. Returns the number deleted.
func (s *Store) PruneSnapshots(keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		DELETE FROM snapshots
		WHERE status != ? AND id NOT IN (
			SELECT id FROM snapshots
			WHERE status != ?
			ORDER BY created_at DESC
			LIMIT ?
		)
	`, types.SnapshotActive, types.SnapshotActive, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return result.RowsAffected()
}

func scanSnapshot(row rowScanner) (*types.Snapshot, error) {
	var snap types.Snapshot
	var links string
	var routeTable sql.NullString
	var appliedAt, rolledBackAt sql.NullTime

	err := row.Scan(&snap.ID, &snap.Scope, &links, &routeTable, &snap.Status,
		&snap.CreatedAt, &appliedAt, &rolledBackAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.RouteTable = routeTable.String
	if err := json.Unmarshal([]byte(links), &snap.Links); err != nil {
		return nil, fmt.Errorf("snapshot %s links: %w", snap.ID, err)
	}
	if appliedAt.Valid {
		snap.AppliedAt = &appliedAt.Time
	}
	if rolledBackAt.Valid {
		snap.RolledBackAt = &rolledBackAt.Time
	}
	return &snap, nil
}
