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

	"github.com/we-are-mono/netstage/types"
)

// SaveChange inserts or updates a ledger entry.
func (s *Store) SaveChange(c *types.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pending_changes (id, kind, action, resource_id, current, desired,
			description, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			action = excluded.action,
			current = excluded.current,
			desired = excluded.desired,
			description = excluded.description,
			priority = excluded.priority,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, c.ID, c.Kind, c.Action, c.ResourceID, rawToCol(c.Current), rawToCol(c.Desired),
		c.Description, c.Priority, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save change %s: %w", c.ID, err)
	}
	return nil
}

// GetChange returns the ledger entry with the given ID.
func (s *Store) GetChange(id string) (*types.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, kind, action, resource_id, current, desired, description,
			priority, status, created_at, updated_at
		FROM pending_changes WHERE id = ?
	`, id)
	return scanChange(row)
}

// GetOutstanding returns the pending ledger entry for a resource, if any.
// The ledger holds at most one pending entry per resource.
func (s *Store) GetOutstanding(kind types.ResourceKind, resourceID string) (*types.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, kind, action, resource_id, current, desired, description,
			priority, status, created_at, updated_at
		FROM pending_changes
		WHERE kind = ? AND resource_id = ? AND status = ?
	`, kind, resourceID, types.ChangePending)
	return scanChange(row)
}

// ListPending returns all pending ledger entries in apply order: priority
// ascending, then creation time ascending.
func (s *Store) ListPending() ([]*types.PendingChange, error) {
	return s.listChanges(`
		SELECT id, kind, action, resource_id, current, desired, description,
			priority, status, created_at, updated_at
		FROM pending_changes
		WHERE status = ?
		ORDER BY priority ASC, created_at ASC
	`, types.ChangePending)
}

// ListChangeHistory returns resolved ledger entries (applied, failed, or
// discarded), most recent first.
func (s *Store) ListChangeHistory(limit int) ([]*types.PendingChange, error) {
	query := `
		SELECT id, kind, action, resource_id, current, desired, description,
			priority, status, created_at, updated_at
		FROM pending_changes
		WHERE status != ?
		ORDER BY updated_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.listChanges(query, types.ChangePending)
}

// DeleteChange removes a ledger entry.
func (s *Store) DeleteChange(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM pending_changes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete change %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) listChanges(query string, args ...any) ([]*types.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var changes []*types.PendingChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func scanChange(row rowScanner) (*types.PendingChange, error) {
	var c types.PendingChange
	var current, desired, description sql.NullString

	err := row.Scan(&c.ID, &c.Kind, &c.Action, &c.ResourceID, &current, &desired,
		&description, &c.Priority, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan change: %w", err)
	}

	c.Description = description.String
	if current.Valid && current.String != "" {
		c.Current = json.RawMessage(current.String)
	}
	if desired.Valid && desired.String != "" {
		c.Desired = json.RawMessage(desired.String)
	}
	return &c, nil
}

func rawToCol(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
