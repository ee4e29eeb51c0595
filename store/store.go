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

// Package store persists bridges, interfaces, the pending change ledger, and
// network snapshots in SQLite. The handle is injected into every component
// that needs persistence; nothing in netstage opens the database on its own.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/we-are-mono/netstage/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a SQLite-backed persistence layer.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (and if necessary creates) the netstage database at path.
// Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY with the pure Go driver.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bridges (
			name TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			last_error TEXT,
			live TEXT,
			pending TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS interfaces (
			name TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			last_error TEXT,
			live TEXT,
			pending TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pending_changes (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			action TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			current TEXT,
			desired TEXT,
			description TEXT,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_changes_status ON pending_changes(status, priority, created_at);
		CREATE INDEX IF NOT EXISTS idx_changes_resource ON pending_changes(kind, resource_id);

		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			links TEXT NOT NULL,
			route_table TEXT,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			applied_at DATETIME,
			rolled_back_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_status ON snapshots(status, created_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Bridges ---

// SaveBridge inserts or updates a bridge record.
func (s *Store) SaveBridge(b *types.Bridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := marshalConfig(b.Live)
	if err != nil {
		return fmt.Errorf("marshal live config: %w", err)
	}
	pending, err := marshalConfig(b.Pending)
	if err != nil {
		return fmt.Errorf("marshal pending config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO bridges (name, status, last_error, live, pending, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			live = excluded.live,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, b.Name, b.Status, b.LastError, live, pending, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save bridge %s: %w", b.Name, err)
	}
	return nil
}

// GetBridge returns the bridge with the given name.
func (s *Store) GetBridge(name string) (*types.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, status, last_error, live, pending, created_at, updated_at
		FROM bridges WHERE name = ?
	`, name)
	return scanBridge(row)
}

// ListBridges returns all bridge records ordered by name.
func (s *Store) ListBridges() ([]*types.Bridge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, status, last_error, live, pending, created_at, updated_at
		FROM bridges ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	defer rows.Close()

	var bridges []*types.Bridge
	for rows.Next() {
		b, err := scanBridge(rows)
		if err != nil {
			return nil, err
		}
		bridges = append(bridges, b)
	}
	return bridges, rows.Err()
}

// DeleteBridge removes a bridge record.
func (s *Store) DeleteBridge(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM bridges WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete bridge %s: %w", name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBridge(row rowScanner) (*types.Bridge, error) {
	var b types.Bridge
	var lastError, live, pending sql.NullString

	err := row.Scan(&b.Name, &b.Status, &lastError, &live, &pending, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan bridge: %w", err)
	}

	b.LastError = lastError.String
	if err := unmarshalConfig(live, &b.Live); err != nil {
		return nil, fmt.Errorf("bridge %s live config: %w", b.Name, err)
	}
	if err := unmarshalConfig(pending, &b.Pending); err != nil {
		return nil, fmt.Errorf("bridge %s pending config: %w", b.Name, err)
	}
	return &b, nil
}

// --- Interfaces ---

// SaveInterface inserts or updates an interface record.
func (s *Store) SaveInterface(iface *types.Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := marshalConfig(iface.Live)
	if err != nil {
		return fmt.Errorf("marshal live config: %w", err)
	}
	pending, err := marshalConfig(iface.Pending)
	if err != nil {
		return fmt.Errorf("marshal pending config: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO interfaces (name, status, last_error, live, pending, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			live = excluded.live,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, iface.Name, iface.Status, iface.LastError, live, pending, iface.CreatedAt, iface.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save interface %s: %w", iface.Name, err)
	}
	return nil
}

// GetInterface returns the interface with the given name.
func (s *Store) GetInterface(name string) (*types.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT name, status, last_error, live, pending, created_at, updated_at
		FROM interfaces WHERE name = ?
	`, name)
	return scanInterface(row)
}

// ListInterfaces returns all interface records ordered by name.
func (s *Store) ListInterfaces() ([]*types.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT name, status, last_error, live, pending, created_at, updated_at
		FROM interfaces ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	defer rows.Close()

	var ifaces []*types.Interface
	for rows.Next() {
		iface, err := scanInterface(rows)
		if err != nil {
			return nil, err
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, rows.Err()
}

// DeleteInterface removes an interface record.
func (s *Store) DeleteInterface(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM interfaces WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete interface %s: %w", name, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInterface(row rowScanner) (*types.Interface, error) {
	var iface types.Interface
	var lastError, live, pending sql.NullString

	err := row.Scan(&iface.Name, &iface.Status, &lastError, &live, &pending, &iface.CreatedAt, &iface.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interface: %w", err)
	}

	iface.LastError = lastError.String
	if err := unmarshalConfig(live, &iface.Live); err != nil {
		return nil, fmt.Errorf("interface %s live config: %w", iface.Name, err)
	}
	if err := unmarshalConfig(pending, &iface.Pending); err != nil {
		return nil, fmt.Errorf("interface %s pending config: %w", iface.Name, err)
	}
	return &iface, nil
}

// marshalConfig serializes a config pointer, mapping nil to SQL NULL.
func marshalConfig(v any) (any, error) {
	if v == nil || isNilPointer(v) {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func isNilPointer(v any) bool {
	switch c := v.(type) {
	case *types.BridgeConfig:
		return c == nil
	case *types.InterfaceConfig:
		return c == nil
	}
	return false
}

// unmarshalConfig deserializes a nullable JSON column into **T.
func unmarshalConfig[T any](col sql.NullString, dst **T) error {
	if !col.Valid || col.String == "" {
		*dst = nil
		return nil
	}
	cfg := new(T)
	if err := json.Unmarshal([]byte(col.String), cfg); err != nil {
		return err
	}
	*dst = cfg
	return nil
}
