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

package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend appends log entries to a file on disk.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	format string
	file   *os.File
}

// NewFileBackend opens (creating if needed) the log file at path with the
// chosen format ("text" or "json").
func NewFileBackend(path string, format string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &FileBackend{path: path, format: format, file: file}, nil
}

// Write appends one rendered entry to the file.
func (b *FileBackend) Write(entry *Entry) error {
	line, err := render(entry, b.format)
	if err != nil {
		return fmt.Errorf("failed to render log entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return b.file.Close()
	}
	return nil
}
