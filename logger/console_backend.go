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
	"sync"
)

// ConsoleBackend writes log entries to stderr.
type ConsoleBackend struct {
	mu     sync.Mutex
	format string
}

// NewConsoleBackend creates a stderr backend with the chosen format
// ("text" or "json").
func NewConsoleBackend(format string) *ConsoleBackend {
	return &ConsoleBackend{format: format}
}

// Write prints one rendered entry to stderr.
func (b *ConsoleBackend) Write(entry *Entry) error {
	line, err := render(entry, b.format)
	if err != nil {
		return fmt.Errorf("failed to render log entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := fmt.Fprint(os.Stderr, line); err != nil {
		return fmt.Errorf("failed to write to stderr: %w", err)
	}
	return nil
}

// Close is a no-op; stderr stays open.
func (b *ConsoleBackend) Close() error {
	return nil
}
