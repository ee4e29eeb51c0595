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
	"bytes"
	"fmt"
	"sync"
)

// BufferBackend collects log entries in an in-memory buffer. Tests use it to
// assert on log output without touching the filesystem.
type BufferBackend struct {
	mu     sync.Mutex
	buffer *bytes.Buffer
	format string
}

// NewBufferBackend wraps the given buffer in a backend with the chosen
// format ("text" or "json").
func NewBufferBackend(buffer *bytes.Buffer, format string) *BufferBackend {
	return &BufferBackend{buffer: buffer, format: format}
}

// Write appends one rendered entry to the buffer.
func (b *BufferBackend) Write(entry *Entry) error {
	line, err := render(entry, b.format)
	if err != nil {
		return fmt.Errorf("failed to render log entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.buffer.WriteString(line); err != nil {
		return fmt.Errorf("failed to write to buffer: %w", err)
	}
	return nil
}

// Close is a no-op; the buffer belongs to the caller.
func (b *BufferBackend) Close() error {
	return nil
}
