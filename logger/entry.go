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
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Entry is one structured log record as handed to the backends.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
}

// NewEntry stamps a record with the current UTC time.
func NewEntry(level, component, message string, fields map[string]interface{}) *Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return &Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: component,
		Message:   message,
		Fields:    fields,
	}
}

// ToJSON marshals the entry as a single JSON object.
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ToText renders the entry as a single human-readable line. Fields are
// emitted in sorted key order so repeated runs produce identical output.
func (e *Entry) ToText() string {
	var b strings.Builder
	b.WriteString(e.Timestamp)
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("]")
	if e.Component != "" {
		b.WriteString(" [")
		b.WriteString(e.Component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fieldString(e.Fields[k]))
		}
	}
	return b.String()
}

// render formats an entry for a backend in the given format, with a trailing
// newline ready to write.
func render(entry *Entry, format string) (string, error) {
	if format == "json" {
		data, err := entry.ToJSON()
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	}
	return entry.ToText() + "\n", nil
}

func fieldString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
