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

// Package types defines the core data structures for netstage: bridge and
// interface records with explicit live and pending configurations, pending
// change ledger entries, and network snapshots.
package types

import (
	"encoding/json"
	"time"
)

// ResourceKind identifies what a pending change targets.
type ResourceKind string

const (
	KindBridge    ResourceKind = "bridge"
	KindInterface ResourceKind = "interface"
)

// ChangeAction is the staged operation.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// ChangeStatus is the lifecycle state of a ledger entry.
type ChangeStatus string

const (
	ChangePending   ChangeStatus = "pending"
	ChangeApplied   ChangeStatus = "applied"
	ChangeFailed    ChangeStatus = "failed"
	ChangeDiscarded ChangeStatus = "discarded"
)

// ResourceStatus is the lifecycle state of a bridge or interface record.
type ResourceStatus string

const (
	StatusPending        ResourceStatus = "pending"
	StatusPendingChanges ResourceStatus = "pending-changes"
	StatusActive         ResourceStatus = "active"
	StatusError          ResourceStatus = "error"
	StatusRolledBack     ResourceStatus = "rolled-back"
)

// SnapshotStatus is the lifecycle state of a network snapshot.
type SnapshotStatus string

const (
	SnapshotActive     SnapshotStatus = "active"
	SnapshotApplied    SnapshotStatus = "applied"
	SnapshotRolledBack SnapshotStatus = "rolled_back"
)

// AddrMethod is how an interface obtains its addressing.
type AddrMethod string

const (
	MethodDHCP   AddrMethod = "dhcp"
	MethodStatic AddrMethod = "static"
	MethodManual AddrMethod = "manual"
)

// DefaultChangePriority is assigned to staged changes that don't specify one.
// Lower values apply earlier; bridge creations should be staged below
// interface changes that depend on them.
const DefaultChangePriority = 100

// BridgeConfig holds the mutable configuration of a network bridge.
// The same structure describes both the live configuration and a staged
// (pending) one.
type BridgeConfig struct {
	Description string   `json:"description,omitempty"`
	Ports       []string `json:"ports"`
	IPv4Addr    string   `json:"ipv4_addr,omitempty"` // CIDR notation
	IPv4Gateway string   `json:"ipv4_gateway,omitempty"`
	IPv6Addr    string   `json:"ipv6_addr,omitempty"` // CIDR notation
	IPv6Gateway string   `json:"ipv6_gateway,omitempty"`
	VLANAware   bool     `json:"vlan_aware,omitempty"`
	Autostart   bool     `json:"autostart"`
}

// Equal reports whether two bridge configurations are identical.
func (c *BridgeConfig) Equal(other *BridgeConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Description != other.Description ||
		c.IPv4Addr != other.IPv4Addr ||
		c.IPv4Gateway != other.IPv4Gateway ||
		c.IPv6Addr != other.IPv6Addr ||
		c.IPv6Gateway != other.IPv6Gateway ||
		c.VLANAware != other.VLANAware ||
		c.Autostart != other.Autostart {
		return false
	}
	return stringSlicesEqual(c.Ports, other.Ports)
}

// Clone returns a deep copy of the configuration.
func (c *BridgeConfig) Clone() *BridgeConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Ports = append([]string(nil), c.Ports...)
	return &clone
}

// Bridge is a persisted bridge record. Live describes what the system
// currently runs; Pending describes what will run after the next apply.
// An empty bridge (no ports) is valid and used for isolated VM networks.
type Bridge struct {
	Name      string         `json:"name"`
	Status    ResourceStatus `json:"status"`
	LastError string         `json:"last_error,omitempty"`
	Live      *BridgeConfig  `json:"live,omitempty"`
	Pending   *BridgeConfig  `json:"pending,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasPendingChanges reports whether a staged configuration differs from the
// live one. It is derived, never stored, so the flag can't disagree with the
// pending mirror.
func (b *Bridge) HasPendingChanges() bool {
	if b.Pending == nil {
		return false
	}
	return !b.Pending.Equal(b.Live)
}

// InterfaceConfig holds the mutable configuration of a physical or virtual
// network interface.
type InterfaceConfig struct {
	Method    AddrMethod `json:"method"`
	IPv4Addr  string     `json:"ipv4_addr,omitempty"` // CIDR notation
	Gateway   string     `json:"gateway,omitempty"`
	DNS       []string   `json:"dns,omitempty"`
	MTU       int        `json:"mtu,omitempty"`
	Autostart bool       `json:"autostart"`
	Comment   string     `json:"comment,omitempty"`
}

// Equal reports whether two interface configurations are identical.
func (c *InterfaceConfig) Equal(other *InterfaceConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Method != other.Method ||
		c.IPv4Addr != other.IPv4Addr ||
		c.Gateway != other.Gateway ||
		c.MTU != other.MTU ||
		c.Autostart != other.Autostart ||
		c.Comment != other.Comment {
		return false
	}
	return stringSlicesEqual(c.DNS, other.DNS)
}

// Clone returns a deep copy of the configuration.
func (c *InterfaceConfig) Clone() *InterfaceConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.DNS = append([]string(nil), c.DNS...)
	return &clone
}

// Interface is a persisted interface record, discovered from the live system
// or created through a staged change.
type Interface struct {
	Name      string           `json:"name"`
	Status    ResourceStatus   `json:"status"`
	LastError string           `json:"last_error,omitempty"`
	Live      *InterfaceConfig `json:"live,omitempty"`
	Pending   *InterfaceConfig `json:"pending,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// HasPendingChanges reports whether a staged configuration differs from the
// live one.
func (i *Interface) HasPendingChanges() bool {
	if i.Pending == nil {
		return false
	}
	return !i.Pending.Equal(i.Live)
}

// PendingChange is one entry in the change ledger. Current is the serialized
// configuration the change replaces (nil for creates) and Desired the
// serialized configuration it installs (nil for deletes). The ledger holds at
// most one outstanding entry per resource; re-staging replaces Desired in
// place while preserving the Current captured at first staging.
type PendingChange struct {
	ID          string          `json:"id"`
	Kind        ResourceKind    `json:"kind"`
	Action      ChangeAction    `json:"action"`
	ResourceID  string          `json:"resource_id"`
	Current     json.RawMessage `json:"current,omitempty"`
	Desired     json.RawMessage `json:"desired,omitempty"`
	Description string          `json:"description,omitempty"`
	Priority    int             `json:"priority"` // lower applies earlier
	Status      ChangeStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SnapshotScopeAll marks a snapshot covering the whole network state rather
// than a single bridge.
const SnapshotScopeAll = "all"

// LinkState is the captured state of one live interface at snapshot time.
type LinkState struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"` // "bridge", "physical", "vlan", ...
	Existed   bool     `json:"existed"`
	Up        bool     `json:"up"`
	MTU       int      `json:"mtu"`
	Addresses []string `json:"addresses,omitempty"` // CIDR notation, v4 and v6
	Gateway   string   `json:"gateway,omitempty"`
	Ports     []string `json:"ports,omitempty"` // bridge members
}

// Snapshot is an immutable point-in-time capture of network state taken
// before an apply, used as the rollback target.
type Snapshot struct {
	ID           string               `json:"id"`
	Scope        string               `json:"scope"` // bridge name or SnapshotScopeAll
	Links        map[string]LinkState `json:"links"`
	RouteTable   string               `json:"route_table"`
	Status       SnapshotStatus       `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	AppliedAt    *time.Time           `json:"applied_at,omitempty"`
	RolledBackAt *time.Time           `json:"rolled_back_at,omitempty"`
}

// stringSlicesEqual compares two slices order-sensitively; staged port order
// is meaningful.
func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
