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
	"fmt"

	"github.com/we-are-mono/netstage/system"
	"github.com/we-are-mono/netstage/types"
)

// applyCommand is one executable apply step. Each ledger entry translates to
// exactly one command.
type applyCommand interface {
	describe() string
	run(nm *system.NetworkManager) error
}

// buildCommand translates a ledger entry into its apply step.
func buildCommand(change *types.PendingChange) (applyCommand, error) {
	switch change.Kind {
	case types.KindBridge:
		if change.Action == types.ActionDelete {
			return &bridgeDeleteCommand{name: change.ResourceID}, nil
		}
		var cfg types.BridgeConfig
		if err := json.Unmarshal(change.Desired, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal bridge config: %w", err)
		}
		return &bridgeApplyCommand{name: change.ResourceID, cfg: &cfg}, nil
	case types.KindInterface:
		if change.Action == types.ActionDelete {
			return &interfaceDeconfigureCommand{name: change.ResourceID}, nil
		}
		var cfg types.InterfaceConfig
		if err := json.Unmarshal(change.Desired, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal interface config: %w", err)
		}
		return &interfaceApplyCommand{name: change.ResourceID, cfg: &cfg}, nil
	default:
		return nil, fmt.Errorf("unknown resource kind: %s", change.Kind)
	}
}

type bridgeApplyCommand struct {
	name string
	cfg  *types.BridgeConfig
}

func (c *bridgeApplyCommand) describe() string {
	return "configure bridge " + c.name
}

func (c *bridgeApplyCommand) run(nm *system.NetworkManager) error {
	return nm.ApplyBridgeConfig(c.name, c.cfg)
}

type bridgeDeleteCommand struct {
	name string
}

func (c *bridgeDeleteCommand) describe() string {
	return "delete bridge " + c.name
}

func (c *bridgeDeleteCommand) run(nm *system.NetworkManager) error {
	return nm.DeleteBridge(c.name)
}

type interfaceApplyCommand struct {
	name string
	cfg  *types.InterfaceConfig
}

func (c *interfaceApplyCommand) describe() string {
	return "configure interface " + c.name
}

func (c *interfaceApplyCommand) run(nm *system.NetworkManager) error {
	return nm.ApplyInterfaceConfig(c.name, c.cfg)
}

type interfaceDeconfigureCommand struct {
	name string
}

func (c *interfaceDeconfigureCommand) describe() string {
	return "deconfigure interface " + c.name
}

func (c *interfaceDeconfigureCommand) run(nm *system.NetworkManager) error {
	return nm.DeconfigureInterface(c.name)
}
