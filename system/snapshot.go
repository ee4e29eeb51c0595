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

package system

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/types"
)

// CaptureLinkStates records the current state of every link except loopback.
// The result is the raw material for a rollback snapshot, so the capture is
// all-or-nothing: a link whose state cannot be read fails the whole capture.
// A partial snapshot would make a later restore delete links it never saw.
func (nm *NetworkManager) CaptureLinkStates() (map[string]types.LinkState, error) {
	links, err := nm.netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	states := make(map[string]types.LinkState)
	for _, link := range links {
		if link.Attrs().Name == "lo" {
			continue
		}

		state, err := nm.captureLinkState(link)
		if err != nil {
			return nil, fmt.Errorf("failed to capture state of %s: %w", link.Attrs().Name, err)
		}
		states[link.Attrs().Name] = state
	}

	return states, nil
}

func (nm *NetworkManager) captureLinkState(link netlink.Link) (types.LinkState, error) {
	state := types.LinkState{
		Name:    link.Attrs().Name,
		Existed: true,
		Up:      link.Attrs().Flags&net.FlagUp != 0,
		MTU:     link.Attrs().MTU,
	}

	switch link.Type() {
	case "bridge":
		state.Kind = "bridge"
		if ports, err := nm.BridgePorts(link.Attrs().Name); err == nil {
			state.Ports = ports
		}
	case "vlan":
		state.Kind = "vlan"
	default:
		state.Kind = "physical"
	}

	addrs, err := nm.netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return state, fmt.Errorf("failed to list addresses: %w", err)
	}
	for _, addr := range addrs {
		if addr.IP.IsLinkLocalUnicast() {
			continue
		}
		state.Addresses = append(state.Addresses, addr.IPNet.String())
	}

	routes, err := nm.netlink.RouteList(link, netlink.FAMILY_V4)
	if err == nil {
		for _, route := range routes {
			if route.Dst == nil && route.Gw != nil {
				state.Gateway = route.Gw.String()
				break
			}
		}
	}

	return state, nil
}

// ReadRouteTable returns the kernel routing table as text, for snapshot
// forensics. Capture is best-effort.
func (nm *NetworkManager) ReadRouteTable() (string, error) {
	output, err := nm.cmd.Run("ip", "route", "show")
	if err != nil {
		return "", fmt.Errorf("failed to read route table: %w", err)
	}
	return string(output), nil
}

// RestoreLink converges a single link back to its captured state: MTU,
// up/down, addresses, bridge membership, and default gateway.
func (nm *NetworkManager) RestoreLink(state types.LinkState) error {
	link, err := nm.netlink.LinkByName(state.Name)
	if err != nil {
		if state.Kind == "bridge" {
			// A bridge deleted during apply can be rebuilt from its capture.
			return nm.recreateBridge(state)
		}
		return fmt.Errorf("link %s no longer exists and cannot be recreated", state.Name)
	}

	if state.MTU != 0 && link.Attrs().MTU != state.MTU {
		if err := nm.netlink.LinkSetMTU(link, state.MTU); err != nil {
			return fmt.Errorf("failed to restore MTU on %s: %w", state.Name, err)
		}
	}

	if err := nm.convergeAddresses(link, state.Addresses); err != nil {
		return fmt.Errorf("failed to restore addresses on %s: %w", state.Name, err)
	}

	if state.Kind == "bridge" {
		if err := nm.convergePorts(link, state.Ports); err != nil {
			return fmt.Errorf("failed to restore ports on %s: %w", state.Name, err)
		}
	}

	currentUp := link.Attrs().Flags&net.FlagUp != 0
	if currentUp != state.Up {
		if state.Up {
			err = nm.netlink.LinkSetUp(link)
		} else {
			err = nm.netlink.LinkSetDown(link)
		}
		if err != nil {
			return fmt.Errorf("failed to restore link state on %s: %w", state.Name, err)
		}
	}

	if state.Gateway != "" {
		if err := nm.setDefaultGateway(link, state.Gateway, netlink.FAMILY_V4); err != nil {
			return fmt.Errorf("failed to restore gateway on %s: %w", state.Name, err)
		}
	}

	return nil
}

// DeleteLink removes a link that did not exist at snapshot time.
func (nm *NetworkManager) DeleteLink(name string) error {
	link, err := nm.netlink.LinkByName(name)
	if err != nil {
		return nil
	}
	if err := nm.netlink.LinkDel(link); err != nil {
		return fmt.Errorf("failed to delete link %s: %w", name, err)
	}
	return nil
}

func (nm *NetworkManager) recreateBridge(state types.LinkState) error {
	logger.Info("Recreating bridge from snapshot",
		logger.Field{Key: "bridge", Value: state.Name})

	cfg := &types.BridgeConfig{Ports: state.Ports}
	for _, addr := range state.Addresses {
		ip, _, err := net.ParseCIDR(addr)
		if err != nil {
			continue
		}
		if ip.To4() != nil {
			cfg.IPv4Addr = addr
		} else {
			cfg.IPv6Addr = addr
		}
	}
	cfg.IPv4Gateway = state.Gateway

	if err := nm.ApplyBridgeConfig(state.Name, cfg); err != nil {
		return err
	}
	if !state.Up {
		return nm.SetLinkDown(state.Name)
	}
	return nil
}
