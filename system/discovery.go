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
)

// DiscoveredLink describes a link found on the running system.
type DiscoveredLink struct {
	Name      string
	Kind      string // "bridge", "vlan", "physical"
	MAC       string
	Up        bool
	MTU       int
	Master    string   // enslaving bridge, if any
	Addresses []string // CIDR notation
}

// DiscoverLinks enumerates the links present on the system, excluding
// loopback. Used to seed the database on first run and by status output.
func (nm *NetworkManager) DiscoverLinks() ([]DiscoveredLink, error) {
	links, err := nm.netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	byIndex := make(map[int]string)
	for _, link := range links {
		byIndex[link.Attrs().Index] = link.Attrs().Name
	}

	var discovered []DiscoveredLink
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Name == "lo" {
			continue
		}

		d := DiscoveredLink{
			Name: attrs.Name,
			MAC:  attrs.HardwareAddr.String(),
			Up:   attrs.Flags&net.FlagUp != 0,
			MTU:  attrs.MTU,
		}

		switch link.Type() {
		case "bridge":
			d.Kind = "bridge"
		case "vlan":
			d.Kind = "vlan"
		default:
			d.Kind = "physical"
		}

		if attrs.MasterIndex > 0 {
			d.Master = byIndex[attrs.MasterIndex]
		}

		addrs, err := nm.netlink.AddrList(link, netlink.FAMILY_ALL)
		if err == nil {
			for _, addr := range addrs {
				if addr.IP.IsLinkLocalUnicast() {
					continue
				}
				d.Addresses = append(d.Addresses, addr.IPNet.String())
			}
		}

		discovered = append(discovered, d)
	}

	return discovered, nil
}
