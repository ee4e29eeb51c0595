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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/we-are-mono/netstage/types"
)

func TestCaptureLinkStates(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["lo"] = mockDevice("lo", 1, 0, true)
	nl.Links["br0"] = mockBridge("br0", 2)
	nl.Links["eth0"] = mockDevice("eth0", 3, 2, true)
	nl.Links["eth1"] = mockDevice("eth1", 4, 0, true)
	nl.Addresses["eth1"] = []netlink.Addr{
		mustAddr(t, "10.0.0.5/24"),
		mustAddr(t, "fe80::1/64"),
	}
	nl.Routes = []netlink.Route{{LinkIndex: 4, Gw: net.ParseIP("10.0.0.1")}}

	states, err := nm.CaptureLinkStates()
	require.NoError(t, err)

	assert.NotContains(t, states, "lo")
	require.Contains(t, states, "br0")
	require.Contains(t, states, "eth1")

	br := states["br0"]
	assert.Equal(t, "bridge", br.Kind)
	assert.True(t, br.Existed)
	assert.Equal(t, []string{"eth0"}, br.Ports)

	eth := states["eth1"]
	assert.Equal(t, "physical", eth.Kind)
	assert.True(t, eth.Up)
	assert.Equal(t, 1500, eth.MTU)
	assert.Equal(t, []string{"10.0.0.5/24"}, eth.Addresses, "link-local addresses are not captured")
	assert.Equal(t, "10.0.0.1", eth.Gateway)
}

func TestCaptureLinkStatesFailsWhenLinkUnreadable(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["eth0"] = mockDevice("eth0", 2, 0, true)
	nl.AddrListError = assert.AnError

	// A link whose state cannot be read fails the capture outright. A partial
	// snapshot would be a destructive rollback target.
	states, err := nm.CaptureLinkStates()
	assert.Nil(t, states)
	assert.ErrorContains(t, err, "eth0")
}

func TestRestoreLinkConvergesExisting(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["eth0"] = mockDevice("eth0", 2, 0, false)
	nl.Addresses["eth0"] = []netlink.Addr{mustAddr(t, "10.0.0.5/24")}

	state := types.LinkState{
		Name:      "eth0",
		Kind:      "physical",
		Existed:   true,
		Up:        true,
		MTU:       9000,
		Addresses: []string{"10.0.0.9/24"},
	}
	require.NoError(t, nm.RestoreLink(state))

	assert.Equal(t, 1, nl.LinkSetMTUCalls)
	assert.Equal(t, 1, nl.AddrDelCalls)
	assert.Equal(t, 1, nl.AddrAddCalls)
	assert.Equal(t, 1, nl.LinkSetUpCalls, "link was down but captured up")
}

func TestRestoreLinkRecreatesDeletedBridge(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["eth0"] = mockDevice("eth0", 2, 0, true)

	state := types.LinkState{
		Name:      "br0",
		Kind:      "bridge",
		Existed:   true,
		Up:        true,
		Addresses: []string{"192.168.1.1/24"},
		Gateway:   "192.168.1.254",
		Ports:     []string{"eth0"},
	}
	require.NoError(t, nm.RestoreLink(state))

	assert.Equal(t, 1, nl.LinkAddCalls)
	assert.Contains(t, nl.Links, "br0")
	assert.Equal(t, 1, nl.AddrAddCalls)
	assert.Equal(t, 1, nl.RouteAddCalls)
}

func TestRestoreLinkMissingPhysical(t *testing.T) {
	nm, _, _, _ := newTestManager()

	state := types.LinkState{Name: "eth0", Kind: "physical", Existed: true}
	err := nm.RestoreLink(state)
	assert.ErrorContains(t, err, "no longer exists and cannot be recreated")
}

func TestDeleteLink(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["br0"] = mockBridge("br0", 1)

	require.NoError(t, nm.DeleteLink("br0"))
	assert.NotContains(t, nl.Links, "br0")

	// Deleting an absent link is not an error.
	require.NoError(t, nm.DeleteLink("br0"))
	assert.Equal(t, 1, nl.LinkDelCalls)
}

func TestReadRouteTable(t *testing.T) {
	nm, _, _, cr := newTestManager()
	cr.SetOutput("ip", []string{"route", "show"}, []byte("default via 10.0.0.1 dev eth0\n"))

	table, err := nm.ReadRouteTable()
	require.NoError(t, err)
	assert.Contains(t, table, "default via 10.0.0.1")
}

func TestDiscoverLinks(t *testing.T) {
	nm, nl, _, _ := newTestManager()
	nl.Links["lo"] = mockDevice("lo", 1, 0, true)
	nl.Links["br0"] = mockBridge("br0", 2)
	nl.Links["eth0"] = mockDevice("eth0", 3, 2, true)
	nl.Addresses["eth0"] = []netlink.Addr{mustAddr(t, "10.0.0.5/24")}

	links, err := nm.DiscoverLinks()
	require.NoError(t, err)
	require.Len(t, links, 2)

	byName := make(map[string]DiscoveredLink)
	for _, l := range links {
		byName[l.Name] = l
	}

	assert.Equal(t, "bridge", byName["br0"].Kind)
	assert.Equal(t, "physical", byName["eth0"].Kind)
	assert.Equal(t, "br0", byName["eth0"].Master)
	assert.Equal(t, []string{"10.0.0.5/24"}, byName["eth0"].Addresses)
	assert.True(t, byName["eth0"].Up)
}
