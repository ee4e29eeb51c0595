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

// Package validation provides reusable validation helpers for netstage
// configuration types. Staged configurations are validated here before they
// are accepted into the change ledger.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/we-are-mono/netstage/types"
)

// Linux IFNAMSIZ limits interface names to 15 visible characters.
const maxLinkNameLen = 15

var linkNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// ValidateLinkName validates a bridge or interface name.
func ValidateLinkName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxLinkNameLen {
		return fmt.Errorf("name %s too long (max %d characters)", name, maxLinkNameLen)
	}
	if !linkNameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %s (must start with a letter, followed by letters, digits, '_', '.' or '-')", name)
	}
	return nil
}

// ValidateIP validates that a string is a valid IPv4 or IPv6 address.
func ValidateIP(ip string) error {
	if ip == "" {
		return fmt.Errorf("IP address cannot be empty")
	}

	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}

	return nil
}

// ValidateCIDR validates that a string is valid IPv4 CIDR notation.
func ValidateCIDR(cidr string) error {
	if cidr == "" {
		return fmt.Errorf("CIDR cannot be empty")
	}

	ip, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR notation %s: %w", cidr, err)
	}

	if ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 CIDR %s (not an IPv4 address)", cidr)
	}

	return nil
}

// ValidateCIDR6 validates that a string is valid IPv6 CIDR notation.
func ValidateCIDR6(cidr string) error {
	if cidr == "" {
		return fmt.Errorf("CIDR cannot be empty")
	}

	ip, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR notation %s: %w", cidr, err)
	}

	if ip.To4() != nil || !strings.Contains(cidr, ":") {
		return fmt.Errorf("invalid IPv6 CIDR %s (not an IPv6 address)", cidr)
	}

	return nil
}

// ValidateGateway validates an IPv4 gateway address.
func ValidateGateway(gw string) error {
	ip := net.ParseIP(gw)
	if ip == nil {
		return fmt.Errorf("invalid gateway address: %s", gw)
	}
	if ip.To4() == nil {
		return fmt.Errorf("invalid IPv4 gateway %s (not an IPv4 address)", gw)
	}
	return nil
}

// ValidateGateway6 validates an IPv6 gateway address.
func ValidateGateway6(gw string) error {
	ip := net.ParseIP(gw)
	if ip == nil {
		return fmt.Errorf("invalid gateway address: %s", gw)
	}
	if ip.To4() != nil {
		return fmt.Errorf("invalid IPv6 gateway %s (not an IPv6 address)", gw)
	}
	return nil
}

// ValidateMTU validates that an MTU value is within reasonable bounds.
// RFC 791: Minimum IPv4 MTU is 68 bytes
// Practical maximum is 65535 (jumbo frames go higher but are uncommon)
func ValidateMTU(mtu int) error {
	if mtu < 68 || mtu > 65535 {
		return fmt.Errorf("MTU %d out of valid range [68, 65535]", mtu)
	}
	return nil
}

// ValidateAddrMethod validates an interface addressing method.
func ValidateAddrMethod(method types.AddrMethod) error {
	switch method {
	case types.MethodDHCP, types.MethodStatic, types.MethodManual:
		return nil
	default:
		return fmt.Errorf("invalid addressing method %q (must be dhcp, static, or manual)", method)
	}
}

// ValidateBridgeConfig validates a staged bridge configuration.
// All problems are collected and reported together.
func ValidateBridgeConfig(name string, cfg *types.BridgeConfig) error {
	ec := NewCollector().WithContext("bridge " + name)

	ec.Check(ValidateLinkName(name))

	if cfg == nil {
		ec.Check(fmt.Errorf("configuration cannot be empty"))
		return ec.Error()
	}

	for _, port := range cfg.Ports {
		ec.CheckMsg(ValidateLinkName(port), "port")
	}

	if cfg.IPv4Addr != "" {
		ec.Check(ValidateCIDR(cfg.IPv4Addr))
	}
	if cfg.IPv4Gateway != "" {
		ec.Check(ValidateGateway(cfg.IPv4Gateway))
	}
	if cfg.IPv6Addr != "" {
		ec.Check(ValidateCIDR6(cfg.IPv6Addr))
	}
	if cfg.IPv6Gateway != "" {
		ec.Check(ValidateGateway6(cfg.IPv6Gateway))
	}

	// A gateway without an address on the same family is unreachable.
	if cfg.IPv4Gateway != "" && cfg.IPv4Addr == "" {
		ec.Check(fmt.Errorf("IPv4 gateway requires an IPv4 address"))
	}
	if cfg.IPv6Gateway != "" && cfg.IPv6Addr == "" {
		ec.Check(fmt.Errorf("IPv6 gateway requires an IPv6 address"))
	}

	return ec.Error()
}

// ValidateInterfaceConfig validates a staged interface configuration.
func ValidateInterfaceConfig(name string, cfg *types.InterfaceConfig) error {
	ec := NewCollector().WithContext("interface " + name)

	ec.Check(ValidateLinkName(name))

	if cfg == nil {
		ec.Check(fmt.Errorf("configuration cannot be empty"))
		return ec.Error()
	}

	ec.Check(ValidateAddrMethod(cfg.Method))

	if cfg.Method == types.MethodStatic && cfg.IPv4Addr == "" {
		ec.Check(fmt.Errorf("static addressing requires an IPv4 address"))
	}
	if cfg.IPv4Addr != "" {
		ec.Check(ValidateCIDR(cfg.IPv4Addr))
	}
	if cfg.Gateway != "" {
		ec.Check(ValidateGateway(cfg.Gateway))
	}
	for _, dns := range cfg.DNS {
		ec.CheckMsg(ValidateIP(dns), "DNS server")
	}
	if cfg.MTU != 0 {
		ec.Check(ValidateMTU(cfg.MTU))
	}

	return ec.Error()
}
