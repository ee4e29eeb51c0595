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
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ConnectivityChecker verifies that a target is reachable after an apply.
type ConnectivityChecker interface {
	Check(ctx context.Context, target string) error
}

// PingChecker verifies reachability with ICMP echo requests. Unprivileged
// UDP ping is used so the engine does not need raw socket capability for
// verification.
type PingChecker struct {
	Count   int
	Timeout time.Duration
}

// NewPingChecker creates a PingChecker with the given echo count and
// per-target timeout.
func NewPingChecker(count int, timeout time.Duration) *PingChecker {
	if count <= 0 {
		count = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingChecker{Count: count, Timeout: timeout}
}

// Check pings the target and fails if no echo reply arrives.
func (p *PingChecker) Check(ctx context.Context, target string) error {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return fmt.Errorf("failed to create pinger for %s: %w", target, err)
	}

	pinger.Count = p.Count
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", target, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return fmt.Errorf("no echo reply from %s (%d sent)", target, stats.PacketsSent)
	}

	return nil
}
