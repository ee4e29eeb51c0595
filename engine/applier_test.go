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
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"

	"github.com/we-are-mono/netstage/config"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/system"
	"github.com/we-are-mono/netstage/types"
)

// testEngine wires a real store and ledger over mocked system clients.
type testEngine struct {
	store       *store.Store
	nl          *system.MockNetlinkClient
	sc          *system.MockSysctlClient
	cr          *system.MockCommandRunner
	nm          *system.NetworkManager
	ledger      *Ledger
	coordinator *Coordinator
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "netstage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	nl := system.NewMockNetlinkClient()
	sc := system.NewMockSysctlClient()
	cr := system.NewMockCommandRunner()
	nm := system.NewNetworkManager(nl, sc, cr)

	return &testEngine{
		store:       st,
		nl:          nl,
		sc:          sc,
		cr:          cr,
		nm:          nm,
		ledger:      NewLedger(st),
		coordinator: NewCoordinator(st, nm),
	}
}

func (e *testEngine) applier(checker ConnectivityChecker, cfg *config.Engine) *Applier {
	if cfg == nil {
		cfg = &config.Engine{VerifyTimeoutSeconds: 2, PingCount: 1, SnapshotKeep: 5}
	}
	return NewApplier(e.store, e.nm, e.coordinator, checker, cfg)
}

func (e *testEngine) addDevice(name string, index int) {
	attrs := netlink.LinkAttrs{Name: name, Index: index, MTU: 1500, Flags: net.FlagUp}
	e.nl.Links[name] = &netlink.Device{LinkAttrs: attrs}
}

// fakeChecker records the verification targets and returns a fixed error.
// An optional hook runs once, before the first result is returned.
type fakeChecker struct {
	mu      sync.Mutex
	targets []string
	err     error
	onCheck func()
}

func (f *fakeChecker) Check(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.onCheck != nil {
		f.onCheck()
		f.onCheck = nil
	}
	return f.err
}

// blockingChecker holds verification open until released, to exercise the
// single-apply guarantee.
type blockingChecker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingChecker) Check(ctx context.Context, target string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestApplyAllEmptyLedger(t *testing.T) {
	e := newTestEngine(t)
	a := e.applier(&fakeChecker{}, nil)

	result, err := a.ApplyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Empty(t, result.SnapshotID)

	// A no-op apply must not leave a snapshot behind.
	snaps, err := e.store.ListSnapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestApplyAllCommitsSuccessfulRun(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)

	checker := &fakeChecker{}
	a := e.applier(checker, nil)

	cfg := &types.BridgeConfig{
		Ports:       []string{"eth0"},
		IPv4Addr:    "192.168.1.1/24",
		IPv4Gateway: "192.168.1.254",
	}
	_, err := e.ledger.StageBridge("br0", cfg, StageOptions{})
	require.NoError(t, err)

	result, err := a.ApplyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.False(t, result.RollbackPerformed)
	require.NotEmpty(t, result.SnapshotID)

	// The desired configuration was pushed to the system.
	assert.Contains(t, e.nl.Links, "br0")

	// Record promoted: live mirrors desired, no pending remainder.
	bridge, err := e.store.GetBridge("br0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, bridge.Status)
	assert.True(t, cfg.Equal(bridge.Live))
	assert.Nil(t, bridge.Pending)

	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// With no explicit target, verification pings the new gateway.
	assert.Equal(t, []string{"192.168.1.254"}, checker.targets)

	snap, err := e.store.GetSnapshot(result.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotApplied, snap.Status)
	assert.NotNil(t, snap.AppliedAt)
}

func TestApplyAllStepFailureRollsBack(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)

	a := e.applier(&fakeChecker{}, nil)

	bridgeCfg := &types.BridgeConfig{Ports: []string{"eth0"}, IPv4Addr: "192.168.1.1/24"}
	bridgeChange, err := e.ledger.StageBridge("br0", bridgeCfg, StageOptions{Priority: 10})
	require.NoError(t, err)

	// eth9 does not exist on the system, so this step fails.
	ifaceChange, err := e.ledger.StageInterface("eth9", &types.InterfaceConfig{
		Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24",
	}, StageOptions{})
	require.NoError(t, err)

	result, err := a.ApplyAll(context.Background())

	var stepErr *ApplyStepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "eth9", stepErr.Resource)
	assert.True(t, result.RollbackPerformed)

	// The bridge created during the run is gone again.
	assert.NotContains(t, e.nl.Links, "br0")

	// The applied-then-reverted change is pending again, rebuilt exactly,
	// and the record carries the error that forced the rollback.
	reverted, err := e.store.GetChange(bridgeChange.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangePending, reverted.Status)

	bridge, err := e.store.GetBridge("br0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, bridge.Status)
	assert.Contains(t, bridge.LastError, "eth9")
	assert.Nil(t, bridge.Live)
	assert.True(t, bridgeCfg.Equal(bridge.Pending))

	// The failed change stays failed and its record carries the error.
	failed, err := e.store.GetChange(ifaceChange.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangeFailed, failed.Status)

	iface, err := e.store.GetInterface("eth9")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, iface.Status)
	assert.NotEmpty(t, iface.LastError)

	// The ledger is non-empty after rollback: the work is not lost.
	pending, err := e.ledger.List()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bridgeChange.ID, pending[0].ID)

	snap, err := e.store.GetSnapshot(result.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotRolledBack, snap.Status)
}

func TestApplyAllVerificationFailureRestoresRecords(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)
	e.nl.Links["br0"] = &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "br0", Index: 1, MTU: 1500, Flags: net.FlagUp}}

	// br0 is live with a known-good configuration.
	liveCfg := &types.BridgeConfig{IPv4Addr: "10.0.0.1/24"}
	now := time.Now()
	require.NoError(t, e.store.SaveBridge(&types.Bridge{
		Name: "br0", Status: types.StatusActive, Live: liveCfg, CreatedAt: now, UpdatedAt: now,
	}))
	addr, err := netlink.ParseAddr("10.0.0.1/24")
	require.NoError(t, err)
	e.nl.Addresses["br0"] = []netlink.Addr{*addr}

	checker := &fakeChecker{err: context.DeadlineExceeded}
	a := e.applier(checker, &config.Engine{
		VerifyTarget: "10.0.0.254", VerifyTimeoutSeconds: 1, SnapshotKeep: 5,
	})

	desired := &types.BridgeConfig{IPv4Addr: "192.168.1.1/24"}
	change, err := e.ledger.StageBridge("br0", desired, StageOptions{})
	require.NoError(t, err)

	result, err := a.ApplyAll(context.Background())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "10.0.0.254", verr.Target)
	assert.True(t, result.RollbackPerformed)

	// Record rebuilt field for field from the ledger entry's captures, with
	// the verification failure attached for the operator.
	bridge, err := e.store.GetBridge("br0")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, bridge.Status)
	assert.Contains(t, bridge.LastError, "10.0.0.254")
	assert.True(t, liveCfg.Equal(bridge.Live), "live must match pre-apply state")
	assert.True(t, desired.Equal(bridge.Pending), "desired must remain staged")

	reverted, err := e.store.GetChange(change.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangePending, reverted.Status)

	pending, err := e.ledger.List()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestApplyAllPersistsRestoreFailures(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)
	e.addDevice("eth1", 3)

	now := time.Now()
	require.NoError(t, e.store.SaveInterface(&types.Interface{
		Name: "eth1", Status: types.StatusActive,
		Live:      &types.InterfaceConfig{Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24"},
		CreatedAt: now, UpdatedAt: now,
	}))

	// Verification fails, and by then eth1 has vanished from the system, so
	// the rollback cannot bring it back.
	checker := &fakeChecker{
		err:     context.DeadlineExceeded,
		onCheck: func() { delete(e.nl.Links, "eth1") },
	}
	a := e.applier(checker, &config.Engine{
		VerifyTarget: "10.0.0.254", VerifyTimeoutSeconds: 1, SnapshotKeep: 5,
	})

	_, err := e.ledger.StageBridge("br0", &types.BridgeConfig{IPv4Addr: "192.168.1.1/24"}, StageOptions{})
	require.NoError(t, err)

	result, err := a.ApplyAll(context.Background())

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, result.RestoreFailures, "eth1")
	assert.NotContains(t, result.RestoreFailures, "eth0")

	// The link that did not recover is flagged on its own record.
	iface, err := e.store.GetInterface("eth1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, iface.Status)
	assert.Contains(t, iface.LastError, "rollback failed")
}

func TestApplyAllDeletePromotion(t *testing.T) {
	e := newTestEngine(t)
	e.nl.Links["br0"] = &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: "br0", Index: 1, MTU: 1500, Flags: net.FlagUp}}

	liveCfg := &types.BridgeConfig{IPv4Addr: "10.0.0.1/24"}
	now := time.Now()
	require.NoError(t, e.store.SaveBridge(&types.Bridge{
		Name: "br0", Status: types.StatusActive, Live: liveCfg, CreatedAt: now, UpdatedAt: now,
	}))

	_, err := e.ledger.StageBridgeDelete("br0", StageOptions{})
	require.NoError(t, err)

	a := e.applier(&fakeChecker{}, nil)
	result, err := a.ApplyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	assert.NotContains(t, e.nl.Links, "br0")
	_, err = e.store.GetBridge("br0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyAllSnapshotFailureAborts(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ledger.StageBridge("br0", &types.BridgeConfig{}, StageOptions{})
	require.NoError(t, err)

	e.nl.LinkListError = assert.AnError

	a := e.applier(&fakeChecker{}, nil)
	_, err = a.ApplyAll(context.Background())

	var serr *SnapshotError
	require.ErrorAs(t, err, &serr)

	// Nothing was persisted and nothing was applied.
	snaps, err := e.store.ListSnapshots()
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Equal(t, 0, e.nl.LinkAddCalls)
}

func TestApplyAllRejectsConcurrentRun(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)

	checker := &blockingChecker{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	a := e.applier(checker, &config.Engine{
		VerifyTarget: "10.0.0.254", VerifyTimeoutSeconds: 30, SnapshotKeep: 5,
	})

	_, err := e.ledger.StageInterface("eth0", &types.InterfaceConfig{
		Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24",
	}, StageOptions{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = a.ApplyAll(context.Background()) //nolint:errcheck
	}()

	select {
	case <-checker.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first apply never reached verification")
	}

	_, err = a.ApplyAll(context.Background())
	assert.ErrorIs(t, err, ErrApplyInProgress)

	close(checker.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first apply never finished")
	}
}

func TestApplyAllHonorsCancellation(t *testing.T) {
	e := newTestEngine(t)
	e.addDevice("eth0", 2)

	_, err := e.ledger.StageInterface("eth0", &types.InterfaceConfig{
		Method: types.MethodStatic, IPv4Addr: "10.0.0.5/24",
	}, StageOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := e.applier(&fakeChecker{}, nil)
	result, err := a.ApplyAll(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	var stepErr *ApplyStepError
	assert.ErrorAs(t, err, &stepErr)
	assert.True(t, result.RollbackPerformed)
	assert.Equal(t, 0, result.Applied)
}

func TestVerifyTargetsDeduplicatesGateways(t *testing.T) {
	e := newTestEngine(t)
	a := e.applier(&fakeChecker{}, nil)

	mk := func(kind types.ResourceKind, desired string) *types.PendingChange {
		return &types.PendingChange{Kind: kind, Desired: []byte(desired)}
	}
	applied := []*types.PendingChange{
		mk(types.KindBridge, `{"ipv4_gateway":"192.168.1.254"}`),
		mk(types.KindBridge, `{"ipv4_gateway":"192.168.1.254","ipv6_gateway":"fd00::1"}`),
		mk(types.KindInterface, `{"method":"static","gateway":"10.0.0.1"}`),
		mk(types.KindInterface, `{"method":"dhcp"}`),
	}

	targets := a.verifyTargets(applied)
	assert.Equal(t, []string{"192.168.1.254", "fd00::1", "10.0.0.1"}, targets)
}

func TestVerifyTargetsPrefersExplicitTarget(t *testing.T) {
	e := newTestEngine(t)
	a := e.applier(&fakeChecker{}, &config.Engine{
		VerifyTarget: "1.1.1.1", VerifyTimeoutSeconds: 1, SnapshotKeep: 5,
	})

	targets := a.verifyTargets([]*types.PendingChange{
		{Kind: types.KindBridge, Desired: []byte(`{"ipv4_gateway":"192.168.1.254"}`)},
	})
	assert.Equal(t, []string{"1.1.1.1"}, targets)
}
