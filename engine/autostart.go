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
	"time"

	"github.com/we-are-mono/netstage/logger"
	"github.com/we-are-mono/netstage/store"
	"github.com/we-are-mono/netstage/system"
	"github.com/we-are-mono/netstage/types"
)

// RestoreAutostart reconfigures every autostart-flagged resource from its
// stored live configuration. Run at boot: kernel state does not survive a
// reboot, the database does. Failures are recorded per resource and do not
// stop the others.
func RestoreAutostart(st *store.Store, nm *system.NetworkManager) (int, error) {
	restored := 0
	now := time.Now()

	bridges, err := st.ListBridges()
	if err != nil {
		return 0, err
	}
	for _, bridge := range bridges {
		if bridge.Live == nil || !bridge.Live.Autostart {
			continue
		}
		if err := nm.ApplyBridgeConfig(bridge.Name, bridge.Live); err != nil {
			logger.Error("Failed to restore bridge",
				logger.Field{Key: "bridge", Value: bridge.Name},
				logger.Field{Key: "error", Value: err.Error()})
			bridge.Status = types.StatusError
			bridge.LastError = err.Error()
			bridge.UpdatedAt = now
			_ = st.SaveBridge(bridge) //nolint:errcheck
			continue
		}
		bridge.Status = types.StatusActive
		bridge.LastError = ""
		bridge.UpdatedAt = now
		if err := st.SaveBridge(bridge); err != nil {
			return restored, err
		}
		restored++
	}

	ifaces, err := st.ListInterfaces()
	if err != nil {
		return restored, err
	}
	for _, iface := range ifaces {
		if iface.Live == nil || !iface.Live.Autostart {
			continue
		}
		if err := nm.ApplyInterfaceConfig(iface.Name, iface.Live); err != nil {
			logger.Error("Failed to restore interface",
				logger.Field{Key: "interface", Value: iface.Name},
				logger.Field{Key: "error", Value: err.Error()})
			iface.Status = types.StatusError
			iface.LastError = err.Error()
			iface.UpdatedAt = now
			_ = st.SaveInterface(iface) //nolint:errcheck
			continue
		}
		iface.Status = types.StatusActive
		iface.LastError = ""
		iface.UpdatedAt = now
		if err := st.SaveInterface(iface); err != nil {
			return restored, err
		}
		restored++
	}

	logger.Info("Autostart restore finished", logger.Field{Key: "restored", Value: restored})
	return restored, nil
}
