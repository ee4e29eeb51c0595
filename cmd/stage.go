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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/we-are-mono/netstage/engine"
	"github.com/we-are-mono/netstage/types"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage a configuration change",
	Long:  `Stages a bridge or interface change in the pending ledger. Nothing touches the system until apply.`,
}

var (
	stageDescription string
	stagePriority    int
	stageDelete      bool

	stageBridgePorts     []string
	stageBridgeIPv4      string
	stageBridgeGw4       string
	stageBridgeIPv6      string
	stageBridgeGw6       string
	stageBridgeVLANAware bool
	stageBridgeAutostart bool
	stageBridgeDesc      string

	stageIfaceMethod    string
	stageIfaceIPv4      string
	stageIfaceGateway   string
	stageIfaceDNS       []string
	stageIfaceMTU       int
	stageIfaceAutostart bool
	stageIfaceComment   string
)

var stageBridgeCmd = &cobra.Command{
	Use:   "bridge <name>",
	Short: "Stage a bridge create, update, or delete",
	Args:  cobra.ExactArgs(1),
	Run:   runStageBridge,
}

var stageInterfaceCmd = &cobra.Command{
	Use:   "interface <name>",
	Short: "Stage an interface configuration or deconfiguration",
	Args:  cobra.ExactArgs(1),
	Run:   runStageInterface,
}

func init() {
	stageCmd.PersistentFlags().StringVar(&stageDescription, "description", "", "Operator note attached to the change")
	stageCmd.PersistentFlags().IntVar(&stagePriority, "priority", 0, "Apply order (lower applies earlier, default 100)")
	stageCmd.PersistentFlags().BoolVar(&stageDelete, "delete", false, "Stage removal instead of configuration")

	stageBridgeCmd.Flags().StringSliceVar(&stageBridgePorts, "ports", nil, "Member interfaces (comma-separated)")
	stageBridgeCmd.Flags().StringVar(&stageBridgeIPv4, "ipv4", "", "IPv4 address in CIDR notation")
	stageBridgeCmd.Flags().StringVar(&stageBridgeGw4, "gateway", "", "IPv4 default gateway")
	stageBridgeCmd.Flags().StringVar(&stageBridgeIPv6, "ipv6", "", "IPv6 address in CIDR notation")
	stageBridgeCmd.Flags().StringVar(&stageBridgeGw6, "gateway6", "", "IPv6 default gateway")
	stageBridgeCmd.Flags().BoolVar(&stageBridgeVLANAware, "vlan-aware", false, "Enable VLAN filtering")
	stageBridgeCmd.Flags().BoolVar(&stageBridgeAutostart, "autostart", true, "Reconfigure at boot")
	stageBridgeCmd.Flags().StringVar(&stageBridgeDesc, "comment", "", "Bridge description")

	stageInterfaceCmd.Flags().StringVar(&stageIfaceMethod, "method", "static", "Addressing method: dhcp, static, or manual")
	stageInterfaceCmd.Flags().StringVar(&stageIfaceIPv4, "ipv4", "", "IPv4 address in CIDR notation")
	stageInterfaceCmd.Flags().StringVar(&stageIfaceGateway, "gateway", "", "IPv4 default gateway")
	stageInterfaceCmd.Flags().StringSliceVar(&stageIfaceDNS, "dns", nil, "DNS servers (comma-separated)")
	stageInterfaceCmd.Flags().IntVar(&stageIfaceMTU, "mtu", 0, "MTU (0 leaves it unchanged)")
	stageInterfaceCmd.Flags().BoolVar(&stageIfaceAutostart, "autostart", true, "Reconfigure at boot")
	stageInterfaceCmd.Flags().StringVar(&stageIfaceComment, "comment", "", "Operator comment")

	stageCmd.AddCommand(stageBridgeCmd)
	stageCmd.AddCommand(stageInterfaceCmd)
	rootCmd.AddCommand(stageCmd)
}

func runStageBridge(cmd *cobra.Command, args []string) {
	name := args[0]

	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	opts := engine.StageOptions{Description: stageDescription, Priority: stagePriority}

	if stageDelete {
		change, err := rt.ledger.StageBridgeDelete(name, opts)
		if err != nil {
			cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
			exitWithError()
			return
		}
		if change == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "[OK] Cancelled unapplied create of bridge %s\n", name)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[OK] Staged deletion of bridge %s (change %s)\n", name, change.ID)
		return
	}

	cfg := &types.BridgeConfig{
		Description: stageBridgeDesc,
		Ports:       stageBridgePorts,
		IPv4Addr:    stageBridgeIPv4,
		IPv4Gateway: stageBridgeGw4,
		IPv6Addr:    stageBridgeIPv6,
		IPv6Gateway: stageBridgeGw6,
		VLANAware:   stageBridgeVLANAware,
		Autostart:   stageBridgeAutostart,
	}

	change, err := rt.ledger.StageBridge(name, cfg, opts)
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[OK] Staged %s of bridge %s (change %s)\n", change.Action, name, change.ID)
}

func runStageInterface(cmd *cobra.Command, args []string) {
	name := args[0]

	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	opts := engine.StageOptions{Description: stageDescription, Priority: stagePriority}

	if stageDelete {
		change, err := rt.ledger.StageInterfaceDelete(name, opts)
		if err != nil {
			cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
			exitWithError()
			return
		}
		if change == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "[OK] Cancelled unapplied change of interface %s\n", name)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[OK] Staged deconfiguration of interface %s (change %s)\n", name, change.ID)
		return
	}

	cfg := &types.InterfaceConfig{
		Method:    types.AddrMethod(stageIfaceMethod),
		IPv4Addr:  stageIfaceIPv4,
		Gateway:   stageIfaceGateway,
		DNS:       stageIfaceDNS,
		MTU:       stageIfaceMTU,
		Autostart: stageIfaceAutostart,
		Comment:   stageIfaceComment,
	}

	change, err := rt.ledger.StageInterface(name, cfg, opts)
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[OK] Staged %s of interface %s (change %s)\n", change.Action, name, change.ID)
}
