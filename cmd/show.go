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
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/we-are-mono/netstage/types"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show managed resources",
}

var showBridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "List managed bridges with live and pending configuration",
	Run:   runShowBridges,
}

var showInterfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List managed interfaces",
	Run:   runShowInterfaces,
}

var showLinksCmd = &cobra.Command{
	Use:   "links",
	Short: "List links discovered on the running system",
	Run:   runShowLinks,
}

func init() {
	showCmd.AddCommand(showBridgesCmd)
	showCmd.AddCommand(showInterfacesCmd)
	showCmd.AddCommand(showLinksCmd)
	rootCmd.AddCommand(showCmd)
}

func runShowBridges(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	bridges, err := rt.store.ListBridges()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	w := cmd.OutOrStdout()
	if len(bridges) == 0 {
		fmt.Fprintln(w, "No managed bridges.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tPENDING\tPORTS\tIPV4\tIPV6")
	for _, b := range bridges {
		cfg := b.Live
		if cfg == nil {
			cfg = b.Pending
		}
		ports, ipv4, ipv6 := "-", "-", "-"
		if cfg != nil {
			if len(cfg.Ports) > 0 {
				ports = strings.Join(cfg.Ports, ",")
			}
			if cfg.IPv4Addr != "" {
				ipv4 = cfg.IPv4Addr
			}
			if cfg.IPv6Addr != "" {
				ipv6 = cfg.IPv6Addr
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Name, b.Status, yesNo(b.HasPendingChanges()), ports, ipv4, ipv6)
	}
	tw.Flush()

	printErrors(w, bridgeErrors(bridges))
}

func runShowInterfaces(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	ifaces, err := rt.store.ListInterfaces()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	w := cmd.OutOrStdout()
	if len(ifaces) == 0 {
		fmt.Fprintln(w, "No managed interfaces.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tPENDING\tMETHOD\tIPV4\tGATEWAY")
	for _, iface := range ifaces {
		cfg := iface.Live
		if cfg == nil {
			cfg = iface.Pending
		}
		method, ipv4, gw := "-", "-", "-"
		if cfg != nil {
			method = string(cfg.Method)
			if cfg.IPv4Addr != "" {
				ipv4 = cfg.IPv4Addr
			}
			if cfg.Gateway != "" {
				gw = cfg.Gateway
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			iface.Name, iface.Status, yesNo(iface.HasPendingChanges()), method, ipv4, gw)
	}
	tw.Flush()

	printErrors(w, interfaceErrors(ifaces))
}

func runShowLinks(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	links, err := rt.nm.DiscoverLinks()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	w := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSTATE\tMTU\tMASTER\tADDRESSES")
	for _, link := range links {
		state := "down"
		if link.Up {
			state = "up"
		}
		master, addrs := "-", "-"
		if link.Master != "" {
			master = link.Master
		}
		if len(link.Addresses) > 0 {
			addrs = strings.Join(link.Addresses, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			link.Name, link.Kind, state, link.MTU, master, addrs)
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func bridgeErrors(bridges []*types.Bridge) map[string]string {
	errs := make(map[string]string)
	for _, b := range bridges {
		if b.LastError != "" {
			errs[b.Name] = b.LastError
		}
	}
	return errs
}

func interfaceErrors(ifaces []*types.Interface) map[string]string {
	errs := make(map[string]string)
	for _, iface := range ifaces {
		if iface.LastError != "" {
			errs[iface.Name] = iface.LastError
		}
	}
	return errs
}

func printErrors(w io.Writer, errs map[string]string) {
	for name, msg := range errs {
		fmt.Fprintf(w, "[WARN] %s: %s\n", name, msg)
	}
}
