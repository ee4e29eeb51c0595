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
)

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Reconfigure autostart resources from stored state",
	Long: `Reapplies the live configuration of every autostart-flagged bridge and
interface. Intended to run at boot, before any staged changes are applied.`,
	Run: runAutostart,
}

func init() {
	rootCmd.AddCommand(autostartCmd)
}

func runAutostart(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	restored, err := engine.RestoreAutostart(rt.store, rt.nm)
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[OK] Restored %d resource(s)\n", restored)
}
