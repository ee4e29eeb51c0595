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
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply all staged changes atomically",
	Long: `Applies every pending change in priority order. A network snapshot is
captured first; if a step fails or connectivity verification does not pass,
the system is rolled back to it.`,
	Run: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	// SIGINT stops between steps and triggers rollback of what ran.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Applying staged changes...")

	result, err := rt.applier.ApplyAll(ctx)
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		if result != nil && result.RollbackPerformed {
			fmt.Fprintf(w, "[WARN] Rolled back to snapshot %s\n", shortID(result.SnapshotID))
			for link, ferr := range result.RestoreFailures {
				fmt.Fprintf(w, "[WARN]   %s could not be restored: %v\n", link, ferr)
			}
		}
		exitWithError()
		return
	}

	if result.Applied == 0 {
		fmt.Fprintln(w, "[OK] Nothing to apply")
		return
	}

	fmt.Fprintf(w, "[OK] Applied %d change(s), snapshot %s\n", result.Applied, shortID(result.SnapshotID))
}
