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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List captured network snapshots",
	Run:   runSnapshots,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore a snapshot by ID",
	Long: `Converges the system back to the captured state. Restore is best-effort
per link; failures are reported individually.`,
	Args: cobra.ExactArgs(1),
	Run:  runRestore,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	snaps, err := rt.store.ListSnapshots()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	w := cmd.OutOrStdout()
	if len(snaps) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCOPE\tSTATUS\tLINKS\tCAPTURED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			shortID(s.ID), s.Scope, s.Status, len(s.Links),
			s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func runRestore(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	id, err := resolveSnapshotID(rt, args[0])
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Restoring snapshot %s...\n", shortID(id))

	result, err := rt.coordinator.RestoreByID(id)
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	fmt.Fprintf(w, "[OK] Restored %d link(s)\n", len(result.Restored))
	for link, ferr := range result.Failures {
		fmt.Fprintf(w, "[WARN] %s could not be restored: %v\n", link, ferr)
	}
	if result.Err() != nil {
		exitWithError()
	}
}

// resolveSnapshotID expands a snapshot ID prefix.
func resolveSnapshotID(rt *runtime, prefix string) (string, error) {
	snaps, err := rt.store.ListSnapshots()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, s := range snaps {
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no snapshot matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("snapshot ID %q is ambiguous (%d matches)", prefix, len(matches))
	}
}
