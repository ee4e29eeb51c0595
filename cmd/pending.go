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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/we-are-mono/netstage/types"
)

var pendingHistory bool

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List staged changes in apply order",
	Run:   runPending,
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingHistory, "history", false, "Show resolved changes instead")
	rootCmd.AddCommand(pendingCmd)
}

func runPending(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	var changes []*types.PendingChange
	if pendingHistory {
		changes, err = rt.ledger.History(50)
	} else {
		changes, err = rt.ledger.List()
	}
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	printChanges(cmd.OutOrStdout(), changes)
}

func printChanges(w io.Writer, changes []*types.PendingChange) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tACTION\tRESOURCE\tPRIORITY\tSTATUS\tSTAGED")
	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(c.ID), c.Kind, c.Action, c.ResourceID, c.Priority, c.Status,
			c.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

// shortID truncates a UUID for table display; full IDs remain valid inputs.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
