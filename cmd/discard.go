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

	"github.com/spf13/cobra"
)

var discardAll bool

var discardCmd = &cobra.Command{
	Use:   "discard [change-id]",
	Short: "Abandon a staged change",
	Long:  `Abandons a pending change without touching the system. Accepts a change ID prefix.`,
	Args:  cobra.MaximumNArgs(1),
	Run:   runDiscard,
}

func init() {
	discardCmd.Flags().BoolVar(&discardAll, "all", false, "Discard every pending change")
	rootCmd.AddCommand(discardCmd)
}

func runDiscard(cmd *cobra.Command, args []string) {
	rt, err := openRuntime()
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}
	defer rt.Close()

	if discardAll {
		n, err := rt.ledger.DiscardAll()
		if err != nil {
			cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
			exitWithError()
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[OK] Discarded %d change(s)\n", n)
		return
	}

	if len(args) == 0 {
		cmd.PrintErrln("[ERROR] change ID required (or use --all)")
		exitWithError()
		return
	}

	id, err := resolveChangeID(rt, args[0])
	if err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	if err := rt.ledger.Discard(id); err != nil {
		cmd.PrintErrln(fmt.Sprintf("[ERROR] %v", err))
		exitWithError()
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "[OK] Discarded change %s\n", shortID(id))
}

// resolveChangeID expands a change ID prefix against the pending ledger.
func resolveChangeID(rt *runtime, prefix string) (string, error) {
	changes, err := rt.ledger.List()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, c := range changes {
		if strings.HasPrefix(c.ID, prefix) {
			matches = append(matches, c.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no pending change matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("change ID %q is ambiguous (%d matches)", prefix, len(matches))
	}
}
