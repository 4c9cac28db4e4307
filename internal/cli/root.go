// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package cli wires together the hydroctl root Cobra command and global CLI
// options.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/offish/hydroplant-controller/internal/cli/commands"
)

// NewRootCommand constructs the hydroctl root Cobra command.
func NewRootCommand() *cobra.Command {
	version := os.Getenv("HYDROCTL_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "hydroctl",
		Short:         "hydroctl – central controller for a multi-floor hydroponics installation",
		Long:          "hydroctl connects to the hydroplant MQTT bus, tracks the floor/stage/device topology, and runs the autonomy job scheduler.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "path to hydroplant.yml")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of hydroctl",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "hydroctl version %s\n", version)
		},
	})

	cmd.AddCommand(commands.NewRunCommand())

	return cmd
}
