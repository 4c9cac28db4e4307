// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package main

import (
	"fmt"
	"os"

	"github.com/offish/hydroplant-controller/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		// We deliberately avoid printing Cobra's default error twice
		// and centralize exit code handling here.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
