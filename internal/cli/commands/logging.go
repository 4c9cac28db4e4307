// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger builds the process-wide diagnostic logger: human-readable
// console output, debug level when verbose is requested.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
