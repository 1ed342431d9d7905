// Package logging sets up the process-wide zerolog logger, the same way
// the teacher's cmd/server/main.go does for its HTTP service.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup parses levelName (one of debug/info/warn/error per §6
// general.loglevel) and installs it as the global level. An unrecognised
// level falls back to info rather than failing startup. pretty selects a
// human-readable console writer over the default JSON output, for use on
// an interactive terminal.
func Setup(levelName string, pretty bool) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
