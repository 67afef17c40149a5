package rangeindex

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogging sets the global zerolog level from a LoggingConfig.
// Component loggers created throughout this package (field_index.go,
// reclaim_queue.go, write_queue.go) are children of the global logger via
// log.With(), so this is the one place callers need to touch to change
// verbosity for the whole index.
func ConfigureLogging(cfg LoggingConfig) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}
