// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var yesValues = map[string]bool{"1": true, "true": true, "yes": true, "on": true}

func init() {
	Setup(yesValues[strings.ToLower(os.Getenv("DEBUG"))])
}

// Setup initializes the global logger. Debug switches the level; output is
// human-readable console format on stderr.
func Setup(debug bool) {
	var level = zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}
