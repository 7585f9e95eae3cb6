// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog's global level and writer. Console output is
// human-readable for local/dev use; JSON is left as zerolog's default
// writer (os.Stderr) for production, where log aggregation expects
// structured lines.
func Setup(level string, console bool) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// ForWorker returns a logger pre-tagged with this worker's identity; the
// worker loop and the event watcher use it to attribute their log lines to
// this worker process.
func ForWorker(workerID string) zerolog.Logger {
	return log.With().Str("worker_id", workerID).Logger()
}
