// Package log wraps github.com/rs/zerolog with the construction convention used
// throughout the teacher daemon (publisher-leader-app/main.go: "log := log.New(level,
// pretty); log.Info()...; NewApp(ctx, cfg, log.Logger)") — a small Logger value
// embedding the configured zerolog.Logger, plus helpers for per-component sub-loggers.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a configured zerolog.Logger so call sites can chain zerolog's level
// methods directly (log.Info()...) while also handing the embedded zerolog.Logger to
// constructors that want it (log.Logger).
type Logger struct {
	zerolog.Logger
}

// New builds a Logger at the given level ("debug", "info", "warn", "error"), writing
// to stderr as either a colorized console format (pretty) or newline-delimited JSON.
func New(level string, pretty bool) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	} else {
		w = os.Stderr
	}

	l := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return Logger{Logger: l}
}

// Component returns a sub-logger tagged with a "component" field, matching the
// batch-manager / l1-batch-listener / proof-pipeline naming convention used across
// x/superblock/batch.
func (l Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
