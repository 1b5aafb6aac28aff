// Package logging sets up the zerolog-based logging for Figaro.
// Console output goes to stderr; a per-session log file is kept under the
// data directory so background task runs stay inspectable.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Dir is the data directory. When non-empty and FileLog is set, a
	// timestamped session log file is created under Dir/logs.
	Dir string

	// FileLog enables the session log file.
	FileLog bool

	// Console disables the pretty console writer when false (tests).
	Console bool
}

// Setup builds the root logger. The returned closer releases the log file,
// if any, and is safe to call on a nil-file setup.
func Setup(opts Options) (zerolog.Logger, func(), error) {
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	closer := func() {}
	if opts.FileLog && opts.Dir != "" {
		logDir := filepath.Join(opts.Dir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("create log directory: %w", err)
		}
		name := fmt.Sprintf("figaro_%s.log", time.Now().Format("2006-01-02_15-04-05"))
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = func() { f.Close() }
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Logger()

	return log, closer, nil
}

// parseLevel maps a config string to a zerolog level.
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a sub-logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
