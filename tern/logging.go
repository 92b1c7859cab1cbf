// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package tern

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/decred/slog"
)

// Every component constructor accepts a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// Log levels, re-exported so callers need not import slog directly.
const (
	LevelTrace    = slog.LevelTrace
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarn     = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.LevelCritical
	LevelOff      = slog.LevelOff
)

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker creates a new LoggerMaker with the provided io.Writer and
// a default log level parsed from the lvl string.
func NewLoggerMaker(writer io.Writer, lvl string, utc bool) (*LoggerMaker, error) {
	level, ok := slog.LevelFromString(lvl)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
	var opts []slog.BackendOption
	if utc {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	return &LoggerMaker{
		Backend:      slog.NewBackend(writer, opts...),
		DefaultLevel: level,
		Levels:       make(map[string]slog.Level),
	}, nil
}

// SetLevels parses a comma-separated list of subsystem=level pairs, or a
// single level applied as the new default.
func (lm *LoggerMaker) SetLevels(levelStr string) error {
	if levelStr == "" {
		return nil
	}
	if !strings.Contains(levelStr, "=") {
		level, ok := slog.LevelFromString(levelStr)
		if !ok {
			return fmt.Errorf("unknown log level %q", levelStr)
		}
		lm.DefaultLevel = level
		return nil
	}
	for _, pair := range strings.Split(levelStr, ",") {
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return fmt.Errorf("invalid log level assignment %q", pair)
		}
		level, ok := slog.LevelFromString(fields[1])
		if !ok {
			return fmt.Errorf("unknown log level %q for subsystem %s", fields[1], fields[0])
		}
		lm.Levels[fields[0]] = level
	}
	return nil
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	// Use the parent logger's log level, if set.
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise the
// DefaultLevel is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// StdOutLogger creates a Logger with the provided name and log level that
// writes to standard out.
func StdOutLogger(name string, lvl slog.Level) Logger {
	logger := slog.NewBackend(os.Stdout).Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// Disabled is a Logger that will never output anything.
var Disabled Logger = slog.Disabled
