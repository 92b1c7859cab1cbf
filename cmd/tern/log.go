// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tern-wallet/tern/tern"
	"github.com/tern-wallet/tern/tern/wait"

	"github.com/jrick/logrotate/rotator"
)

const maxLogRolls = 8

// logWriter implements an io.Writer that outputs to a rotating log file and
// stdout.
type logWriter struct {
	*rotator.Rotator
}

// Write writes the data in p to both destinations.
func (w logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return w.Rotator.Write(p)
}

// initLogging initializes the logging rotator to write logs to logFilename
// and create roll files in the same directory. initLogging must be called
// before the package-global log rotator variables are used.
func initLogging(logFilename, lvl string) (*tern.LoggerMaker, func(), error) {
	err := os.MkdirAll(filepath.Dir(logFilename), 0700)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logRotator, err := rotator.New(logFilename, 32*1024, false, maxLogRolls)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	lm, err := tern.NewLoggerMaker(logWriter{logRotator}, "info", false)
	if err != nil {
		logRotator.Close()
		return nil, nil, err
	}
	if err = lm.SetLevels(lvl); err != nil {
		logRotator.Close()
		return nil, nil, err
	}
	wait.UseLogger(lm.NewLogger("WAIT"))
	return lm, func() { logRotator.Close() }, nil
}
