// Package logging provides the shared logger used by the scanfit binary and
// its command modes, wrapping zap.
package logging

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

var (
	base *zap.Logger
	log  *zap.SugaredLogger
)

// Init initializes the package-level logger. With debug set, log output is
// human-readable and includes debug-level messages.
func Init(debug bool) error {
	var (
		logger *zap.Logger
		err    error
	)

	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	base = logger
	log = logger.Sugar()
	return nil
}

// Logger returns the sugared logger, initializing a production fallback if
// Init was never called.
func Logger() *zap.SugaredLogger {
	if log == nil {
		base, _ = zap.NewProduction()
		log = base.Sugar()
	}
	return log
}

// Sync flushes buffered log entries. Call before exiting.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

// MemString returns a string containing various statistics on the current
// memory usage of the process, for debug logging around large refinements.
func MemString() string {
	ms := runtime.MemStats{}
	runtime.ReadMemStats(&ms)
	return fmt.Sprintf(
		"Alloc - %d MB; Sys - %d MB; Integrated - %d MB",
		ms.Alloc>>20, ms.Sys>>20, ms.TotalAlloc>>20,
	)
}
