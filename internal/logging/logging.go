// Package logging provides the engine's single process-wide diagnostic
// sink: a logrus logger writing to stderr, text-formatted, defaulting to
// info level and raised to debug under -v. Per spec §9 the logging sink
// is one of only two pieces of process-wide state the engine carries
// (the other being the staging directory root).
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    false,
		FullTimestamp:    false,
		DisableTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbose raises the default logger to debug level when v is true.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if v {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects the default logger's output; used by tests to
// capture log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Default returns the process-wide logger.
func Default() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Stage returns a logger pre-tagged with the pipeline stage name, e.g.
// "walker", "packer", "assembler" — used for the one-line-per-transition
// progress output described in SPEC_FULL.md §10.
func Stage(name string) *logrus.Entry {
	return Default().WithField("stage", name)
}
