// Package logging provides the single structured logger used across every
// statemesh component, in place of ad-hoc fmt.Printf/log.Printf calls.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel parses level (e.g. "debug", "info", "warn", "error") and applies
// it to the shared logger, falling back to info on an unrecognized value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)
}

// For returns a logger scoped to the named component via a "component"
// field, so log lines can be filtered per subsystem.
func For(component string) *logrus.Entry {
	return std.WithField("component", component)
}

// Logger returns the shared, unscoped logger.
func Logger() *logrus.Logger { return std }
