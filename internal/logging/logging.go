// Package logging configures the process-wide logrus logger, a thin
// wrapper so the rest of the tree just calls logrus directly with fields
// instead of threading a logger value through every constructor.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// SetOutput redirects logrus (and the process default logger) to w.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// SetLevel parses level (e.g. "debug", "info", "warn") and applies it,
// falling back to Info on an unrecognized value.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("requested", level).Warn("unrecognized log level, defaulting to info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// Init applies the standard formatter and writes to stderr, matching
// operational convention for a long-lived daemon.
func Init(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	SetOutput(os.Stderr)
	SetLevel(level)
}

// Component returns a logger scoped with a component/subsystem field.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
