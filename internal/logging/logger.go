// Package logging gives low-level internal packages (internal/geocode's
// provider calls, in particular) a dependency-free way to log a warning
// without importing logrus and wiring a *logrus.Logger through every
// constructor. It intentionally carries no rotating-file-handler or
// process-wide Initialize machinery: nothing in this service initializes
// a global logger through it (cmd/hyperctl wires logrus directly), so
// that machinery would sit dead.
package logging

import "log/slog"

// Warn logs a warning via the default structured logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}
