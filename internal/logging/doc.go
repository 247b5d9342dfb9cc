// Package logging configures the process-wide slog logger and hands out
// component-scoped loggers that follow later reconfiguration.
package logging
