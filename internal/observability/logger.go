// Package observability provides structured logging, metrics and tracing
// for analysis runs.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"io"
	"log/slog"
)

// NewLogger returns a text logger on w. Verbose enables debug output;
// otherwise only warnings and errors are written.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// EnrichLogger adds run context to a logger.
func EnrichLogger(logger *slog.Logger, schemaName string, eventCount int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("schema", schemaName),
		slog.Int("events", eventCount),
	)
}

// LogRunStart logs the start of an analysis run.
func LogRunStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("analysis starting")
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, durationMs float64, edgeCount int) {
	if logger == nil {
		return
	}
	logger.Info("analysis completed",
		slog.Float64("duration_ms", durationMs),
		slog.Int("edges", edgeCount),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("analysis failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}
