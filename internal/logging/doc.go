// Package logging assembles structured slog loggers and formatting helpers used
// across the station daemon and CLI.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so sequencing code can tag log
// lines with run IDs, cavity numbers, and stages automatically. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing as the rest of the system.
package logging
