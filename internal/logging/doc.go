// Package logging constructs the slog loggers used across scout.
//
// It owns level parsing, output fan-out to stdout and the daemon log file,
// and the JSON/console handler selection. Components receive a *slog.Logger
// tagged with a component attribute; per-cycle and per-item fields are added
// through the typed attr helpers so field names stay consistent between the
// scheduler, the pipeline manager, and the CLI.
package logging
