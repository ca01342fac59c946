// Package logging builds slog loggers for the Capstan CLI.
//
// Two output formats are supported: a compact console format for interactive
// use and JSON for log files or machine consumption. Attr helpers re-export
// the slog constructors so call sites stay terse, and NewNop returns a logger
// that discards everything for tests.
package logging
