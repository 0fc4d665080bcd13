// Package logging provides structured logging for Scribe built on log/slog.
//
// It wraps slog with context field extraction so that request-scoped
// identifiers (request id, user id, space id) set by the HTTP middleware
// or the routing engine appear on every log line without being threaded
// through call signatures.
package logging
