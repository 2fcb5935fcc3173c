// Package logger configures structured logging for protobee.
//
// Everything logs through log/slog; this package builds the process handler:
//
//   - logger.go: handler construction, JSON and text formats, runtime level changes
//   - context.go: carrying a logger and request ids through a context
//   - redact.go: masking of key material in log attributes
package logger
