// Package services defines shared utilities consumed by the tssv components
// and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp series identifiers and correlation
//     identifiers for logging and tracing.
//   - Structured error markers (not found, validation, conflict, permission,
//     internal) plus the Wrap helper that attaches component context while
//     keeping the marker classifiable with errors.Is.
//
// Use these helpers when wiring new component logic so error reporting and
// observability stay uniform across the parser, writer, preview pipeline, and
// API server.
package services
