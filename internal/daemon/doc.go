// Package daemon runs the long-lived tssv process.
//
// It wires the project service, the preview pipeline, and the optional
// metadata watcher behind a chi HTTP router, and holds a flock-based lock so
// only one instance serves a given lock file. Handlers stay thin: they decode
// requests, call the project service, and translate the service error markers
// into HTTP status codes.
package daemon
