// Package main hosts the tssv CLI entrypoint and command graph.
//
// The Cobra command tree starts the HTTP server and exposes the offline
// operations that do not need it: scanning a project into a table, pruning
// frames from a metadata file, rendering a single preview, and maintaining
// the preview disk cache. Configuration resolution and logger setup live in
// commandContext so subcommands stay small.
package main
