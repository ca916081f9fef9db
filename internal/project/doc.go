// Package project is the service layer behind the HTTP API and the CLI.
//
// A Service owns one project: it scans metadata directories into the shared
// state, tracks selection edits per metadata file, and writes them back
// through the metadata writer. Every method maps failures onto the markers in
// internal/services so transports can translate them uniformly.
package project
