// Package config loads, normalizes, and validates tssv configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TSSV_API_BIND. Scan settings (metadata and image directories plus filename
// cut rules) live here too, together with the timestamped scan snapshots the
// operator can save and reload.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
