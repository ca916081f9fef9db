// Package api defines the wire-format types of the HTTP API and converters
// from the project model.
//
// DTOs use camelCase JSON tags. Frame and series field names (zIndex,
// mrcPath, angleRange) and the snake_case scan configuration keep the shapes
// existing viewer front ends already send and expect.
package api
