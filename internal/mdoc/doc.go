// Package mdoc reads and rewrites SerialEM tilt-series metadata files.
//
// A metadata file is line oriented: header lines, then one section per frame
// opened by a `[ZValue = N]` marker. The parser turns a file into a
// tilt.Series; the writer drops deselected frame sections while copying every
// other byte through unchanged, so surviving frames keep their ZValue and
// their content across any number of saves.
package mdoc
