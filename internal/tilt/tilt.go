// Package tilt defines the entity model shared by the metadata parser, the
// project state, and the preview pipeline.
//
// A Frame's ID is the ZValue read from its metadata record. It is assigned
// once at parse time and never reassigned: deleting neighbouring frames and
// saving any number of times leaves every surviving ID unchanged.
package tilt

import (
	"path/filepath"
	"strings"
)

// Frame is one tilt image within a series.
type Frame struct {
	ID       int
	Angle    float64
	RawPath  string
	Selected bool
}

// AngleRange is the inclusive span of tilt angles in a series.
type AngleRange struct {
	Min float64
	Max float64
}

// Series is one parsed metadata file.
type Series struct {
	ID           string
	MetadataPath string
	ImageFile    string
	Frames       []Frame
	AngleRange   AngleRange
}

// Frame returns the frame with the given ID.
func (s *Series) Frame(id int) (Frame, bool) {
	for _, frame := range s.Frames {
		if frame.ID == id {
			return frame, true
		}
	}
	return Frame{}, false
}

// FrameIDs returns the frame IDs in file order.
func (s *Series) FrameIDs() []int {
	ids := make([]int, len(s.Frames))
	for i, frame := range s.Frames {
		ids[i] = frame.ID
	}
	return ids
}

// Clone returns a deep copy so callers can hand series out without sharing the
// frame slice.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	out := *s
	out.Frames = append([]Frame(nil), s.Frames...)
	return &out
}

// SeriesID derives a series identifier from a metadata path: the file name
// with its last extension removed.
func SeriesID(metadataPath string) string {
	base := filepath.Base(metadataPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RangeOf computes the span of angles, or the zero range when empty.
func RangeOf(angles []float64) AngleRange {
	if len(angles) == 0 {
		return AngleRange{}
	}
	r := AngleRange{Min: angles[0], Max: angles[0]}
	for _, angle := range angles[1:] {
		r.Min = min(r.Min, angle)
		r.Max = max(r.Max, angle)
	}
	return r
}
