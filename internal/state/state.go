// Package state keeps the in-memory project: the parsed series of the current
// scan and, per metadata file, an overlay of selection edits that have not
// been saved yet.
//
// Series are immutable once added; callers receive copies. Overlays map a
// frame ID to the selection the operator wants. A frame absent from the
// overlay defers to the selection parsed from disk.
package state

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"tssv/internal/config"
	"tssv/internal/tilt"
)

// State is safe for concurrent use. Every method holds one mutex for a
// bounded amount of in-memory work.
type State struct {
	mu        sync.Mutex
	config    config.ScanConfig
	hasConfig bool
	series    map[string]*tilt.Series
	overrides map[string]map[int]bool
}

// New returns an empty project state.
func New() *State {
	return &State{
		series:    map[string]*tilt.Series{},
		overrides: map[string]map[int]bool{},
	}
}

// SetConfig replaces the scan configuration and discards every series and
// overlay.
func (s *State) SetConfig(cfg config.ScanConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.hasConfig = true
	clear(s.series)
	clear(s.overrides)
}

// Replace installs cfg and series as the whole project in one step, dropping
// every previous series and overlay. Nil entries are skipped.
func (s *State) Replace(cfg config.ScanConfig, series []*tilt.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	s.hasConfig = true
	clear(s.series)
	clear(s.overrides)
	for _, item := range series {
		if item != nil {
			s.series[item.ID] = item.Clone()
		}
	}
}

// Config returns the current scan configuration.
func (s *State) Config() (config.ScanConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.hasConfig
}

// Add stores a copy of series under its ID, replacing any previous entry.
func (s *State) Add(series *tilt.Series) {
	if series == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.ID] = series.Clone()
}

// Get returns a copy of the series with the given ID.
func (s *State) Get(id string) (*tilt.Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[id]
	if !ok {
		return nil, false
	}
	return series.Clone(), true
}

// FindByPath returns a copy of the series parsed from mdocPath.
func (s *State) FindByPath(mdocPath string) (*tilt.Series, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, series := range s.series {
		if series.MetadataPath == mdocPath {
			return series.Clone(), true
		}
	}
	return nil, false
}

// RemoveByPath drops every series parsed from mdocPath together with its
// overlay and returns how many series were removed.
func (s *State) RemoveByPath(mdocPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, series := range s.series {
		if series.MetadataPath == mdocPath {
			delete(s.series, id)
			removed++
		}
	}
	delete(s.overrides, mdocPath)
	return removed
}

// List returns copies of all series ordered by ID.
func (s *State) List() []*tilt.Series {
	s.mu.Lock()
	out := make([]*tilt.Series, 0, len(s.series))
	for _, series := range s.series {
		out = append(out, series.Clone())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b *tilt.Series) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of series.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}

// SetOverride replaces the whole overlay of mdocPath.
func (s *State) SetOverride(mdocPath string, overrides map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(overrides) == 0 {
		delete(s.overrides, mdocPath)
		return
	}
	s.overrides[mdocPath] = maps.Clone(overrides)
}

// MergeOverride sets the given entries on the overlay of mdocPath, leaving
// other entries in place.
func (s *State) MergeOverride(mdocPath string, overrides map[int]bool) {
	if len(overrides) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	overlay, ok := s.overrides[mdocPath]
	if !ok {
		overlay = make(map[int]bool, len(overrides))
		s.overrides[mdocPath] = overlay
	}
	maps.Copy(overlay, overrides)
}

// Edit runs fn on the live overlay of mdocPath under the state lock. fn may
// add or delete entries; an overlay left empty is removed. fn must not call
// back into State.
func (s *State) Edit(mdocPath string, fn func(overlay map[int]bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overlay, ok := s.overrides[mdocPath]
	if !ok {
		overlay = map[int]bool{}
	}
	fn(overlay)
	if len(overlay) == 0 {
		delete(s.overrides, mdocPath)
		return
	}
	s.overrides[mdocPath] = overlay
}

// Override returns the selection of frame id layered over original.
func (s *State) Override(mdocPath string, id int, original bool) Layered[bool] {
	s.mu.Lock()
	defer s.mu.Unlock()
	layered := NewLayered(original)
	if selected, ok := s.overrides[mdocPath][id]; ok {
		layered = layered.With(selected)
	}
	return layered
}

// Overrides returns a copy of the overlay of mdocPath.
func (s *State) Overrides(mdocPath string) map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := maps.Clone(s.overrides[mdocPath])
	if out == nil {
		out = map[int]bool{}
	}
	return out
}

// ClearOverrides discards the overlay of mdocPath.
func (s *State) ClearOverrides(mdocPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, mdocPath)
}

// CommitOverrides removes the overlay entries of mdocPath that still equal
// what a save wrote. Entries changed after the save read the overlay survive.
func (s *State) CommitOverrides(mdocPath string, applied map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	overlay, ok := s.overrides[mdocPath]
	if !ok {
		return
	}
	for id, selected := range applied {
		if current, ok := overlay[id]; ok && current == selected {
			delete(overlay, id)
		}
	}
	if len(overlay) == 0 {
		delete(s.overrides, mdocPath)
	}
}

// HasUnsavedChanges reports whether mdocPath has a non-empty overlay.
func (s *State) HasUnsavedChanges(mdocPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overrides[mdocPath]) > 0
}

// UnsavedCount returns the number of metadata files with a non-empty overlay.
func (s *State) UnsavedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, overlay := range s.overrides {
		if len(overlay) > 0 {
			count++
		}
	}
	return count
}

// UnsavedPaths returns the metadata paths with a non-empty overlay, sorted.
func (s *State) UnsavedPaths() []string {
	s.mu.Lock()
	paths := make([]string, 0, len(s.overrides))
	for path, overlay := range s.overrides {
		if len(overlay) > 0 {
			paths = append(paths, path)
		}
	}
	s.mu.Unlock()
	slices.Sort(paths)
	return paths
}
