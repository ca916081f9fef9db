package mdoc

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	seriesMarker = "[TiltSeries]"
	framePrefix  = "[ZValue"
)

// parseFrameMarker reports whether trimmed opens a frame section and, if so,
// the frame ID it carries.
func parseFrameMarker(trimmed string) (id int, ok bool, err error) {
	if !strings.HasPrefix(trimmed, framePrefix) {
		return 0, false, nil
	}
	_, rest, found := strings.Cut(trimmed, "=")
	if !found {
		return 0, true, fmt.Errorf("frame marker %q has no value", trimmed)
	}
	value, _, found := strings.Cut(rest, "]")
	if !found {
		return 0, true, fmt.Errorf("frame marker %q is not closed", trimmed)
	}
	id, err = strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, true, fmt.Errorf("frame marker %q: %w", trimmed, err)
	}
	return id, true, nil
}

// splitKeyValue splits a `key = value` line at its first '='.
func splitKeyValue(trimmed string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(trimmed, "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}
