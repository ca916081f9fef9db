package mdoc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"tssv/internal/services"
	"tssv/internal/tilt"
)

// Resolver maps the file names referenced by a frame to a raw image path.
// *matcher.Matcher satisfies it.
type Resolver interface {
	Resolve(names ...string) (string, bool)
}

// Parse reads the metadata file at mdocPath into a series. Frames whose
// image reference cannot be resolved keep the bare file name as RawPath.
func Parse(mdocPath string, resolver Resolver) (*tilt.Series, error) {
	abs, err := filepath.Abs(mdocPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "mdoc", "parse", mdocPath, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, services.Wrap(services.ErrNotFound, "mdoc", "parse", "metadata file not found: "+abs, nil)
		case errors.Is(err, fs.ErrPermission):
			return nil, services.Wrap(services.ErrPermission, "mdoc", "parse", abs, err)
		default:
			return nil, services.Wrap(services.ErrInternal, "mdoc", "parse", abs, err)
		}
	}
	defer file.Close()
	return ParseReader(abs, file, resolver)
}

// ParseReader parses metadata content read from r. mdocPath is recorded on
// the series and determines its ID.
func ParseReader(mdocPath string, r io.Reader, resolver Resolver) (*tilt.Series, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "mdoc", "parse", mdocPath, err)
	}

	series := &tilt.Series{
		ID:           tilt.SeriesID(mdocPath),
		MetadataPath: mdocPath,
	}
	seen := map[int]struct{}{}
	var angles []float64
	var current *tilt.Frame
	lineNo := 0

	closeFrame := func() {
		if current != nil {
			series.Frames = append(series.Frames, *current)
			current = nil
		}
	}

	for line := range strings.Lines(string(data)) {
		lineNo++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, seriesMarker) {
			continue
		}

		id, isMarker, err := parseFrameMarker(trimmed)
		if isMarker {
			if err != nil {
				return nil, validationError(mdocPath, lineNo, err)
			}
			if _, dup := seen[id]; dup {
				return nil, validationError(mdocPath, lineNo, fmt.Errorf("duplicate frame id %d", id))
			}
			seen[id] = struct{}{}
			closeFrame()
			current = &tilt.Frame{ID: id, Selected: true}
			continue
		}

		key, value, ok := splitKeyValue(trimmed)
		if !ok {
			continue
		}
		if current == nil {
			if key == "ImageFile" {
				series.ImageFile = value
			}
			continue
		}
		switch key {
		case "TiltAngle":
			angle, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, validationError(mdocPath, lineNo, fmt.Errorf("tilt angle %q: %w", value, err))
			}
			current.Angle = angle
			angles = append(angles, angle)
		case "SubFramePath":
			current.RawPath = resolveImage(value, resolver)
		}
	}
	closeFrame()

	if len(series.Frames) == 0 {
		return nil, services.Wrap(services.ErrValidation, "mdoc", "parse", "no frames found in "+mdocPath, nil)
	}
	series.AngleRange = tilt.RangeOf(angles)
	return series, nil
}

// resolveImage normalizes a SubFramePath reference to its base name and looks
// it up by stem first, then by full name.
func resolveImage(reference string, resolver Resolver) string {
	name := path.Base(strings.ReplaceAll(reference, `\`, "/"))
	if resolver == nil {
		return name
	}
	stem := strings.TrimSuffix(name, path.Ext(name))
	if resolved, ok := resolver.Resolve(stem, name); ok {
		return resolved
	}
	return name
}

func validationError(mdocPath string, lineNo int, err error) error {
	return services.Wrap(services.ErrValidation, "mdoc", "parse", fmt.Sprintf("%s line %d", mdocPath, lineNo), err)
}
