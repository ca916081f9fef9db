package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileReader reads rasters from MRC (.mrc, .mrcs, .rec, .st) and TIFF
// (.tif, .tiff) files. Stacks yield their first section.
type FileReader struct{}

// Read loads the raster stored at path.
func (FileReader) Read(path string) (*Raster, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mrc", ".mrcs", ".rec", ".st":
		return readFile(path, func(f *os.File) (*Raster, error) {
			info, err := f.Stat()
			if err != nil {
				return nil, err
			}
			return ReadMRC(f, info.Size())
		})
	case ".tif", ".tiff":
		return readFile(path, func(f *os.File) (*Raster, error) { return ReadTIFF(f) })
	default:
		return nil, fmt.Errorf("unsupported image format %q", ext)
	}
}

func readFile(path string, decode func(*os.File) (*Raster, error)) (*Raster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	raster, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return raster, nil
}
