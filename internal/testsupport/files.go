package testsupport

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	WriteText(t, path, strings.Repeat("B", int(size)))
}

// WriteText writes content to path, creating parent directories.
func WriteText(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Metadata renders a metadata file for series with one section per frame ID.
// Angles step by 3 degrees from -3 and each frame references
// <series>_<id>.tif through a Windows-style SubFramePath.
func Metadata(series string, ids ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PixelSpacing = 1.35\nImageFile = %s.mrc\n\n", series)
	for i, id := range ids {
		fmt.Fprintf(&b, "[ZValue = %d]\nTiltAngle = %.1f\nSubFramePath = X:\\frames\\%s_%03d.tif\n\n", id, float64(i*3-3), series, id)
	}
	return b.String()
}

// WriteTIFF writes a size x size 16-bit gray gradient.
func WriteTIFF(t testing.TB, path string, size int) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(x*1000 + y*50)})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
