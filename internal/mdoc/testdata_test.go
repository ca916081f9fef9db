package mdoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleHeader = "PixelSpacing = 1.35\r\nImageFile = TS_01.mrc\r\nImageSize = 4096 4096\r\n\r\n[T = SerialEM: Digitized on EMBL Krios]\r\n\r\n"

// sampleFrame renders one frame section the way SerialEM writes it.
func sampleFrame(id int, angle float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ZValue = %d]\r\n", id)
	fmt.Fprintf(&b, "TiltAngle = %.2f\r\n", angle)
	b.WriteString("ExposureDose = 3.1\r\n")
	fmt.Fprintf(&b, "SubFramePath = X:\\frames\\TS_01_%03d_%.1f.tif\r\n", id, angle)
	b.WriteString("\r\n")
	return b.String()
}

func sampleContent(ids ...int) string {
	var b strings.Builder
	b.WriteString(sampleHeader)
	for i, id := range ids {
		b.WriteString(sampleFrame(id, float64(i*3)-3))
	}
	return b.String()
}

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "TS_01.mdoc")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

type mapResolver map[string]string

func (m mapResolver) Resolve(names ...string) (string, bool) {
	for _, name := range names {
		if p, ok := m[name]; ok {
			return p, true
		}
	}
	return "", false
}
