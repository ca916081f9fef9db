package testsupport

import (
	"fmt"
	"path/filepath"
	"testing"

	"tssv/internal/config"
)

// Project is an on-disk project with one series, TS_01, holding frames 10,
// 11 and 12, each backed by a 32x32 TIFF.
type Project struct {
	Root     string
	MdocDir  string
	ImageDir string
	PNGDir   string
}

// NewProject lays out a project under a fresh temp directory.
func NewProject(t testing.TB) *Project {
	t.Helper()
	root := t.TempDir()
	p := &Project{
		Root:     root,
		MdocDir:  filepath.Join(root, "mdoc"),
		ImageDir: filepath.Join(root, "images"),
		PNGDir:   filepath.Join(root, "png"),
	}
	WriteText(t, p.MetadataPath("TS_01"), Metadata("TS_01", 10, 11, 12))
	for _, id := range []int{10, 11, 12} {
		WriteTIFF(t, filepath.Join(p.ImageDir, fmt.Sprintf("TS_01_%03d.tif", id)), 32)
	}
	return p
}

// MetadataPath returns where the metadata file of series lives.
func (p *Project) MetadataPath(series string) string {
	return filepath.Join(p.MdocDir, series+".mdoc")
}

// Scan returns scan settings pointing at the project.
func (p *Project) Scan() config.ScanConfig {
	return config.ScanConfig{MdocDir: p.MdocDir, ImageDir: p.ImageDir, PNGDir: p.PNGDir}
}
