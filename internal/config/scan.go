package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// SupportedBins lists the preview downsampling factors.
var SupportedBins = []int{1, 2, 4, 8}

// Preview quality bounds and defaults.
const (
	MinQuality            = 1
	MaxQuality            = 100
	DefaultPreviewBin     = 8
	DefaultPreviewQuality = 90
)

// ValidBin reports whether bin is a supported downsampling factor.
func ValidBin(bin int) bool {
	return slices.Contains(SupportedBins, bin)
}

// ScanConfig describes one project scan: where metadata files and raw images
// live, where previews are cached, and how many leading/trailing characters
// are cut from metadata-side and image-side names before matching.
type ScanConfig struct {
	MdocDir        string `toml:"mdoc_dir"`
	ImageDir       string `toml:"image_dir"`
	PNGDir         string `toml:"png_dir"`
	MdocPrefixCut  int    `toml:"mdoc_prefix_cut"`
	MdocSuffixCut  int    `toml:"mdoc_suffix_cut"`
	ImagePrefixCut int    `toml:"image_prefix_cut"`
	ImageSuffixCut int    `toml:"image_suffix_cut"`
}

// Normalize expands the directory fields. Empty directories stay empty.
func (s ScanConfig) Normalize() (ScanConfig, error) {
	var err error
	if s.MdocDir, err = expandPath(strings.TrimSpace(s.MdocDir)); err != nil {
		return s, fmt.Errorf("mdoc_dir: %w", err)
	}
	if s.ImageDir, err = expandPath(strings.TrimSpace(s.ImageDir)); err != nil {
		return s, fmt.Errorf("image_dir: %w", err)
	}
	if s.PNGDir, err = expandPath(strings.TrimSpace(s.PNGDir)); err != nil {
		return s, fmt.Errorf("png_dir: %w", err)
	}
	return s, nil
}

// Validate checks that a scan can run with these settings.
func (s ScanConfig) Validate() error {
	if strings.TrimSpace(s.MdocDir) == "" {
		return errors.New("mdoc_dir must be set")
	}
	if strings.TrimSpace(s.ImageDir) == "" {
		return errors.New("image_dir must be set")
	}
	return s.validateCuts()
}

func (s ScanConfig) validateCuts() error {
	cuts := []struct {
		name  string
		value int
	}{
		{"mdoc_prefix_cut", s.MdocPrefixCut},
		{"mdoc_suffix_cut", s.MdocSuffixCut},
		{"image_prefix_cut", s.ImagePrefixCut},
		{"image_suffix_cut", s.ImageSuffixCut},
	}
	for _, cut := range cuts {
		if cut.value < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", cut.name, cut.value)
		}
	}
	return nil
}

// Fingerprint identifies the image-resolution inputs of a scan. Two scans with
// the same fingerprint resolve frames to the same raw images, so cached
// previews stay valid between them.
func (s ScanConfig) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{
		s.ImageDir,
		strconv.Itoa(s.MdocPrefixCut),
		strconv.Itoa(s.MdocSuffixCut),
		strconv.Itoa(s.ImagePrefixCut),
		strconv.Itoa(s.ImageSuffixCut),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
