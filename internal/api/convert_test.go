package api

import (
	"slices"
	"testing"
	"time"

	"tssv/internal/config"
	"tssv/internal/project"
	"tssv/internal/tilt"
)

func sampleSeries() *tilt.Series {
	return &tilt.Series{
		ID:           "TS_01",
		MetadataPath: "/data/TS_01.mdoc",
		ImageFile:    "TS_01.mrc",
		Frames: []tilt.Frame{
			{ID: 10, Angle: -3, RawPath: "/raw/TS_01_010.tif", Selected: true},
			{ID: 12, Angle: 3, RawPath: "TS_01_012.tif", Selected: true},
		},
		AngleRange: tilt.AngleRange{Min: -3, Max: 3},
	}
}

func TestFromSeries(t *testing.T) {
	dto := FromSeries(sampleSeries(), true)
	if dto.ID != "TS_01" || dto.MdocPath != "/data/TS_01.mdoc" || !dto.Unsaved {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if dto.AngleRange != [2]float64{-3, 3} {
		t.Fatalf("angle range = %v", dto.AngleRange)
	}
	ids := []int{dto.Frames[0].ZIndex, dto.Frames[1].ZIndex}
	if !slices.Equal(ids, []int{10, 12}) {
		t.Fatalf("frame ids = %v, want [10 12]", ids)
	}
	if dto.Frames[0].MrcPath != "/raw/TS_01_010.tif" {
		t.Fatalf("mrcPath = %q", dto.Frames[0].MrcPath)
	}
	if empty := FromSeries(nil, false); empty.ID != "" || empty.Frames != nil {
		t.Fatal("nil series should convert to the zero value")
	}
}

func TestScanConfigConversion(t *testing.T) {
	cfg := config.ScanConfig{MdocDir: "/m", ImageDir: "/i", PNGDir: "/p", MdocPrefixCut: 1, MdocSuffixCut: 2, ImagePrefixCut: 3, ImageSuffixCut: 4}
	if got := FromScanConfig(cfg).ToScanConfig(); got != cfg {
		t.Fatalf("conversion changed config: %+v", got)
	}
}

func TestFromStatusOmitsConfigBeforeScan(t *testing.T) {
	if out := FromStatus(project.Status{}); out.Config != nil {
		t.Fatal("expected no config before the first scan")
	}
	out := FromStatus(project.Status{TotalSeries: 2, HasConfig: true, UnsavedCount: 1, Config: config.ScanConfig{MdocDir: "/m"}})
	if out.Config == nil || out.Config.MdocDir != "/m" || out.TotalSeries != 2 || out.UnsavedCount != 1 {
		t.Fatalf("unexpected status: %+v", out)
	}
}

func TestFromScanResult(t *testing.T) {
	out := FromScanResult(project.ScanResult{
		Series:      []*tilt.Series{sampleSeries()},
		Failed:      2,
		Fingerprint: "abc",
		Elapsed:     1500 * time.Millisecond,
	})
	if out.Total != 1 || out.Failed != 2 || out.ElapsedMs != 1500 || out.Fingerprint != "abc" {
		t.Fatalf("unexpected scan response: %+v", out)
	}
}

func TestFromSaveAllResultNeverNilErrors(t *testing.T) {
	out := FromSaveAllResult(project.SaveAllResult{Saved: 3})
	if !out.Success || out.Errors == nil || out.SavedCount != 3 {
		t.Fatalf("unexpected response: %+v", out)
	}
	out = FromSaveAllResult(project.SaveAllResult{Failed: 1, Errors: []string{"TS_01: boom"}})
	if out.Success || out.FailedCount != 1 {
		t.Fatalf("unexpected response: %+v", out)
	}
}
