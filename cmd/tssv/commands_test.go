package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"tssv/internal/api"
	"tssv/internal/mdoc"
	"tssv/internal/testsupport"
)

func TestScanPrintsPlainTableWhenNotATerminal(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"scan"}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Series\tFrames\tSelected\tMatched")
	requireContains(t, out, "TS_01\t3\t3\t3\t-3.0..3.0")
	requireContains(t, out, "1 series, 0 failed")
}

func TestScanJSONAndFlagOverrides(t *testing.T) {
	env := setupCLITestEnv(t)
	empty := t.TempDir()
	out, _, err := runCLI(t, []string{"scan", "--json", "--image-dir", empty}, env.configPath)
	if err != nil {
		t.Fatalf("scan --json: %v", err)
	}
	var resp api.ScanResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.TiltSeries[0].Frames) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got := resp.TiltSeries[0].Frames[0].MrcPath; got != "TS_01_010.tif" {
		t.Fatalf("frame should keep its bare name without images, got %q", got)
	}

	if _, _, err := runCLI(t, []string{"scan", "--mdoc-dir", filepath.Join(env.Root, "missing")}, env.configPath); err == nil {
		t.Fatal("expected scan of a missing directory to fail")
	}
}

func TestPruneDropsFramesAndKeepsBackup(t *testing.T) {
	env := setupCLITestEnv(t)
	path := env.MetadataPath("TS_01")

	if _, _, err := runCLI(t, []string{"prune", path}, env.configPath); err == nil {
		t.Fatal("expected prune without --drop to fail")
	}
	out, _, err := runCLI(t, []string{"prune", path, "--drop", "11,12"}, env.configPath)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	requireContains(t, out, "Kept:    10")
	requireContains(t, out, "Removed: 11,12")
	requireContains(t, out, "Backup written to")

	backup, err := os.ReadFile(mdoc.BackupPath(path))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Contains(backup, []byte("[ZValue = 12]")) {
		t.Fatal("backup should hold the original content")
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(current, []byte("[ZValue = 11]")) {
		t.Fatal("frame 11 should be removed")
	}

	out, _, err = runCLI(t, []string{"prune", path, "--drop", "10"}, env.configPath)
	if err != nil {
		t.Fatalf("second prune: %v", err)
	}
	requireContains(t, out, "Existing backup kept")
}

func TestPreviewWritesPNG(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "frame.png")
	out, _, err := runCLI(t, []string{"preview", env.MetadataPath("TS_01"), "11", "--bin", "4", "-o", target}, env.configPath)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	requireContains(t, out, "image/png")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
		t.Fatalf("preview size = %dx%d, want 8x8", b.Dx(), b.Dy())
	}

	if _, _, err := runCLI(t, []string{"preview", env.MetadataPath("TS_01"), "99", "-o", target}, env.configPath); err == nil {
		t.Fatal("expected unknown frame to fail")
	}
	if _, _, err := runCLI(t, []string{"preview", env.MetadataPath("TS_01"), "11", "--bin", "3", "-o", target}, env.configPath); err == nil {
		t.Fatal("expected unsupported bin to fail")
	}
	if _, _, err := runCLI(t, []string{"preview", env.MetadataPath("TS_01"), "11", "--bin", "0", "-o", target}, env.configPath); err == nil {
		t.Fatal("expected explicit zero bin to fail")
	}
	if _, _, err := runCLI(t, []string{"preview", env.MetadataPath("TS_01"), "11", "--quality", "0", "-o", target}, env.configPath); err == nil {
		t.Fatal("expected explicit zero quality to fail")
	}
}

func TestCacheStatsPruneClear(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, series := range []string{"TS_01", "TS_02"} {
		testsupport.WriteFile(t, filepath.Join(env.cacheDir, series, "bin8", "frame_0000_q90.png"), 2048)
	}

	out, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Series: 2  Files: 2")

	out, _, err = runCLI(t, []string{"cache", "prune", "--max-mib", "0"}, env.configPath)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, out, "Removed 2 series")

	if err := os.MkdirAll(filepath.Join(env.cacheDir, "TS_03"), 0o755); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Removed 1 series")
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
