package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tssv/internal/config"
	"tssv/internal/services"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogs := filepath.Join(tempHome, ".local", "share", "tssv", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Preview.CacheDir != filepath.Join(tempHome, ".cache", "tssv", "previews") {
		t.Fatalf("unexpected preview cache dir: %q", cfg.Preview.CacheDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Preview.DefaultBin != 8 || cfg.Preview.DefaultQuality != 90 {
		t.Fatalf("unexpected preview defaults: bin=%d quality=%d", cfg.Preview.DefaultBin, cfg.Preview.DefaultQuality)
	}
	if cfg.Preview.Workers != runtime.GOMAXPROCS(0) {
		t.Fatalf("expected workers to default to GOMAXPROCS, got %d", cfg.Preview.Workers)
	}
	if cfg.MemoryBudgetBytes() != 2048<<20 {
		t.Fatalf("unexpected memory budget: %d", cfg.MemoryBudgetBytes())
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
log_dir = "~/logs"

[scan]
mdoc_dir = "~/project/mdoc"
image_dir = "~/project/frames"
image_suffix_cut = 4
watch = true

[preview]
format = "JPG"
default_bin = 4
memory_budget_mib = 64

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.LogDir != filepath.Join(tempHome, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Scan.MdocDir != filepath.Join(tempHome, "project", "mdoc") {
		t.Fatalf("unexpected mdoc dir: %q", cfg.Scan.MdocDir)
	}
	if cfg.Scan.ImageSuffixCut != 4 || !cfg.Scan.Watch {
		t.Fatalf("unexpected scan settings: %+v", cfg.Scan)
	}
	if cfg.Preview.Format != "jpeg" || cfg.Preview.DefaultBin != 4 {
		t.Fatalf("unexpected preview settings: %+v", cfg.Preview)
	}
	if cfg.Preview.DefaultQuality != 90 {
		t.Fatalf("expected default quality to survive partial section, got %d", cfg.Preview.DefaultQuality)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cases := map[string]string{
		"bin":      "[preview]\ndefault_bin = 3\n",
		"quality":  "[preview]\ndefault_quality = 101\n",
		"format":   "[preview]\nformat = \"gif\"\n",
		"cut":      "[scan]\nmdoc_prefix_cut = -1\n",
		"loglevel": "[logging]\nlevel = \"verbose\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, _, _, err := config.Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestAPIEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TSSV_API_BIND", "0.0.0.0:9001")
	t.Setenv("TSSV_API_TOKEN", " secret ")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9001" {
		t.Fatalf("expected env bind, got %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected env token, got %q", cfg.Paths.APIToken)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestScanConfigValidate(t *testing.T) {
	valid := config.ScanConfig{MdocDir: "/data/mdoc", ImageDir: "/data/frames"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	missing := config.ScanConfig{ImageDir: "/data/frames"}
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for missing mdoc_dir")
	}
	negative := valid
	negative.ImageSuffixCut = -2
	if err := negative.Validate(); err == nil || !strings.Contains(err.Error(), "image_suffix_cut") {
		t.Fatalf("expected image_suffix_cut error, got %v", err)
	}
}

func TestScanConfigFingerprint(t *testing.T) {
	a := config.ScanConfig{MdocDir: "/a", ImageDir: "/frames", ImageSuffixCut: 4}
	b := a
	b.MdocDir = "/b"
	b.PNGDir = "/png"
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint should ignore mdoc and png directories")
	}
	c := a
	c.ImageSuffixCut = 5
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("fingerprint should change with cut rules")
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scans")
	scan := config.ScanConfig{MdocDir: "/data/mdoc", ImageDir: "/data/frames", PNGDir: "/data/png", MdocSuffixCut: 2}

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	older, err := config.SaveSnapshot(dir, scan, first)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if older.Name != "scan_20240301_100000.toml" {
		t.Fatalf("unexpected snapshot name %q", older.Name)
	}
	dup, err := config.SaveSnapshot(dir, scan, first)
	if err != nil {
		t.Fatalf("SaveSnapshot duplicate second: %v", err)
	}
	if dup.Name == older.Name {
		t.Fatal("expected distinct name for snapshot saved in the same second")
	}
	newer, err := config.SaveSnapshot(dir, scan, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	list, err := config.ListSnapshots(dir)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 3 || list[0].Name != newer.Name {
		t.Fatalf("expected newest first, got %+v", list)
	}

	loaded, err := config.LoadSnapshot(dir, older.Name)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded != scan {
		t.Fatalf("loaded %+v, want %+v", loaded, scan)
	}

	if err := config.DeleteSnapshot(dir, older.Name); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, err := config.LoadSnapshot(dir, older.Name); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := config.DeleteSnapshot(dir, older.Name); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSnapshotRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"../scan_x.toml", "sub/scan.toml", "..", "scan.json", ""} {
		if _, err := config.LoadSnapshot(dir, name); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("LoadSnapshot(%q): expected validation error, got %v", name, err)
		}
	}
}

func TestListSnapshotsMissingDir(t *testing.T) {
	list, err := config.ListSnapshots(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v %v", list, err)
	}
}
