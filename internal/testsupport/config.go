package testsupport

import (
	"path/filepath"
	"testing"

	"tssv/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The API binds an ephemeral loopback port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SnapshotDir = filepath.Join(base, "snapshots")
	cfgVal.Paths.LockFile = filepath.Join(base, "tssv.lock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Preview.CacheDir = filepath.Join(base, "cache")
	cfgVal.Preview.MemoryBudgetMiB = 16

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithScan sets the startup scan settings.
func WithScan(scan config.ScanConfig) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.ScanConfig = scan
	}
}

// WithWatch enables the metadata watcher with a short debounce.
func WithWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.Watch = true
		b.cfg.Scan.WatchDebounceMillis = 20
	}
}

// WithAPIToken requires bearer authentication on the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
