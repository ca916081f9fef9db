package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeScan(); err != nil {
		return err
	}
	if err := c.normalizePreview(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SnapshotDir) == "" {
		c.Paths.SnapshotDir = defaultSnapshotDir
	}
	if c.Paths.SnapshotDir, err = expandPath(c.Paths.SnapshotDir); err != nil {
		return fmt.Errorf("paths.snapshot_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = defaultLockFile
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("TSSV_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = strings.TrimSpace(value)
	}
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if value, ok := os.LookupEnv("TSSV_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeScan() error {
	normalized, err := c.Scan.ScanConfig.Normalize()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	c.Scan.ScanConfig = normalized
	if c.Scan.WatchDebounceMillis <= 0 {
		c.Scan.WatchDebounceMillis = defaultWatchDebounceMillis
	}
	return nil
}

func (c *Config) normalizePreview() error {
	var err error
	if strings.TrimSpace(c.Preview.CacheDir) == "" {
		c.Preview.CacheDir = defaultPreviewCacheDir
	}
	if c.Preview.CacheDir, err = expandPath(c.Preview.CacheDir); err != nil {
		return fmt.Errorf("preview.cache_dir: %w", err)
	}
	c.Preview.Format = strings.ToLower(strings.TrimSpace(c.Preview.Format))
	if c.Preview.Format == "" {
		c.Preview.Format = defaultPreviewFormat
	}
	if c.Preview.Format == "jpg" {
		c.Preview.Format = "jpeg"
	}
	if c.Preview.DefaultBin == 0 {
		c.Preview.DefaultBin = DefaultPreviewBin
	}
	if c.Preview.DefaultQuality == 0 {
		c.Preview.DefaultQuality = DefaultPreviewQuality
	}
	if c.Preview.Workers <= 0 {
		c.Preview.Workers = runtime.GOMAXPROCS(0)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
