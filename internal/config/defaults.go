package config

const (
	defaultLogDir              = "~/.local/share/tssv/logs"
	defaultSnapshotDir         = "~/.config/tssv/scans"
	defaultLockFile            = "~/.local/share/tssv/tssv.lock"
	defaultAPIBind             = "127.0.0.1:8000"
	defaultPreviewCacheDir     = "~/.cache/tssv/previews"
	defaultMemoryBudgetMiB     = 2048
	defaultPreviewFormat       = "png"
	defaultMinFreeRatio        = 0.05
	defaultWatchDebounceMillis = 500
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:      defaultLogDir,
			SnapshotDir: defaultSnapshotDir,
			APIBind:     defaultAPIBind,
			LockFile:    defaultLockFile,
		},
		Scan: Scan{
			WatchDebounceMillis: defaultWatchDebounceMillis,
		},
		Preview: Preview{
			CacheDir:        defaultPreviewCacheDir,
			MemoryBudgetMiB: defaultMemoryBudgetMiB,
			Format:          defaultPreviewFormat,
			DefaultBin:      DefaultPreviewBin,
			DefaultQuality:  DefaultPreviewQuality,
			MinFreeRatio:    defaultMinFreeRatio,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
