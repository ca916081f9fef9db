package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"tssv/internal/config"
	"tssv/internal/daemon"
	"tssv/internal/imaging"
	"tssv/internal/logging"
	"tssv/internal/mdoc"
	"tssv/internal/preview"
	"tssv/internal/project"
	"tssv/internal/state"
	"tssv/internal/watch"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the tssv server and blocks until the context is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tssv-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update tssv.log link: %v\n", err)
	}
	logRuntimeSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "tssv.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("tssv daemon shutting down")
	return nil
}

// Build assembles the project service, preview pipeline, optional watcher, and
// daemon from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	svc := project.New(state.New(), mdoc.NewWriter(logger), logger)
	pipeline, err := preview.New(svc, imaging.FileReader{}, preview.OptionsFromConfig(cfg.Preview, cfg.MemoryBudgetBytes()), logger)
	if err != nil {
		return nil, err
	}
	var watcher *watch.Watcher
	if cfg.Scan.Watch {
		debounce := time.Duration(cfg.Scan.WatchDebounceMillis) * time.Millisecond
		watcher, err = watch.New(svc, debounce, logger)
		if err != nil {
			return nil, err
		}
	}
	return daemon.New(cfg, svc, pipeline, watcher, logger)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "tssv.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", cfg.Paths.APIToken != ""),
		logging.String("preview_format", cfg.Preview.Format),
		logging.String("preview_cache_dir", cfg.Preview.CacheDir),
		logging.Int("preview_memory_mib", cfg.Preview.MemoryBudgetMiB),
		logging.Bool("watch", cfg.Scan.Watch),
		logging.Bool("startup_scan", cfg.Scan.MdocDir != "" && cfg.Scan.ImageDir != ""),
	)
}
