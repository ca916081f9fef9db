package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"tssv/internal/config"
	"tssv/internal/logging"
	"tssv/internal/preview"
	"tssv/internal/project"
	"tssv/internal/watch"
)

// Daemon owns the HTTP server, the watcher goroutine, and the instance lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	project *project.Service
	preview *preview.Pipeline
	watcher *watch.Watcher
	handler http.Handler
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	APIAddress   string
	WatchRoot    string
	Project      project.Status
}

// New constructs a daemon. watcher may be nil when watching is disabled.
func New(cfg *config.Config, svc *project.Service, pipeline *preview.Pipeline, watcher *watch.Watcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc == nil || pipeline == nil {
		return nil, errors.New("daemon requires config, project service, and preview pipeline")
	}
	lockPath := strings.TrimSpace(cfg.Paths.LockFile)
	if lockPath == "" {
		lockPath = filepath.Join(cfg.Paths.LogDir, "tssv.lock")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		project:  svc,
		preview:  pipeline,
		watcher:  watcher,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.handler = NewRouter(RouterOptions{
		Project:     svc,
		Preview:     pipeline,
		SnapshotDir: cfg.Paths.SnapshotDir,
		Token:       cfg.Paths.APIToken,
	}, logger)
	d.api = newAPIServer(cfg.Paths.APIBind, d.handler, logger)

	svc.SetPreviewHook(pipeline)
	if watcher != nil {
		svc.OnScan(func(scan config.ScanConfig) {
			if err := watcher.SetRoot(scan.MdocDir); err != nil {
				logging.WarnWithContext(d.logger, "metadata watcher not updated", "watch_root_failed",
					logging.String("mdoc_dir", scan.MdocDir),
					logging.Error(err),
					logging.String(logging.FieldImpact, "external edits are not picked up until the next scan"),
				)
			}
		})
	}
	return d, nil
}

// Handler exposes the HTTP routes.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Start acquires the instance lock, starts the watcher and the HTTP server,
// and runs the configured startup scan.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another tssv instance holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = d.watcher.Run(runCtx)
		}()
	}
	d.running.Store(true)
	d.logger.Info("tssv daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)

	d.startupScan(runCtx)
	return nil
}

func (d *Daemon) startupScan(ctx context.Context) {
	scan := d.cfg.Scan.ScanConfig
	if strings.TrimSpace(scan.MdocDir) == "" || strings.TrimSpace(scan.ImageDir) == "" {
		return
	}
	if _, err := d.project.Scan(ctx, scan); err != nil {
		logging.WarnWithContext(d.logger, "startup scan failed", "startup_scan_failed",
			logging.String("mdoc_dir", scan.MdocDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [scan] directories in the config"),
			logging.String(logging.FieldImpact, "project stays empty until a scan is requested"),
		)
	}
}

// Stop shuts the server down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("tssv daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status reports runtime information.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
		Project:      d.project.Status(),
	}
	if d.watcher != nil {
		status.WatchRoot = d.watcher.Root()
	}
	return status
}
