// Package watch reloads metadata files that change on disk while the project
// is open.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tssv/internal/logging"
)

const metadataExt = ".mdoc"

// Target receives debounced metadata changes.
type Target interface {
	Reload(ctx context.Context, mdocPath string) error
	Forget(ctx context.Context, mdocPath string) int
	RecentlyWritten(mdocPath string) bool
}

// Watcher follows one metadata directory tree at a time.
type Watcher struct {
	target   Target
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	root   string
	timers map[string]*time.Timer
	closed bool
}

// New starts an fsnotify watcher. Nothing is watched until SetRoot.
func New(target Target, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		target:   target,
		debounce: debounce,
		logger:   logging.NewComponentLogger(logger, "watch"),
		fsw:      fsw,
		timers:   map[string]*time.Timer{},
	}, nil
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root
}

// SetRoot replaces the watched tree with root and every directory beneath it.
func (w *Watcher) SetRoot(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("watch: watcher closed")
	}
	for _, path := range w.fsw.WatchList() {
		_ = w.fsw.Remove(path)
	}
	for _, timer := range w.timers {
		timer.Stop()
	}
	clear(w.timers)
	w.root = root
	if root == "" {
		return nil
	}
	if err := w.addTree(root); err != nil {
		return err
	}
	w.logger.Info("watching metadata directory", logging.String("mdoc_dir", root))
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			logging.WarnWithContext(w.logger, "directory not watched", "watch_add_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches"),
				logging.String(logging.FieldImpact, "external edits inside are not picked up"),
			)
		}
		return nil
	})
}

// Run dispatches events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watcher error", "watch_error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if !w.closed {
				_ = w.addTree(event.Name)
			}
			w.mu.Unlock()
			return
		}
	}
	if filepath.Ext(event.Name) != metadataExt {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	path := event.Name
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.apply(ctx, path)
	})
}

func (w *Watcher) apply(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if w.target.RecentlyWritten(path) {
		w.logger.Debug("ignoring own write", logging.String(logging.FieldMetadataPath, path))
		return
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		w.target.Forget(ctx, path)
		return
	}
	if err := w.target.Reload(ctx, path); err != nil {
		logging.WarnWithContext(w.logger, "metadata reload failed", "watch_reload_failed",
			logging.String(logging.FieldMetadataPath, path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "project keeps the previous version of the series"),
		)
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, timer := range w.timers {
		timer.Stop()
	}
	clear(w.timers)
	_ = w.fsw.Close()
}
