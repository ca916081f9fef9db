package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"tssv/internal/logging"
)

type recordingTarget struct {
	mu       sync.Mutex
	reloaded []string
	forgot   []string
	own      map[string]bool
}

func (r *recordingTarget) Reload(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloaded = append(r.reloaded, path)
	return nil
}

func (r *recordingTarget) Forget(_ context.Context, path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgot = append(r.forgot, path)
	return 1
}

func (r *recordingTarget) RecentlyWritten(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.own[path]
}

func (r *recordingTarget) snapshot() (reloaded, forgot []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reloaded), slices.Clone(r.forgot)
}

func startWatcher(t *testing.T, target Target, root string) {
	t.Helper()
	w, err := New(target, 20*time.Millisecond, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.SetRoot(root); err != nil {
		t.Fatalf("SetRoot: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherReloadsChangedMetadataOnce(t *testing.T) {
	root := t.TempDir()
	target := &recordingTarget{}
	startWatcher(t, target, root)

	path := filepath.Join(root, "TS_01.mdoc")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("[ZValue = 0]\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		reloaded, _ := target.snapshot()
		return len(reloaded) > 0
	})
	time.Sleep(100 * time.Millisecond)
	reloaded, _ := target.snapshot()
	if len(reloaded) != 1 || reloaded[0] != path {
		t.Fatalf("expected one debounced reload of %s, got %v", path, reloaded)
	}
}

func TestWatcherForgetsRemovedMetadata(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "TS_01.mdoc")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := &recordingTarget{}
	startWatcher(t, target, root)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, forgot := target.snapshot()
		return len(forgot) == 1 && forgot[0] == path
	})
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	root := t.TempDir()
	own := filepath.Join(root, "own.mdoc")
	other := filepath.Join(root, "other.mdoc")
	target := &recordingTarget{own: map[string]bool{own: true}}
	startWatcher(t, target, root)

	if err := os.WriteFile(own, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		reloaded, _ := target.snapshot()
		return slices.Contains(reloaded, other)
	})
	time.Sleep(100 * time.Millisecond)
	reloaded, _ := target.snapshot()
	if slices.Contains(reloaded, own) {
		t.Fatalf("own write should be ignored, got %v", reloaded)
	}
}

func TestWatcherFollowsNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	target := &recordingTarget{}
	startWatcher(t, target, root)

	sub := filepath.Join(root, "grid2")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// give the watcher time to pick up the new directory
	time.Sleep(200 * time.Millisecond)
	path := filepath.Join(sub, "TS_09.mdoc")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		reloaded, _ := target.snapshot()
		return slices.Contains(reloaded, path)
	})
}
