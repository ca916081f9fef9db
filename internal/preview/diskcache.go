package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"tssv/internal/fileutil"
	"tssv/internal/logging"
)

// stampName marks which scan fingerprint produced a series directory.
const stampName = ".scan"

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// DiskCache persists encoded previews as root/seriesID/bin{b}/frame_{id}_q{q}{ext}.
type DiskCache struct {
	ext     string
	minFree float64
	logger  *slog.Logger
	statfs  statfsFunc

	mu          sync.Mutex
	root        string
	fingerprint string
	stamped     map[string]bool
}

// Stats describes disk cache usage.
type Stats struct {
	Root         string          `json:"root"`
	Series       int             `json:"series"`
	Files        int             `json:"files"`
	TotalBytes   int64           `json:"total_bytes"`
	FreeBytes    uint64          `json:"free_bytes"`
	TotalFSBytes uint64          `json:"total_fs_bytes"`
	FreeRatio    float64         `json:"free_ratio"`
	Entries      []SeriesSummary `json:"entries"`
}

// SeriesSummary describes the cached previews of one series.
type SeriesSummary struct {
	SeriesID   string    `json:"series_id"`
	Files      int       `json:"files"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NewDiskCache returns a cache rooted at root that writes files with ext and
// skips writes while the volume's free ratio is below minFree.
func NewDiskCache(root, ext string, minFree float64, logger *slog.Logger) *DiskCache {
	return &DiskCache{
		ext:     ext,
		minFree: minFree,
		logger:  logging.NewComponentLogger(logger, "preview-disk"),
		statfs:  realStatfs,
		root:    root,
		stamped: map[string]bool{},
	}
}

// Root returns the current cache root.
func (d *DiskCache) Root() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// SetRoot moves the cache to root and records the scan fingerprint that
// subsequent writes are stamped with. An empty fingerprint disables stamping.
func (d *DiskCache) SetRoot(root, fingerprint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if root != d.root || fingerprint != d.fingerprint {
		d.stamped = map[string]bool{}
	}
	d.root = root
	d.fingerprint = fingerprint
}

// Fingerprint returns the scan fingerprint new writes are stamped with.
func (d *DiskCache) Fingerprint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fingerprint
}

// Path returns where key is stored under the current root.
func (d *DiskCache) Path(key Key) string {
	return d.pathUnder(d.Root(), key)
}

func (d *DiskCache) pathUnder(root string, key Key) string {
	name := fmt.Sprintf("frame_%04d_q%d%s", key.FrameID, key.Quality, d.ext)
	return filepath.Join(root, key.SeriesID, fmt.Sprintf("bin%d", key.Bin), name)
}

// Get reads the cached preview for key. Unreadable files count as misses.
func (d *DiskCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	root, err := d.prepareSeries(key.SeriesID)
	if err != nil || root == "" {
		return nil, false
	}
	path := d.pathUnder(root, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.DebugContext(ctx, "disk cache read failed",
				logging.String("cache_path", path),
				logging.Error(err),
			)
		}
		return nil, false
	}
	return data, true
}

// Put writes data for key atomically under the current scan fingerprint.
func (d *DiskCache) Put(ctx context.Context, key Key, data []byte) error {
	return d.PutFor(ctx, key, data, d.Fingerprint())
}

// PutFor writes data that was generated under fingerprint. The write is
// dropped when the cache has moved to another root or fingerprint by the time
// the file would land, and skipped when free space is below the configured
// floor.
func (d *DiskCache) PutFor(ctx context.Context, key Key, data []byte, fingerprint string) error {
	if d.Fingerprint() != fingerprint {
		d.logger.DebugContext(ctx, "stale preview not persisted",
			logging.String(logging.FieldSeriesID, key.SeriesID),
			logging.Int(logging.FieldFrameID, key.FrameID),
		)
		return nil
	}
	root, err := d.prepareSeries(key.SeriesID)
	if err != nil {
		return err
	}
	if root == "" {
		return nil
	}
	path := d.pathUnder(root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("preview disk cache: create directory: %w", err)
	}
	ok, ratio, err := d.freeSpaceOK(filepath.Dir(path))
	if err != nil {
		return err
	}
	if !ok {
		logging.WarnWithContext(d.logger, "disk cache write skipped; volume nearly full", "preview_disk_low_space",
			logging.String("cache_path", path),
			logging.Float64("free_ratio", ratio),
			logging.Float64("min_free_ratio", d.minFree),
			logging.String(logging.FieldErrorHint, "free space on the preview volume or lower preview.min_free_ratio"),
			logging.String(logging.FieldImpact, "previews are regenerated after restart"),
		)
		return nil
	}

	tmp, err := fileutil.StageFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("preview disk cache: %w", err)
	}
	// The rename happens under mu so it cannot interleave with a stamp check
	// for a newer fingerprint.
	d.mu.Lock()
	current := d.root == root && d.fingerprint == fingerprint
	if current {
		err = os.Rename(tmp, path)
	}
	d.mu.Unlock()
	if !current {
		_ = os.Remove(tmp)
		d.logger.DebugContext(ctx, "stale preview not persisted",
			logging.String(logging.FieldSeriesID, key.SeriesID),
			logging.Int(logging.FieldFrameID, key.FrameID),
		)
		return nil
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("preview disk cache: rename: %w", err)
	}
	return nil
}

// prepareSeries wipes a series directory written under a different scan
// fingerprint and stamps it with the current one. It returns the root the
// caller must use so a concurrent SetRoot cannot split one request across
// two roots.
func (d *DiskCache) prepareSeries(seriesID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == "" {
		return "", nil
	}
	if d.fingerprint == "" || d.stamped[seriesID] {
		return d.root, nil
	}

	dir := filepath.Join(d.root, seriesID)
	stampPath := filepath.Join(dir, stampName)
	stamp, err := os.ReadFile(stampPath)
	switch {
	case err == nil && strings.TrimSpace(string(stamp)) != d.fingerprint:
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("preview disk cache: wipe stale series: %w", err)
		}
		d.logger.Info("wiped stale preview cache",
			logging.String(logging.FieldSeriesID, seriesID),
			logging.String("cache_dir", dir),
		)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("preview disk cache: read stamp: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("preview disk cache: create directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(stampPath, []byte(d.fingerprint+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("preview disk cache: write stamp: %w", err)
	}
	d.stamped[seriesID] = true
	return d.root, nil
}

func (d *DiskCache) freeSpaceOK(dir string) (bool, float64, error) {
	if d.minFree <= 0 {
		return true, 1, nil
	}
	total, free, err := d.statfs(dir)
	if err != nil {
		return false, 0, fmt.Errorf("preview disk cache: statfs: %w", err)
	}
	if total == 0 {
		return true, 1, nil
	}
	ratio := float64(free) / float64(total)
	return ratio >= d.minFree, ratio, nil
}

// Stats returns per-series usage and filesystem free-space info.
func (d *DiskCache) Stats(ctx context.Context) (Stats, error) {
	root := d.Root()
	entries, total, err := d.scan(ctx, root)
	if err != nil {
		return Stats{}, err
	}
	totalFS, freeFS, err := d.statfs(existingAncestor(root))
	if err != nil {
		return Stats{}, fmt.Errorf("preview disk cache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	s := Stats{
		Root:         root,
		Series:       len(entries),
		TotalBytes:   total,
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
		FreeRatio:    ratio,
		Entries:      make([]SeriesSummary, 0, len(entries)),
	}
	for i := len(entries) - 1; i >= 0; i-- {
		s.Files += entries[i].Files
		s.Entries = append(s.Entries, entries[i])
	}
	return s, nil
}

// Clear removes every cached series under the current root.
func (d *DiskCache) Clear(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == "" {
		return 0, nil
	}
	children, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("preview disk cache: list root: %w", err)
	}
	removed := 0
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(d.root, child.Name())); err != nil {
			return removed, fmt.Errorf("preview disk cache: remove %q: %w", child.Name(), err)
		}
		removed++
	}
	clear(d.stamped)
	d.logger.InfoContext(ctx, "cleared preview disk cache",
		logging.String("cache_dir", d.root),
		logging.Int("series_removed", removed),
	)
	return removed, nil
}

// Prune removes the least recently written series until the cache holds at
// most maxBytes.
func (d *DiskCache) Prune(ctx context.Context, maxBytes int64) (int, error) {
	root := d.Root()
	entries, total, err := d.scan(ctx, root)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(entries) > 0 && total > maxBytes {
		oldest := entries[0]
		dir := filepath.Join(root, oldest.SeriesID)
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("preview disk cache: remove %q: %w", dir, err)
		}
		d.mu.Lock()
		delete(d.stamped, oldest.SeriesID)
		d.mu.Unlock()
		d.logger.InfoContext(ctx, "pruned preview cache entry",
			logging.String(logging.FieldSeriesID, oldest.SeriesID),
			logging.Int64("entry_size_bytes", oldest.SizeBytes),
		)
		total -= oldest.SizeBytes
		entries = entries[1:]
		removed++
	}
	return removed, nil
}

// scan lists series directories oldest first.
func (d *DiskCache) scan(ctx context.Context, root string) ([]SeriesSummary, int64, error) {
	if root == "" {
		return nil, 0, nil
	}
	children, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("preview disk cache: list root: %w", err)
	}
	var (
		entries []SeriesSummary
		total   int64
	)
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		path := filepath.Join(root, child.Name())
		summary, err := summarize(path)
		if err != nil {
			logging.WarnWithContext(d.logger, "skip preview cache entry; excluded from stats and pruning", "preview_cache_entry_skipped",
				logging.String("cache_dir", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect cache directory permissions or remove the entry"),
			)
			continue
		}
		summary.SeriesID = child.Name()
		total += summary.SizeBytes
		entries = append(entries, summary)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.Before(entries[j].ModifiedAt)
	})
	return entries, total, nil
}

func summarize(dir string) (SeriesSummary, error) {
	var s SeriesSummary
	err := filepath.WalkDir(dir, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(s.ModifiedAt) {
			s.ModifiedAt = info.ModTime()
		}
		if entry.IsDir() || entry.Name() == stampName {
			return nil
		}
		s.Files++
		s.SizeBytes += info.Size()
		return nil
	})
	return s, err
}

func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
