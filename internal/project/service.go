package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tssv/internal/config"
	"tssv/internal/logging"
	"tssv/internal/matcher"
	"tssv/internal/mdoc"
	"tssv/internal/services"
	"tssv/internal/state"
	"tssv/internal/tilt"
)

const (
	metadataExt = ".mdoc"
	// selfWriteWindow is how long file events for a path the service just
	// wrote are attributed to that write.
	selfWriteWindow = 2 * time.Second
)

// PreviewHook is told where previews of the current scan live and which
// fingerprint produced it.
type PreviewHook interface {
	Rescan(root, fingerprint string)
}

// Service coordinates scanning, selection edits, and saves for one project.
type Service struct {
	state  *state.State
	writer *mdoc.Writer
	base   *slog.Logger
	logger *slog.Logger
	now    func() time.Time

	// scanMu excludes reloads while a scan replaces the project.
	scanMu    sync.RWMutex
	matcher   *matcher.Matcher
	hook      PreviewHook
	listeners []func(config.ScanConfig)

	writesMu sync.Mutex
	writes   map[string]time.Time
}

// New constructs a Service over st.
func New(st *state.State, writer *mdoc.Writer, logger *slog.Logger) *Service {
	return &Service{
		state:  st,
		writer: writer,
		base:   logger,
		logger: logging.NewComponentLogger(logger, "project"),
		now:    time.Now,
		writes: map[string]time.Time{},
	}
}

// SetPreviewHook registers the component notified after every scan.
func (s *Service) SetPreviewHook(hook PreviewHook) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.hook = hook
}

// OnScan registers fn to run with the normalized config after every
// successful scan.
func (s *Service) OnScan(fn func(config.ScanConfig)) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Scan replaces the project with the metadata files found beneath
// cfg.MdocDir. Files that fail to parse are logged and counted; they never
// abort the scan.
func (s *Service) Scan(ctx context.Context, cfg config.ScanConfig) (ScanResult, error) {
	started := s.now()
	cfg, err := cfg.Normalize()
	if err != nil {
		return ScanResult{}, services.Wrap(services.ErrValidation, "project", "scan", "invalid scan config", err)
	}
	if err := cfg.Validate(); err != nil {
		return ScanResult{}, services.Wrap(services.ErrValidation, "project", "scan", "invalid scan config", err)
	}
	if cfg.MdocDir, err = filepath.Abs(cfg.MdocDir); err != nil {
		return ScanResult{}, services.Wrap(services.ErrValidation, "project", "scan", "resolve mdoc_dir", err)
	}
	info, err := os.Stat(cfg.MdocDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ScanResult{}, services.Wrap(services.ErrNotFound, "project", "scan", "mdoc directory not found: "+cfg.MdocDir, nil)
	case errors.Is(err, fs.ErrPermission):
		return ScanResult{}, services.Wrap(services.ErrPermission, "project", "scan", cfg.MdocDir, err)
	case err != nil:
		return ScanResult{}, services.Wrap(services.ErrInternal, "project", "scan", cfg.MdocDir, err)
	case !info.IsDir():
		return ScanResult{}, services.Wrap(services.ErrValidation, "project", "scan", "mdoc_dir is not a directory: "+cfg.MdocDir, nil)
	}

	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	m := matcher.New(matcher.Rules{
		ImagePrefixCut:    cfg.ImagePrefixCut,
		ImageSuffixCut:    cfg.ImageSuffixCut,
		MetadataPrefixCut: cfg.MdocPrefixCut,
		MetadataSuffixCut: cfg.MdocSuffixCut,
	}, s.base)
	if err := m.Build(ctx, cfg.ImageDir); err != nil {
		return ScanResult{}, err
	}

	files, err := s.findMetadata(ctx, cfg.MdocDir)
	if err != nil {
		return ScanResult{}, err
	}

	parsed := make([]*tilt.Series, len(files))
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(runtime.GOMAXPROCS(0), len(files))))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			series, err := mdoc.Parse(path, m)
			if err != nil {
				failed.Add(1)
				logging.WarnWithContext(s.logger, "metadata file skipped", "scan_parse_failed",
					logging.String(logging.FieldMetadataPath, path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix or remove the malformed metadata file"),
					logging.String(logging.FieldImpact, "series excluded from the project"),
				)
				return nil
			}
			parsed[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScanResult{}, err
	}

	// Publish only after every step succeeded; a failed scan keeps the
	// previous project and its pending edits.
	s.state.Replace(cfg, parsed)
	s.matcher = m
	fingerprint := cfg.Fingerprint()
	if s.hook != nil {
		s.hook.Rescan(cfg.PNGDir, fingerprint)
	}
	for _, fn := range s.listeners {
		fn(cfg)
	}

	result := ScanResult{
		Series:      s.state.List(),
		Failed:      int(failed.Load()),
		Fingerprint: fingerprint,
		Elapsed:     s.now().Sub(started),
	}
	s.logger.InfoContext(ctx, "project scanned",
		logging.String("mdoc_dir", cfg.MdocDir),
		logging.String("image_dir", cfg.ImageDir),
		logging.Int("metadata_files", len(files)),
		logging.Int("series", len(result.Series)),
		logging.Int("failed", result.Failed),
		logging.Int("images_indexed", m.Len()),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// findMetadata lists metadata files beneath root. Unreadable subdirectories
// are skipped.
func (s *Service) findMetadata(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				logging.WarnWithContext(s.logger, "skipping unreadable directory", "scan_dir_unreadable",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "metadata files inside are not scanned"),
				)
				return filepath.SkipDir
			}
			return err
		}
		if d.Type().IsRegular() && filepath.Ext(d.Name()) == metadataExt {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, services.Wrap(services.ErrPermission, "project", "scan", root, err)
		}
		return nil, services.Wrap(services.ErrInternal, "project", "scan", root, err)
	}
	return files, nil
}

// List returns every series ordered by ID.
func (s *Service) List() []*tilt.Series {
	return s.state.List()
}

// Get returns the series with the given ID.
func (s *Service) Get(id string) (*tilt.Series, error) {
	series, ok := s.state.Get(id)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "project", "get", "tilt series not found: "+id, nil)
	}
	return series, nil
}

// Unsaved reports whether the series parsed from mdocPath has pending edits.
func (s *Service) Unsaved(mdocPath string) bool {
	return s.state.HasUnsavedChanges(mdocPath)
}

// Frame returns the parsed frame frameID of series id.
func (s *Service) Frame(id string, frameID int) (tilt.Frame, error) {
	series, err := s.Get(id)
	if err != nil {
		return tilt.Frame{}, err
	}
	frame, ok := series.Frame(frameID)
	if !ok {
		return tilt.Frame{}, services.Wrap(services.ErrNotFound, "project", "frame", fmt.Sprintf("frame %d not found in %s", frameID, id), nil)
	}
	return frame, nil
}

// Frames returns every frame of series id with its effective selection.
func (s *Service) Frames(id string) ([]FrameView, error) {
	series, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	overlay := s.state.Overrides(series.MetadataPath)
	views := make([]FrameView, len(series.Frames))
	for i, frame := range series.Frames {
		layered := state.NewLayered(frame.Selected)
		if selected, ok := overlay[frame.ID]; ok {
			layered = layered.With(selected)
		}
		views[i] = newFrameView(frame, layered)
	}
	return views, nil
}

// FrameState returns frame frameID of series id with its effective selection.
func (s *Service) FrameState(id string, frameID int) (FrameView, error) {
	series, frame, err := s.lookup(id, frameID, "frame")
	if err != nil {
		return FrameView{}, err
	}
	return newFrameView(frame, s.state.Override(series.MetadataPath, frameID, frame.Selected)), nil
}

func newFrameView(frame tilt.Frame, layered state.Layered[bool]) FrameView {
	return FrameView{
		Frame:             frame,
		OriginalSelected:  layered.Base(),
		EffectiveSelected: layered.Value(),
		HasOverride:       layered.Differs(),
	}
}

func (s *Service) lookup(id string, frameID int, operation string) (*tilt.Series, tilt.Frame, error) {
	series, ok := s.state.Get(id)
	if !ok {
		return nil, tilt.Frame{}, services.Wrap(services.ErrNotFound, "project", operation, "tilt series not found: "+id, nil)
	}
	frame, ok := series.Frame(frameID)
	if !ok {
		return nil, tilt.Frame{}, services.Wrap(services.ErrNotFound, "project", operation, fmt.Sprintf("frame %d not found in %s", frameID, id), nil)
	}
	return series, frame, nil
}

// SetSelection records the wanted selection of one frame.
func (s *Service) SetSelection(id string, frameID int, selected bool) (FrameView, error) {
	series, frame, err := s.lookup(id, frameID, "select")
	if err != nil {
		return FrameView{}, err
	}
	s.state.MergeOverride(series.MetadataPath, map[int]bool{frameID: selected})
	return newFrameView(frame, s.state.Override(series.MetadataPath, frameID, frame.Selected)), nil
}

// Toggle flips the effective selection of one frame and returns the
// selection before and after.
func (s *Service) Toggle(id string, frameID int) (previous, next bool, err error) {
	series, frame, err := s.lookup(id, frameID, "toggle")
	if err != nil {
		return false, false, err
	}
	s.state.Edit(series.MetadataPath, func(overlay map[int]bool) {
		previous = frame.Selected
		if selected, ok := overlay[frameID]; ok {
			previous = selected
		}
		next = !previous
		overlay[frameID] = next
	})
	return previous, next, nil
}

// SetOverrides replaces the whole overlay of series id.
func (s *Service) SetOverrides(id string, overrides map[int]bool) (int, error) {
	series, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	s.state.SetOverride(series.MetadataPath, overrides)
	return len(overrides), nil
}

// Batch applies op to frameIDs of series id and returns how many frames it
// touched. Unknown frame IDs are skipped.
func (s *Service) Batch(id string, op BatchOp, frameIDs []int) (int, error) {
	if _, ok := ParseBatchOp(string(op)); !ok {
		return 0, services.Wrap(services.ErrValidation, "project", "batch", fmt.Sprintf("unknown operation %q", op), nil)
	}
	series, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	modified := 0
	s.state.Edit(series.MetadataPath, func(overlay map[int]bool) {
		for _, frameID := range frameIDs {
			frame, ok := series.Frame(frameID)
			if !ok {
				continue
			}
			switch op {
			case OpSelect:
				overlay[frameID] = true
			case OpDeselect:
				overlay[frameID] = false
			case OpInvert:
				current, ok := overlay[frameID]
				if !ok {
					current = frame.Selected
				}
				overlay[frameID] = !current
			case OpReset:
				delete(overlay, frameID)
			}
			modified++
		}
	})
	return modified, nil
}

// Reset discards the pending edits of series id.
func (s *Service) Reset(id string) error {
	series, err := s.Get(id)
	if err != nil {
		return err
	}
	s.state.ClearOverrides(series.MetadataPath)
	return nil
}

// Save writes the pending edits of series id to its metadata file.
func (s *Service) Save(ctx context.Context, id string) (SaveResult, error) {
	series, err := s.Get(id)
	if err != nil {
		return SaveResult{}, err
	}
	overrides := s.state.Overrides(series.MetadataPath)
	if len(overrides) == 0 {
		return SaveResult{MetadataPath: series.MetadataPath, Message: "No changes to save", Series: series}, nil
	}
	return s.save(ctx, series, overrides)
}

// SaveSelections writes selections to the metadata file of a loaded series.
func (s *Service) SaveSelections(ctx context.Context, mdocPath string, selections map[int]bool) (SaveResult, error) {
	path, err := absPath(mdocPath)
	if err != nil {
		return SaveResult{}, err
	}
	series, ok := s.state.FindByPath(path)
	if !ok {
		return SaveResult{}, services.Wrap(services.ErrNotFound, "project", "save", "tilt series not found: "+path, nil)
	}
	return s.save(ctx, series, selections)
}

func (s *Service) save(ctx context.Context, series *tilt.Series, selections map[int]bool) (SaveResult, error) {
	path := series.MetadataPath
	s.recordWrite(path)
	written, err := s.writer.Write(path, selections)
	if err != nil {
		return SaveResult{}, err
	}
	s.recordWrite(path)
	s.state.CommitOverrides(path, selections)

	result := SaveResult{
		MetadataPath:  path,
		Saved:         true,
		Message:       fmt.Sprintf("Saved %d frame selections", len(selections)),
		BackupPath:    written.BackupPath,
		BackupCreated: written.BackupCreated,
		Kept:          written.Kept,
		Removed:       written.Removed,
		Series:        series,
	}
	if updated, err := s.reparse(path); err != nil {
		logging.WarnWithContext(s.logger, "saved metadata could not be re-read", "save_reparse_failed",
			logging.String(logging.FieldMetadataPath, path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "project shows the series as it was before the save"),
		)
	} else {
		s.state.Add(updated)
		result.Series = updated
	}
	s.logger.InfoContext(ctx, "series saved",
		logging.String(logging.FieldSeriesID, series.ID),
		logging.String(logging.FieldMetadataPath, path),
		logging.Int("kept", len(written.Kept)),
		logging.Int("removed", len(written.Removed)),
	)
	return result, nil
}

// SaveAll saves every series with pending edits. Failures are collected and
// do not stop the remaining saves.
func (s *Service) SaveAll(ctx context.Context) SaveAllResult {
	var result SaveAllResult
	for _, series := range s.state.List() {
		overrides := s.state.Overrides(series.MetadataPath)
		if len(overrides) == 0 {
			continue
		}
		if _, err := s.save(ctx, series, overrides); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", series.ID, err))
			continue
		}
		result.Saved++
	}
	return result
}

// BackupDelete copies mdocPath aside, deletes it, and drops its series.
func (s *Service) BackupDelete(ctx context.Context, mdocPath string) (mdoc.DeleteResult, error) {
	path, err := absPath(mdocPath)
	if err != nil {
		return mdoc.DeleteResult{}, err
	}
	s.recordWrite(path)
	result, err := s.writer.BackupDelete(path)
	if err != nil {
		return mdoc.DeleteResult{}, err
	}
	s.recordWrite(path)
	removed := s.state.RemoveByPath(path)
	s.logger.InfoContext(ctx, "metadata file removed from project",
		logging.String(logging.FieldMetadataPath, path),
		logging.Int("series_removed", removed),
	)
	return result, nil
}

// Status summarizes the project.
func (s *Service) Status() Status {
	cfg, ok := s.state.Config()
	return Status{
		TotalSeries:  s.state.Len(),
		HasConfig:    ok,
		UnsavedCount: s.state.UnsavedCount(),
		Config:       cfg,
	}
}

// Reload re-reads mdocPath after an external change. A file that no longer
// exists is dropped from the project.
func (s *Service) Reload(ctx context.Context, mdocPath string) error {
	path, err := absPath(mdocPath)
	if err != nil {
		return err
	}
	s.scanMu.RLock()
	defer s.scanMu.RUnlock()
	if s.matcher == nil {
		return services.Wrap(services.ErrValidation, "project", "reload", "no project has been scanned", nil)
	}
	series, err := mdoc.Parse(path, s.matcher)
	if errors.Is(err, services.ErrNotFound) {
		s.forget(ctx, path)
		return nil
	}
	if err != nil {
		return err
	}
	s.state.Add(series)
	s.logger.InfoContext(ctx, "series reloaded",
		logging.String(logging.FieldSeriesID, series.ID),
		logging.String(logging.FieldMetadataPath, path),
		logging.Int("frames", len(series.Frames)),
	)
	return nil
}

// Forget drops the series parsed from mdocPath.
func (s *Service) Forget(ctx context.Context, mdocPath string) int {
	path, err := absPath(mdocPath)
	if err != nil {
		return 0
	}
	return s.forget(ctx, path)
}

func (s *Service) forget(ctx context.Context, path string) int {
	removed := s.state.RemoveByPath(path)
	if removed > 0 {
		s.logger.InfoContext(ctx, "series dropped after file removal",
			logging.String(logging.FieldMetadataPath, path),
			logging.Int("series_removed", removed),
		)
	}
	return removed
}

// RecentlyWritten reports whether the service itself wrote mdocPath within
// the last couple of seconds.
func (s *Service) RecentlyWritten(mdocPath string) bool {
	path, err := absPath(mdocPath)
	if err != nil {
		return false
	}
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	at, ok := s.writes[path]
	if !ok {
		return false
	}
	if s.now().Sub(at) > selfWriteWindow {
		delete(s.writes, path)
		return false
	}
	return true
}

func (s *Service) recordWrite(path string) {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()
	s.writes[path] = s.now()
}

func (s *Service) reparse(path string) (*tilt.Series, error) {
	s.scanMu.RLock()
	m := s.matcher
	s.scanMu.RUnlock()
	if m == nil {
		return nil, errors.New("no matcher available")
	}
	return mdoc.Parse(path, m)
}

func absPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", services.Wrap(services.ErrValidation, "project", "", "metadata path is required", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "project", "", "resolve "+path, err)
	}
	return abs, nil
}
