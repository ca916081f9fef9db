package mdoc

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"tssv/internal/fileutil"
	"tssv/internal/logging"
	"tssv/internal/services"
)

const (
	backupSuffix    = ".bak"
	deletedSuffix   = ".deleted"
	maxDeletedSlots = 1000
)

// BackupPath returns the sibling file holding the pre-edit snapshot of mdocPath.
func BackupPath(mdocPath string) string {
	return mdocPath + backupSuffix
}

// Rewrite returns content with the sections of deselected frames removed.
// Frames missing from selections are kept. Header lines and the lines of kept
// frames, marker included, are copied byte for byte.
func Rewrite(content string, selections map[int]bool) (out string, kept, removed []int, err error) {
	var b strings.Builder
	b.Grow(len(content))

	var section strings.Builder
	inFrame := false
	keep := false
	currentID := 0
	seen := map[int]struct{}{}

	flush := func() {
		if !inFrame {
			return
		}
		if keep {
			b.WriteString(section.String())
			kept = append(kept, currentID)
		} else {
			removed = append(removed, currentID)
		}
		section.Reset()
	}

	lineNo := 0
	for line := range strings.Lines(content) {
		lineNo++
		id, isMarker, perr := parseFrameMarker(strings.TrimSpace(line))
		if isMarker {
			if perr != nil {
				return "", nil, nil, fmt.Errorf("line %d: %w", lineNo, perr)
			}
			if _, dup := seen[id]; dup {
				return "", nil, nil, fmt.Errorf("line %d: duplicate frame id %d", lineNo, id)
			}
			seen[id] = struct{}{}
			flush()
			inFrame = true
			currentID = id
			keep = true
			if selected, ok := selections[id]; ok {
				keep = selected
			}
			section.WriteString(line)
			continue
		}
		if inFrame {
			section.WriteString(line)
		} else {
			b.WriteString(line)
		}
	}
	flush()

	if len(seen) == 0 {
		return "", nil, nil, errors.New("no frames found")
	}
	if len(kept) == 0 {
		return "", nil, nil, errors.New("selection would remove every frame")
	}
	return b.String(), kept, removed, nil
}

// WriteResult describes a completed rewrite.
type WriteResult struct {
	BackupPath    string
	BackupCreated bool
	Kept          []int
	Removed       []int
}

// DeleteResult describes a completed backup-and-delete.
type DeleteResult struct {
	BackupPath string
	// PreservedPath is where the deleted content was copied. It equals
	// BackupPath unless an earlier backup already existed.
	PreservedPath string
}

// Writer applies selections to metadata files. Writes to the same path are
// serialized within the process.
type Writer struct {
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter constructs a Writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{
		logger: logging.NewComponentLogger(logger, "mdoc-writer"),
		locks:  map[string]*sync.Mutex{},
	}
}

func (w *Writer) lock(path string) func() {
	w.mu.Lock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	w.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Write rewrites mdocPath so that only frames selected in selections (or
// absent from it) remain. The first write copies the original to
// BackupPath(mdocPath); later writes leave that backup alone. The new content
// replaces the original atomically.
func (w *Writer) Write(mdocPath string, selections map[int]bool) (WriteResult, error) {
	unlock := w.lock(mdocPath)
	defer unlock()

	info, err := os.Stat(mdocPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WriteResult{}, services.Wrap(services.ErrNotFound, "mdoc", "write", "metadata file not found: "+mdocPath, nil)
		}
		return WriteResult{}, services.Wrap(services.ErrConflict, "mdoc", "write", mdocPath, err)
	}
	data, err := os.ReadFile(mdocPath)
	if err != nil {
		return WriteResult{}, services.Wrap(services.ErrConflict, "mdoc", "write", "read "+mdocPath, err)
	}

	out, kept, removed, err := Rewrite(string(data), selections)
	if err != nil {
		return WriteResult{}, services.Wrap(services.ErrValidation, "mdoc", "write", mdocPath, err)
	}

	result := WriteResult{BackupPath: BackupPath(mdocPath), Kept: kept, Removed: removed}
	switch err := fileutil.CopyFileExclusive(mdocPath, result.BackupPath); {
	case err == nil:
		result.BackupCreated = true
	case errors.Is(err, fs.ErrExist):
	default:
		return WriteResult{}, services.Wrap(services.ErrConflict, "mdoc", "write", "create backup "+result.BackupPath, err)
	}

	if err := fileutil.WriteFileAtomic(mdocPath, []byte(out), info.Mode().Perm()); err != nil {
		return WriteResult{}, services.Wrap(services.ErrConflict, "mdoc", "write", "replace "+mdocPath, err)
	}

	w.logger.Info("metadata rewritten",
		logging.String(logging.FieldMetadataPath, mdocPath),
		logging.Int("kept", len(kept)),
		logging.Int("removed", len(removed)),
		logging.Bool("backup_created", result.BackupCreated),
	)
	return result, nil
}

// BackupDelete removes mdocPath after copying it aside. The copy goes to
// BackupPath(mdocPath) when no backup exists yet; otherwise the existing
// backup is kept and the current content is preserved as mdocPath.deleted.
func (w *Writer) BackupDelete(mdocPath string) (DeleteResult, error) {
	unlock := w.lock(mdocPath)
	defer unlock()

	if _, err := os.Stat(mdocPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DeleteResult{}, services.Wrap(services.ErrNotFound, "mdoc", "backup-delete", "metadata file not found: "+mdocPath, nil)
		}
		return DeleteResult{}, services.Wrap(services.ErrConflict, "mdoc", "backup-delete", mdocPath, err)
	}

	result := DeleteResult{BackupPath: BackupPath(mdocPath)}
	err := fileutil.CopyFileExclusive(mdocPath, result.BackupPath)
	switch {
	case err == nil:
		result.PreservedPath = result.BackupPath
	case errors.Is(err, fs.ErrExist):
		preserved, perr := preserveDeleted(mdocPath)
		if perr != nil {
			return DeleteResult{}, services.Wrap(services.ErrConflict, "mdoc", "backup-delete", "preserve current content", perr)
		}
		result.PreservedPath = preserved
	default:
		return DeleteResult{}, services.Wrap(services.ErrConflict, "mdoc", "backup-delete", "create backup "+result.BackupPath, err)
	}

	if err := os.Remove(mdocPath); err != nil {
		return DeleteResult{}, services.Wrap(services.ErrConflict, "mdoc", "backup-delete", "remove "+mdocPath, err)
	}

	w.logger.Info("metadata file backed up and deleted",
		logging.String(logging.FieldMetadataPath, mdocPath),
		logging.String("backup_path", result.BackupPath),
		logging.String("preserved_path", result.PreservedPath),
	)
	return result, nil
}

func preserveDeleted(mdocPath string) (string, error) {
	for slot := 0; slot < maxDeletedSlots; slot++ {
		target := mdocPath + deletedSuffix
		if slot > 0 {
			target = fmt.Sprintf("%s%s.%d", mdocPath, deletedSuffix, slot)
		}
		err := fileutil.CopyFileExclusive(mdocPath, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free %s slot for %s", deletedSuffix, mdocPath)
}
