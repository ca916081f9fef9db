package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tssv/internal/fileutil"
	"tssv/internal/services"
)

const (
	snapshotPrefix     = "scan_"
	snapshotExt        = ".toml"
	snapshotTimeLayout = "20060102_150405"
)

// Snapshot describes a saved scan configuration.
type Snapshot struct {
	Name    string
	Path    string
	SavedAt time.Time
}

// SaveSnapshot writes scan to dir as scan_YYYYMMDD_HHMMSS.toml. When a
// snapshot with the same second already exists a numeric suffix is added.
func SaveSnapshot(dir string, scan ScanConfig, now time.Time) (Snapshot, error) {
	if strings.TrimSpace(dir) == "" {
		return Snapshot{}, services.Wrap(services.ErrValidation, "config", "save snapshot", "snapshot directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, services.Wrap(services.ErrInternal, "config", "save snapshot", "create snapshot directory", err)
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(scan); err != nil {
		return Snapshot{}, services.Wrap(services.ErrInternal, "config", "save snapshot", "encode", err)
	}

	stamp := now.Format(snapshotTimeLayout)
	for attempt := 0; attempt < 100; attempt++ {
		name := snapshotPrefix + stamp + snapshotExt
		if attempt > 0 {
			name = fmt.Sprintf("%s%s_%d%s", snapshotPrefix, stamp, attempt, snapshotExt)
		}
		path := filepath.Join(dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Snapshot{}, services.Wrap(services.ErrInternal, "config", "save snapshot", "create file", err)
		}
		file.Close()
		if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
			_ = os.Remove(path)
			return Snapshot{}, services.Wrap(services.ErrInternal, "config", "save snapshot", "write file", err)
		}
		return Snapshot{Name: name, Path: path, SavedAt: now}, nil
	}
	return Snapshot{}, services.Wrap(services.ErrConflict, "config", "save snapshot", "too many snapshots for "+stamp, nil)
}

// ListSnapshots returns the saved snapshots in dir, newest first. A missing
// directory yields an empty list.
func ListSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrInternal, "config", "list snapshots", dir, err)
	}
	snapshots := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		snap := Snapshot{Name: name, Path: filepath.Join(dir, name)}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt)
		if len(stamp) >= len(snapshotTimeLayout) {
			if ts, err := time.ParseInLocation(snapshotTimeLayout, stamp[:len(snapshotTimeLayout)], time.Local); err == nil {
				snap.SavedAt = ts
			}
		}
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name > snapshots[j].Name
	})
	return snapshots, nil
}

// LoadSnapshot reads the named snapshot from dir.
func LoadSnapshot(dir, name string) (ScanConfig, error) {
	path, err := snapshotPath(dir, name, "load snapshot")
	if err != nil {
		return ScanConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ScanConfig{}, services.Wrap(services.ErrNotFound, "config", "load snapshot", "snapshot not found: "+name, nil)
		}
		return ScanConfig{}, services.Wrap(services.ErrInternal, "config", "load snapshot", name, err)
	}
	var scan ScanConfig
	if err := toml.Unmarshal(data, &scan); err != nil {
		return ScanConfig{}, services.Wrap(services.ErrValidation, "config", "load snapshot", "parse "+name, err)
	}
	return scan, nil
}

// DeleteSnapshot removes the named snapshot from dir.
func DeleteSnapshot(dir, name string) error {
	path, err := snapshotPath(dir, name, "delete snapshot")
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrNotFound, "config", "delete snapshot", "snapshot not found: "+name, nil)
		}
		return services.Wrap(services.ErrInternal, "config", "delete snapshot", name, err)
	}
	return nil
}

func snapshotPath(dir, name, operation string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", services.Wrap(services.ErrValidation, "config", operation, fmt.Sprintf("invalid snapshot name %q", name), nil)
	}
	if !strings.HasSuffix(name, snapshotExt) {
		return "", services.Wrap(services.ErrValidation, "config", operation, fmt.Sprintf("snapshot name %q must end in %s", name, snapshotExt), nil)
	}
	return filepath.Join(dir, name), nil
}
