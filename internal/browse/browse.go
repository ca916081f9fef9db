// Package browse lists and checks directories for the project picker.
package browse

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"tssv/internal/services"
)

// Entry types.
const (
	TypeDir  = "dir"
	TypeFile = "file"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Listing is the resolved directory and its children, directories first.
type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// Validation reports whether a path is a usable directory.
type Validation struct {
	Valid    bool   `json:"valid"`
	Path     string `json:"path,omitempty"`
	Writable bool   `json:"writable"`
	Reason   string `json:"reason,omitempty"`
}

// List returns the children of dir. Relative paths resolve against the
// working directory and symlinks are followed.
func List(dir string) (Listing, error) {
	resolved, err := resolve(dir)
	if err != nil {
		return Listing{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Listing{}, classify(err, "list", resolved)
	}
	if !info.IsDir() {
		return Listing{}, services.Wrap(services.ErrValidation, "browse", "list", "not a directory: "+resolved, nil)
	}

	children, err := os.ReadDir(resolved)
	if err != nil {
		return Listing{}, classify(err, "list", resolved)
	}
	entries := make([]Entry, 0, len(children))
	for _, child := range children {
		entries = append(entries, Entry{Name: child.Name(), Type: entryType(resolved, child)})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Type != b.Type {
			if a.Type == TypeDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return Listing{Path: resolved, Entries: entries}, nil
}

// Validate checks that dir exists and is a directory, and reports whether the
// current process may write to it. Missing paths are reported, not returned
// as errors.
func Validate(dir string) (Validation, error) {
	resolved, err := resolve(dir)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return Validation{Reason: "Path does not exist"}, nil
		}
		return Validation{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Validation{Reason: "Path does not exist"}, nil
		}
		return Validation{}, classify(err, "validate", resolved)
	}
	if !info.IsDir() {
		return Validation{Path: resolved, Reason: "Not a directory"}, nil
	}
	return Validation{
		Valid:    true,
		Path:     resolved,
		Writable: unix.Access(resolved, unix.W_OK) == nil,
	}, nil
}

// Home returns the current user's home directory.
func Home() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", services.Wrap(services.ErrInternal, "browse", "home", "", err)
	}
	return home, nil
}

func resolve(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", services.Wrap(services.ErrValidation, "browse", "", "path is required", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "browse", "", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", classify(err, "resolve", abs)
	}
	return resolved, nil
}

func entryType(dir string, child fs.DirEntry) string {
	if child.IsDir() {
		return TypeDir
	}
	if child.Type()&fs.ModeSymlink != 0 {
		if info, err := os.Stat(filepath.Join(dir, child.Name())); err == nil && info.IsDir() {
			return TypeDir
		}
	}
	return TypeFile
}

func classify(err error, operation, path string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return services.Wrap(services.ErrNotFound, "browse", operation, "directory not found: "+path, nil)
	case errors.Is(err, fs.ErrPermission):
		return services.Wrap(services.ErrPermission, "browse", operation, "permission denied: "+path, nil)
	default:
		return services.Wrap(services.ErrInternal, "browse", operation, path, err)
	}
}
