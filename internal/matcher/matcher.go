// Package matcher resolves the image file names referenced by metadata
// records to raw image paths on disk.
//
// Both sides are reduced to a cut key by trimming a fixed number of leading
// and trailing characters. Image files are indexed under the key of their
// full name and of their extension-stripped name; lookups try an explicit,
// ordered list of candidate keys and return the first hit.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"tssv/internal/logging"
	"tssv/internal/services"
)

// CutKey removes prefixCut leading and suffixCut trailing characters from
// name. Counts are in characters, not bytes.
func CutKey(name string, prefixCut, suffixCut int) (string, error) {
	if prefixCut < 0 || suffixCut < 0 {
		return "", services.Wrap(services.ErrValidation, "matcher", "cut key", "cut values must be non-negative", nil)
	}
	runes := []rune(name)
	if prefixCut+suffixCut > len(runes) {
		return "", services.Wrap(services.ErrValidation, "matcher", "cut key",
			fmt.Sprintf("total cut %d exceeds length of %q", prefixCut+suffixCut, name), nil)
	}
	return string(runes[prefixCut : len(runes)-suffixCut]), nil
}

// Rules configures the cuts applied on each side. Image cuts apply to indexed
// file names and to every lookup; metadata cuts are applied to lookup names
// first, for references that carry extra characters the image files lack.
type Rules struct {
	ImagePrefixCut    int
	ImageSuffixCut    int
	MetadataPrefixCut int
	MetadataSuffixCut int
}

// Validate rejects negative cut values.
func (r Rules) Validate() error {
	for _, v := range []int{r.ImagePrefixCut, r.ImageSuffixCut, r.MetadataPrefixCut, r.MetadataSuffixCut} {
		if v < 0 {
			return services.Wrap(services.ErrValidation, "matcher", "rules", "cut values must be non-negative", nil)
		}
	}
	return nil
}

// Matcher holds the key to path table built from an image directory.
type Matcher struct {
	rules  Rules
	logger *slog.Logger

	mu    sync.RWMutex
	table map[string]string
}

// New returns an empty matcher using rules.
func New(rules Rules, logger *slog.Logger) *Matcher {
	return &Matcher{
		rules:  rules,
		logger: logging.NewComponentLogger(logger, "matcher"),
		table:  map[string]string{},
	}
}

// Rules returns the cut rules this matcher applies.
func (m *Matcher) Rules() Rules {
	return m.rules
}

// Build replaces the table with every regular file found beneath imageDir.
// Later-walked files win on key collisions. A missing directory yields an
// empty table and unreadable subdirectories are skipped.
func (m *Matcher) Build(ctx context.Context, imageDir string) error {
	if err := m.rules.Validate(); err != nil {
		return err
	}
	table := map[string]string{}

	info, err := os.Stat(imageDir)
	if err != nil || !info.IsDir() {
		logging.WarnWithContext(m.logger, "image directory unavailable", "matcher_dir_missing",
			logging.String("image_dir", imageDir),
			logging.String(logging.FieldErrorHint, "check scan image_dir"),
			logging.String(logging.FieldImpact, "frames keep bare filename placeholders"),
		)
		m.swap(table)
		return nil
	}

	walkErr := filepath.WalkDir(imageDir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != imageDir {
				logging.WarnWithContext(m.logger, "skipping unreadable directory", "matcher_dir_unreadable",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "images inside are not matched"),
				)
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := norm.NFC.String(d.Name())
		for _, candidate := range []string{name, stripExt(name)} {
			key, err := CutKey(candidate, m.rules.ImagePrefixCut, m.rules.ImageSuffixCut)
			if err != nil {
				continue
			}
			table[key] = path
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return walkErr
		}
		if errors.Is(walkErr, fs.ErrPermission) {
			return services.Wrap(services.ErrPermission, "matcher", "build", imageDir, walkErr)
		}
		return services.Wrap(services.ErrInternal, "matcher", "build", imageDir, walkErr)
	}

	m.swap(table)
	m.logger.Debug("image table built", logging.String("image_dir", imageDir), logging.Int("keys", len(table)))
	return nil
}

func (m *Matcher) swap(table map[string]string) {
	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
}

// Len reports the number of keys in the table.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table)
}

// Candidates lists the lookup keys for names in the order they are tried:
// for each name, its full form then its extension-stripped form. Duplicates
// and names too short for the configured cuts are dropped.
func (m *Matcher) Candidates(names ...string) []string {
	keys := make([]string, 0, len(names)*2)
	seen := make(map[string]struct{}, len(names)*2)
	for _, name := range names {
		name = norm.NFC.String(name)
		for _, candidate := range []string{name, stripExt(name)} {
			key, err := m.queryKey(candidate)
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// Resolve walks Candidates(names...) and returns the first indexed path.
func (m *Matcher) Resolve(names ...string) (string, bool) {
	keys := m.Candidates(names...)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range keys {
		if path, ok := m.table[key]; ok {
			return path, true
		}
	}
	return "", false
}

// Match looks up filename, trying its full form before its
// extension-stripped form.
func (m *Matcher) Match(filename string) (string, bool) {
	return m.Resolve(filename)
}

func (m *Matcher) queryKey(name string) (string, error) {
	key, err := CutKey(name, m.rules.MetadataPrefixCut, m.rules.MetadataSuffixCut)
	if err != nil {
		return "", err
	}
	return CutKey(key, m.rules.ImagePrefixCut, m.rules.ImageSuffixCut)
}

func stripExt(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		return name
	}
	return stem
}
