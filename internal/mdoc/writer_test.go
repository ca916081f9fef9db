package mdoc

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"tssv/internal/logging"
	"tssv/internal/services"
)

func TestRewriteAllSelectedIsIdentity(t *testing.T) {
	content := sampleContent(0, 1, 2, 3)
	out, kept, removed, err := Rewrite(content, map[int]bool{0: true, 1: true, 2: true, 3: true})
	if err != nil {
		t.Fatal(err)
	}
	if out != content {
		t.Fatal("all-true selection changed the content")
	}
	if !slices.Equal(kept, []int{0, 1, 2, 3}) || len(removed) != 0 {
		t.Fatalf("unexpected kept=%v removed=%v", kept, removed)
	}

	out, _, _, err = Rewrite(content, nil)
	if err != nil || out != content {
		t.Fatalf("empty selection should keep everything: %v", err)
	}
}

func TestRewriteRemovesSubsetVerbatim(t *testing.T) {
	content := sampleContent(0, 1, 2, 3)
	out, kept, removed, err := Rewrite(content, map[int]bool{1: false, 3: false, 2: true})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(kept, []int{0, 2}) || !slices.Equal(removed, []int{1, 3}) {
		t.Fatalf("unexpected kept=%v removed=%v", kept, removed)
	}
	want := sampleHeader + sampleFrame(0, -3) + sampleFrame(2, 3)
	if out != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out, want)
	}
}

func TestRewriteRejects(t *testing.T) {
	if _, _, _, err := Rewrite(sampleContent(0, 1), map[int]bool{0: false, 1: false}); err == nil {
		t.Fatal("expected error when every frame is deselected")
	}
	if _, _, _, err := Rewrite("[ZValue = x]\n", nil); err == nil {
		t.Fatal("expected error for unparsable marker")
	}
	if _, _, _, err := Rewrite("header only\n", nil); err == nil {
		t.Fatal("expected error for content without frames")
	}
}

func TestWriteCreatesBackupOnce(t *testing.T) {
	original := sampleContent(10, 11, 12)
	path := writeSample(t, original)
	w := NewWriter(logging.NewNop())

	first, err := w.Write(path, map[int]bool{11: false})
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	if !first.BackupCreated || first.BackupPath != path+".bak" {
		t.Fatalf("unexpected first result %+v", first)
	}

	series, err := Parse(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids := series.FrameIDs(); !slices.Equal(ids, []int{10, 12}) {
		t.Fatalf("after first save ids = %v, want [10 12]", ids)
	}

	second, err := w.Write(path, map[int]bool{12: false})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if second.BackupCreated {
		t.Fatal("second write must not replace the backup")
	}
	series, err = Parse(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids := series.FrameIDs(); !slices.Equal(ids, []int{10}) {
		t.Fatalf("after second save ids = %v, want [10]", ids)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	if string(backup) != original {
		t.Fatal("backup does not hold the pre-edit content")
	}
	matches, _ := filepath.Glob(path + ".bak*")
	if len(matches) != 1 {
		t.Fatalf("expected exactly one backup, got %v", matches)
	}
}

func TestWriteRepeatedSavesKeepIDs(t *testing.T) {
	path := writeSample(t, sampleContent(3, 5, 8, 13))
	w := NewWriter(logging.NewNop())
	for i := 0; i < 5; i++ {
		if _, err := w.Write(path, map[int]bool{5: false}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		series, err := Parse(path, nil)
		if err != nil {
			t.Fatal(err)
		}
		if ids := series.FrameIDs(); !slices.Equal(ids, []int{3, 8, 13}) {
			t.Fatalf("save %d: ids = %v", i, ids)
		}
	}
}

func TestWritePreservesModeAndLeavesNoTemp(t *testing.T) {
	path := writeSample(t, sampleContent(0, 1))
	w := NewWriter(logging.NewNop())
	if _, err := w.Write(path, map[int]bool{0: false}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("mode changed to %o", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temporary file left behind: %s", entry.Name())
		}
	}
}

func TestWriteValidationLeavesFileUntouched(t *testing.T) {
	original := sampleContent(0, 1)
	path := writeSample(t, original)
	w := NewWriter(logging.NewNop())

	_, err := w.Write(path, map[int]bool{0: false, 1: false})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Fatal("file modified by rejected write")
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("backup created by rejected write")
	}
}

func TestWriteMissingFile(t *testing.T) {
	w := NewWriter(logging.NewNop())
	_, err := w.Write(filepath.Join(t.TempDir(), "absent.mdoc"), nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWriteFailureIsConflict(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	original := sampleContent(0, 1)
	path := writeSample(t, original)
	dir := filepath.Dir(path)
	w := NewWriter(logging.NewNop())
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err := w.Write(path, map[int]bool{0: false})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Fatal("original modified by failed write")
	}
}

func TestBackupDelete(t *testing.T) {
	original := sampleContent(0, 1)
	path := writeSample(t, original)
	w := NewWriter(logging.NewNop())

	result, err := w.BackupDelete(path)
	if err != nil {
		t.Fatalf("BackupDelete: %v", err)
	}
	if result.PreservedPath != path+".bak" {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("original still present")
	}
	data, _ := os.ReadFile(path + ".bak")
	if string(data) != original {
		t.Fatal("backup content mismatch")
	}
}

func TestBackupDeleteKeepsExistingBackup(t *testing.T) {
	original := sampleContent(0, 1, 2)
	path := writeSample(t, original)
	w := NewWriter(logging.NewNop())

	if _, err := w.Write(path, map[int]bool{2: false}); err != nil {
		t.Fatal(err)
	}
	edited, _ := os.ReadFile(path)

	result, err := w.BackupDelete(path)
	if err != nil {
		t.Fatalf("BackupDelete: %v", err)
	}
	if result.PreservedPath != path+".deleted" {
		t.Fatalf("expected .deleted copy, got %+v", result)
	}
	backup, _ := os.ReadFile(path + ".bak")
	if string(backup) != original {
		t.Fatal("existing backup was overwritten")
	}
	preserved, _ := os.ReadFile(path + ".deleted")
	if string(preserved) != string(edited) {
		t.Fatal("deleted content not preserved")
	}
}

func TestBackupDeleteMissingFile(t *testing.T) {
	w := NewWriter(logging.NewNop())
	_, err := w.BackupDelete(filepath.Join(t.TempDir(), "absent.mdoc"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
