package daemon_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tssv/internal/api"
	"tssv/internal/daemon"
	"tssv/internal/imaging"
	"tssv/internal/logging"
	"tssv/internal/mdoc"
	"tssv/internal/preview"
	"tssv/internal/project"
	"tssv/internal/state"
	"tssv/internal/testsupport"
)

type gradientReader struct{}

func (gradientReader) Read(string) (*imaging.Raster, error) {
	raster, err := imaging.NewRaster(16, 16)
	if err != nil {
		return nil, err
	}
	for i := range raster.Pix {
		raster.Pix[i] = float64(i)
	}
	return raster, nil
}

type env struct {
	handler http.Handler
	svc     *project.Service
	scan    api.ScanConfig
	mdocDir string
	snapDir string
}

func newEnv(t *testing.T, token string) *env {
	t.Helper()
	proj := testsupport.NewProject(t)
	e := &env{
		mdocDir: proj.MdocDir,
		snapDir: filepath.Join(proj.Root, "snapshots"),
		scan:    api.FromScanConfig(proj.Scan()),
	}

	logger := logging.NewNop()
	e.svc = project.New(state.New(), mdoc.NewWriter(logger), logger)
	pipeline, err := preview.New(e.svc, gradientReader{}, preview.Options{
		MemoryBudget: 1 << 20,
		CacheDir:     filepath.Join(proj.Root, "cache"),
	}, logger)
	if err != nil {
		t.Fatalf("preview.New: %v", err)
	}
	e.svc.SetPreviewHook(pipeline)
	e.handler = daemon.NewRouter(daemon.RouterOptions{
		Project:     e.svc,
		Preview:     pipeline,
		SnapshotDir: e.snapDir,
		Token:       token,
	}, logger)
	return e
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func (e *env) scanProject(t *testing.T) api.ScanResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/project/scan", e.scan)
	expectStatus(t, rec, http.StatusOK)
	return decode[api.ScanResponse](t, rec)
}

func TestHealthAndRequestID(t *testing.T) {
	e := newEnv(t, "")
	rec := e.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[api.HealthResponse](t, rec); got.Status != "ok" {
		t.Fatalf("unexpected health payload %+v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	echo := httptest.NewRecorder()
	e.handler.ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q, want caller's id", got)
	}
}

func TestTokenProtectsAPIButNotHealth(t *testing.T) {
	e := newEnv(t, "secret")
	expectStatus(t, e.do(t, http.MethodGet, "/health", nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/api/project/status", nil), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/project/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
}

func TestScanListAndStatus(t *testing.T) {
	e := newEnv(t, "")
	scan := e.scanProject(t)
	if scan.Total != 1 || scan.TiltSeries[0].ID != "TS_01" || len(scan.TiltSeries[0].Frames) != 3 {
		t.Fatalf("unexpected scan response %+v", scan)
	}

	list := decode[[]api.TiltSeries](t, e.do(t, http.MethodGet, "/api/ts", nil))
	if len(list) != 1 || list[0].Unsaved {
		t.Fatalf("unexpected list %+v", list)
	}
	frames := decode[[]api.Frame](t, e.do(t, http.MethodGet, "/api/ts/TS_01/frames", nil))
	if len(frames) != 3 || frames[1].ZIndex != 11 || !frames[1].Selected {
		t.Fatalf("unexpected frames %+v", frames)
	}

	status := decode[api.StatusResponse](t, e.do(t, http.MethodGet, "/api/project/status", nil))
	if status.TotalSeries != 1 || !status.HasConfig || status.Config == nil || status.Config.MdocDir != e.mdocDir {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestScanRejectsBadInput(t *testing.T) {
	e := newEnv(t, "")
	expectStatus(t, e.do(t, http.MethodPost, "/api/project/scan", api.ScanConfig{MdocDir: "/does/not/exist", ImageDir: "/tmp"}), http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/project/scan", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
	if decode[api.ErrorResponse](t, rec).Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestSelectionEditsAndSave(t *testing.T) {
	e := newEnv(t, "")
	e.scanProject(t)

	toggle := decode[api.ToggleResponse](t, e.do(t, http.MethodPost, "/api/frame/TS_01/11/toggle", nil))
	if !toggle.PreviousState || toggle.NewState {
		t.Fatalf("unexpected toggle %+v", toggle)
	}
	detail := decode[api.FrameDetail](t, e.do(t, http.MethodGet, "/api/frame/TS_01/11", nil))
	if !detail.OriginalSelected || detail.EffectiveSelected || !detail.HasOverride {
		t.Fatalf("unexpected frame detail %+v", detail)
	}

	batch := decode[api.BatchResponse](t, e.do(t, http.MethodPost, "/api/ts/TS_01/frames/batch",
		api.BatchRequest{Operation: "deselect", FrameIDs: []int{12, 99}}))
	if batch.ModifiedCount != 1 {
		t.Fatalf("modified = %d, want 1", batch.ModifiedCount)
	}

	series := decode[api.TiltSeries](t, e.do(t, http.MethodGet, "/api/ts/TS_01", nil))
	if !series.Unsaved {
		t.Fatal("expected unsaved flag after edits")
	}

	save := decode[api.SaveResponse](t, e.do(t, http.MethodPost, "/api/ts/TS_01/save", nil))
	if !save.Success || !save.BackupCreated || len(save.Kept) != 1 || len(save.Removed) != 2 {
		t.Fatalf("unexpected save %+v", save)
	}
	if save.UpdatedTiltSeries == nil || len(save.UpdatedTiltSeries.Frames) != 1 {
		t.Fatalf("expected refreshed series, got %+v", save.UpdatedTiltSeries)
	}
	if _, err := os.Stat(mdoc.BackupPath(filepath.Join(e.mdocDir, "TS_01.mdoc"))); err != nil {
		t.Fatalf("expected backup: %v", err)
	}

	again := decode[api.SaveResponse](t, e.do(t, http.MethodPost, "/api/ts/TS_01/save", nil))
	if again.Message != "No changes to save" {
		t.Fatalf("second save message = %q", again.Message)
	}
}

func TestSelectAndBatchValidation(t *testing.T) {
	e := newEnv(t, "")
	e.scanProject(t)

	expectStatus(t, e.do(t, http.MethodPost, "/api/frame/TS_01/10/select?selected=maybe", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/api/frame/TS_01/abc/toggle", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, "/api/frame/TS_01/99/toggle", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, "/api/ts/missing", nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodPost, "/api/ts/TS_01/frames/batch", api.BatchRequest{Operation: "explode"}), http.StatusBadRequest)

	sel := decode[api.SelectResponse](t, e.do(t, http.MethodPost, "/api/frame/TS_01/10/select?selected=false", nil))
	if sel.Selected || sel.EffectiveSelected {
		t.Fatalf("unexpected select response %+v", sel)
	}

	batch := decode[api.BatchResponse](t, e.do(t, http.MethodPost, "/api/ts/TS_01/frames/batch?operation=reset",
		api.BatchRequest{FrameIDs: []int{10}}))
	if batch.ModifiedCount != 1 {
		t.Fatalf("query operation: modified = %d, want 1", batch.ModifiedCount)
	}
}

func TestOverridesResetAndSaveAll(t *testing.T) {
	e := newEnv(t, "")
	e.scanProject(t)

	override := decode[api.OverrideResponse](t, e.do(t, http.MethodPost, "/api/ts/TS_01/frames/override", map[int]bool{10: false}))
	if override.Count != 1 {
		t.Fatalf("count = %d, want 1", override.Count)
	}
	expectStatus(t, e.do(t, http.MethodPost, "/api/ts/TS_01/reset", nil), http.StatusOK)
	if e.svc.Status().UnsavedCount != 0 {
		t.Fatal("reset should clear overrides")
	}

	e.do(t, http.MethodPost, "/api/ts/TS_01/frames/override", map[int]bool{10: false})
	all := decode[api.SaveAllResponse](t, e.do(t, http.MethodPost, "/api/project/save-all", nil))
	if !all.Success || all.SavedCount != 1 || all.FailedCount != 0 {
		t.Fatalf("unexpected save-all %+v", all)
	}
}

func TestBatchSaveAndBackupDelete(t *testing.T) {
	e := newEnv(t, "")
	e.scanProject(t)
	path := filepath.Join(e.mdocDir, "TS_01.mdoc")

	expectStatus(t, e.do(t, http.MethodPost, "/api/mdoc/batch-save", api.BatchSaveRequest{}), http.StatusBadRequest)
	save := decode[api.SaveResponse](t, e.do(t, http.MethodPost, "/api/mdoc/batch-save",
		api.BatchSaveRequest{MdocPath: path, Selections: map[int]bool{10: true, 11: true, 12: false}}))
	if len(save.Removed) != 1 || save.Removed[0] != 12 {
		t.Fatalf("unexpected batch save %+v", save)
	}

	del := decode[api.BackupDeleteResponse](t, e.do(t, http.MethodPost, "/api/mdoc/backup-delete", api.BackupDeleteRequest{MdocPath: path}))
	if !del.Success || del.BackupPath == "" || del.PreservedPath == "" {
		t.Fatalf("unexpected delete response %+v", del)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("metadata file should be gone, stat err = %v", err)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/ts/TS_01", nil), http.StatusNotFound)
}

func TestPreviewEndpoints(t *testing.T) {
	e := newEnv(t, "")
	e.scanProject(t)

	caps := decode[preview.Capabilities](t, e.do(t, http.MethodGet, "/api/preview/capabilities", nil))
	if caps.Format != "png" || caps.ContentType != "image/png" {
		t.Fatalf("unexpected capabilities %+v", caps)
	}

	first := e.do(t, http.MethodGet, "/api/preview/TS_01/10?bin=2&quality=80", nil)
	expectStatus(t, first, http.StatusOK)
	if got := first.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("content type = %q", got)
	}
	if got := first.Header().Get("X-Preview-Source"); got != string(preview.SourceGenerated) {
		t.Fatalf("first source = %q, want generated", got)
	}
	second := e.do(t, http.MethodGet, "/api/preview/TS_01/10?bin=2&quality=80", nil)
	if got := second.Header().Get("X-Preview-Source"); got != string(preview.SourceMemory) {
		t.Fatalf("second source = %q, want memory", got)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("cached preview differs from generated one")
	}

	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/10?bin=3", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/10?quality=high", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/10?bin=0", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/10?quality=0", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/10?quality=101", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/preview/TS_01/77", nil), http.StatusNotFound)
}

func TestFilesBrowseAndSnapshots(t *testing.T) {
	e := newEnv(t, "")

	listing := decode[struct {
		Path    string `json:"path"`
		Entries []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"entries"`
	}](t, e.do(t, http.MethodGet, "/api/files/list?path="+filepath.Dir(e.mdocDir), nil))
	if len(listing.Entries) == 0 || listing.Entries[0].Type != "dir" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	valid := decode[struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}](t, e.do(t, http.MethodGet, "/api/files/validate?path="+filepath.Join(e.mdocDir, "nope"), nil))
	if valid.Valid || valid.Reason != "Path does not exist" {
		t.Fatalf("unexpected validation %+v", valid)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/files/validate", nil), http.StatusBadRequest)

	saved := decode[api.SaveConfigResponse](t, e.do(t, http.MethodPost, "/api/files/save-config", e.scan))
	if !saved.Success || !strings.HasPrefix(saved.Filename, "scan_") {
		t.Fatalf("unexpected save-config %+v", saved)
	}
	configs := decode[api.ListConfigsResponse](t, e.do(t, http.MethodGet, "/api/files/list-configs", nil))
	if len(configs.Configs) != 1 || configs.Configs[0] != saved.Filename {
		t.Fatalf("unexpected configs %+v", configs)
	}
	loaded := decode[api.ScanConfig](t, e.do(t, http.MethodGet, "/api/files/load-config?filename="+saved.Filename, nil))
	if loaded.MdocDir != e.scan.MdocDir || loaded.ImageDir != e.scan.ImageDir {
		t.Fatalf("loaded %+v, want %+v", loaded, e.scan)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/files/load-config?filename=../etc.toml", nil), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodDelete, "/api/files/delete-config?filename="+saved.Filename, nil), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodDelete, "/api/files/delete-config?filename="+saved.Filename, nil), http.StatusNotFound)
}
