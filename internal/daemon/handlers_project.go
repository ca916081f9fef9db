package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tssv/internal/api"
	"tssv/internal/project"
	"tssv/internal/services"
)

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func frameParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "frame")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "api", "frame id", "invalid frame id "+strconv.Quote(raw), nil)
	}
	return id, nil
}

// Scans and saves keep running when the caller disconnects.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *handlers) scan(w http.ResponseWriter, r *http.Request) {
	var body api.ScanConfig
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, r, "invalid scan config", err)
		return
	}
	result, err := h.project.Scan(detached(r), body.ToScanConfig())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromScanResult(result))
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.FromStatus(h.project.Status()))
}

func (h *handlers) saveAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.FromSaveAllResult(h.project.SaveAll(detached(r))))
}

func (h *handlers) listSeries(w http.ResponseWriter, _ *http.Request) {
	all := h.project.List()
	out := make([]api.TiltSeries, len(all))
	for i, series := range all {
		out[i] = api.FromSeries(series, h.project.Unsaved(series.MetadataPath))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.project.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSeries(series, h.project.Unsaved(series.MetadataPath)))
}

func (h *handlers) seriesFrames(w http.ResponseWriter, r *http.Request) {
	series, err := h.project.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromFrames(series.Frames))
}

func (h *handlers) setOverrides(w http.ResponseWriter, r *http.Request) {
	var overrides map[int]bool
	if err := decodeBody(r, &overrides); err != nil {
		h.badRequest(w, r, "overrides must map frame ids to booleans", err)
		return
	}
	count, err := h.project.SetOverrides(chi.URLParam(r, "id"), overrides)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.OverrideResponse{Success: true, Count: count})
}

func (h *handlers) batch(w http.ResponseWriter, r *http.Request) {
	var body api.BatchRequest
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, r, "invalid batch request", err)
		return
	}
	name := strings.TrimSpace(body.Operation)
	if name == "" {
		name = strings.TrimSpace(r.URL.Query().Get("operation"))
	}
	op, ok := project.ParseBatchOp(name)
	if !ok {
		h.badRequest(w, r, "unknown operation "+strconv.Quote(name), nil)
		return
	}
	modified, err := h.project.Batch(chi.URLParam(r, "id"), op, body.FrameIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BatchResponse{Success: true, ModifiedCount: modified})
}

func (h *handlers) saveSeries(w http.ResponseWriter, r *http.Request) {
	result, err := h.project.Save(detached(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSaveResult(result))
}

func (h *handlers) resetSeries(w http.ResponseWriter, r *http.Request) {
	if err := h.project.Reset(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ResetResponse{Success: true, Message: "Selections reset"})
}

func (h *handlers) frameState(w http.ResponseWriter, r *http.Request) {
	frameID, err := frameParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.project.FrameState(chi.URLParam(r, "id"), frameID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromFrameView(view))
}

func (h *handlers) selectFrame(w http.ResponseWriter, r *http.Request) {
	frameID, err := frameParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	raw := r.URL.Query().Get("selected")
	selected, err := strconv.ParseBool(raw)
	if err != nil {
		h.badRequest(w, r, "selected must be true or false", nil)
		return
	}
	view, err := h.project.SetSelection(chi.URLParam(r, "id"), frameID, selected)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SelectResponse{
		Success:           true,
		FrameID:           frameID,
		Selected:          selected,
		EffectiveSelected: view.EffectiveSelected,
	})
}

func (h *handlers) toggleFrame(w http.ResponseWriter, r *http.Request) {
	frameID, err := frameParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	previous, next, err := h.project.Toggle(chi.URLParam(r, "id"), frameID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ToggleResponse{
		Success:       true,
		FrameID:       frameID,
		PreviousState: previous,
		NewState:      next,
	})
}

func (h *handlers) batchSave(w http.ResponseWriter, r *http.Request) {
	var body api.BatchSaveRequest
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, r, "invalid batch save request", err)
		return
	}
	if strings.TrimSpace(body.MdocPath) == "" {
		h.badRequest(w, r, "mdocPath is required", nil)
		return
	}
	result, err := h.project.SaveSelections(detached(r), body.MdocPath, body.Selections)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSaveResult(result))
}

func (h *handlers) backupDelete(w http.ResponseWriter, r *http.Request) {
	var body api.BackupDeleteRequest
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, r, "invalid backup delete request", err)
		return
	}
	if strings.TrimSpace(body.MdocPath) == "" {
		h.badRequest(w, r, "mdocPath is required", nil)
		return
	}
	result, err := h.project.BackupDelete(detached(r), body.MdocPath)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.BackupDeleteResponse{
		Success:       true,
		Message:       "Metadata file deleted",
		BackupPath:    result.BackupPath,
		PreservedPath: result.PreservedPath,
	})
}
