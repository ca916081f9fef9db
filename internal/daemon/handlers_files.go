package daemon

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tssv/internal/api"
	"tssv/internal/browse"
	"tssv/internal/config"
	"tssv/internal/preview"
)

func (h *handlers) previewCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.preview.Capabilities())
}

func (h *handlers) previewFrame(w http.ResponseWriter, r *http.Request) {
	frameID, err := frameParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req := preview.Request{SeriesID: chi.URLParam(r, "id"), FrameID: frameID}
	query := r.URL.Query()
	// Only an absent parameter falls back to the default; the pipeline treats
	// zero as absent, so an explicit zero is rejected here.
	if raw := query.Get("bin"); raw != "" {
		if req.Bin, err = strconv.Atoi(raw); err != nil || !config.ValidBin(req.Bin) {
			h.badRequest(w, r, fmt.Sprintf("bin must be one of %v", config.SupportedBins), nil)
			return
		}
	}
	if raw := query.Get("quality"); raw != "" {
		req.Quality, err = strconv.Atoi(raw)
		if err != nil || req.Quality < config.MinQuality || req.Quality > config.MaxQuality {
			h.badRequest(w, r, fmt.Sprintf("quality must be an integer in [%d, %d]", config.MinQuality, config.MaxQuality), nil)
			return
		}
	}

	result, err := h.preview.Get(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Preview-Source", string(result.Source))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// pathParam returns the "path" query value, defaulting to the home directory.
func pathParam(r *http.Request) (string, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("path")); raw != "" {
		return raw, nil
	}
	return browse.Home()
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	dir, err := pathParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	listing, err := browse.List(dir)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handlers) validatePath(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" {
		h.badRequest(w, r, "path is required", nil)
		return
	}
	result, err := browse.Validate(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) userHome(w http.ResponseWriter, r *http.Request) {
	home, err := browse.Home()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.HomeResponse{Home: home})
}

func (h *handlers) saveConfig(w http.ResponseWriter, r *http.Request) {
	var body api.ScanConfig
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, r, "invalid scan config", err)
		return
	}
	snap, err := config.SaveSnapshot(h.snapshotDir, body.ToScanConfig(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SaveConfigResponse{Success: true, Path: snap.Path, Filename: snap.Name})
}

func (h *handlers) listConfigs(w http.ResponseWriter, r *http.Request) {
	snapshots, err := config.ListSnapshots(h.snapshotDir)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	names := make([]string, len(snapshots))
	for i, snap := range snapshots {
		names[i] = snap.Name
	}
	writeJSON(w, http.StatusOK, api.ListConfigsResponse{Configs: names})
}

func (h *handlers) loadConfig(w http.ResponseWriter, r *http.Request) {
	scan, err := config.LoadSnapshot(h.snapshotDir, r.URL.Query().Get("filename"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromScanConfig(scan))
}

func (h *handlers) deleteConfig(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	if err := config.DeleteSnapshot(h.snapshotDir, name); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DeleteConfigResponse{Success: true, Message: "Deleted " + name})
}
