package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"tssv/internal/logging"
	"tssv/internal/preview"
	"tssv/internal/project"
	"tssv/internal/services"
)

const requestIDHeader = "X-Request-ID"

// RouterOptions carries the collaborators behind the HTTP routes.
type RouterOptions struct {
	Project     *project.Service
	Preview     *preview.Pipeline
	SnapshotDir string
	Token       string
}

type handlers struct {
	project     *project.Service
	preview     *preview.Pipeline
	snapshotDir string
	logger      *slog.Logger
	now         func() time.Time
}

// NewRouter builds the HTTP routes. /health stays reachable without a token.
func NewRouter(opts RouterOptions, logger *slog.Logger) http.Handler {
	h := &handlers{
		project:     opts.Project,
		preview:     opts.Preview,
		snapshotDir: opts.SnapshotDir,
		logger:      logging.NewComponentLogger(logger, "api"),
		now:         time.Now,
	}

	r := chi.NewRouter()
	r.Use(h.requestContext)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(opts.Token))

		r.Route("/api/project", func(r chi.Router) {
			r.Post("/scan", h.scan)
			r.Get("/status", h.status)
			r.Post("/save-all", h.saveAll)
		})
		r.Route("/api/ts", func(r chi.Router) {
			r.Get("/", h.listSeries)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getSeries)
				r.Get("/frames", h.seriesFrames)
				r.Post("/frames/override", h.setOverrides)
				r.Post("/frames/batch", h.batch)
				r.Post("/save", h.saveSeries)
				r.Post("/reset", h.resetSeries)
			})
		})
		r.Route("/api/frame/{id}/{frame}", func(r chi.Router) {
			r.Get("/", h.frameState)
			r.Post("/select", h.selectFrame)
			r.Post("/toggle", h.toggleFrame)
		})
		r.Route("/api/mdoc", func(r chi.Router) {
			r.Post("/batch-save", h.batchSave)
			r.Post("/backup-delete", h.backupDelete)
		})
		r.Route("/api/preview", func(r chi.Router) {
			r.Get("/capabilities", h.previewCapabilities)
			r.Get("/{id}/{frame}", h.previewFrame)
		})
		r.Route("/api/files", func(r chi.Router) {
			r.Get("/list", h.listFiles)
			r.Get("/validate", h.validatePath)
			r.Get("/user-home", h.userHome)
			r.Post("/save-config", h.saveConfig)
			r.Get("/list-configs", h.listConfigs)
			r.Get("/load-config", h.loadConfig)
			r.Delete("/delete-config", h.deleteConfig)
		})
	})
	return r
}

// requestContext tags each request with an ID echoed in X-Request-ID and
// carried on the context for log correlation.
func (h *handlers) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handlers) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithContext(r.Context(), h.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
