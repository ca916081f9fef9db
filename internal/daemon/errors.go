package daemon

import (
	"context"
	"errors"
	"net/http"

	"tssv/internal/api"
	"tssv/internal/logging"
	"tssv/internal/services"
)

func errorBody(message string) api.ErrorResponse {
	return api.ErrorResponse{Error: message}
}

// statusFor maps service error markers onto HTTP status codes.
func statusFor(err error) int {
	switch services.Classify(err) {
	case services.ErrNotFound:
		return http.StatusNotFound
	case services.ErrValidation:
		return http.StatusBadRequest
	case services.ErrConflict:
		return http.StatusConflict
	case services.ErrPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.WithContext(r.Context(), h.logger)
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Debug("client went away", logging.String("path", r.URL.Path))
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	} else {
		logger.Debug("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func (h *handlers) badRequest(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.writeError(w, r, services.Wrap(services.ErrValidation, "api", r.URL.Path, message, err))
}
