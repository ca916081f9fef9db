package services

import "context"

type contextKey string

const (
	seriesIDKey  contextKey = "series_id"
	requestIDKey contextKey = "request_id"
)

// WithSeriesID annotates context with the tilt series identifier being handled.
func WithSeriesID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, seriesIDKey, id)
}

// SeriesIDFromContext returns the tilt series identifier if present.
func SeriesIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(seriesIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
