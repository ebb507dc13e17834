package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"ragingest/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// List serves GET /api/v1/jobs/failed.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	})
}

// Retry serves POST /api/v1/jobs/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := h.service.Retry(ctx, id)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "failed job replayed", "job_id", id)
		h.writeJSON(ctx, w, http.StatusOK, map[string]string{"data": "job retried"})
	case errors.Is(err, ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
	case errors.Is(err, ErrPublishTimeout):
		slog.ErrorContext(ctx, "job replay timed out", "job_id", id)
		h.writeError(ctx, w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, "failed to replay job", "job_id", id, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
