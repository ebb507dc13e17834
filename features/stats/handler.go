package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragingest/internal/middleware"
)

type VectorStore interface {
	Count(ctx context.Context) (int, error)
}

type IngestionRepo interface {
	CountByState(ctx context.Context) (map[string]int, error)
}

type JobCounter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	store      VectorStore
	ingestions IngestionRepo
	jobs       JobCounter
	collection string
}

// NewHandler builds the stats handler. ingestions may be nil when no ledger is configured.
func NewHandler(store VectorStore, ingestions IngestionRepo, collection string) *Handler {
	return &Handler{store: store, ingestions: ingestions, collection: collection}
}

// WithFailedJobs adds the dead letter size to the response.
func (h *Handler) WithFailedJobs(jobs JobCounter) *Handler {
	h.jobs = jobs
	return h
}

type StatsResponse struct {
	DocumentCount  int            `json:"document_count"`
	CollectionName string         `json:"collection_name"`
	Ingestions     map[string]int `json:"ingestions"`
	FailedJobs     int            `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := h.store.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count stored chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		DocumentCount:  count,
		CollectionName: h.collection,
		Ingestions:     map[string]int{},
	}

	if h.ingestions != nil {
		byState, err := h.ingestions.CountByState(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count ingestions", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count ingestions", http.StatusInternalServerError)
			return
		}
		resp.Ingestions = byState
	}

	if h.jobs != nil {
		failed, err := h.jobs.Count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count failed jobs", "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count failed jobs", http.StatusInternalServerError)
			return
		}
		resp.FailedJobs = failed
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
