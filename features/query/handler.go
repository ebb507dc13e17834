package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ragingest/internal/ingesterr"
	"ragingest/internal/middleware"
	"ragingest/internal/vector"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type request struct {
	Query    string `json:"query"`
	Question string `json:"question"`
	TopK     int    `json:"top_k"`

	// GenerateAnswer asks for an answer grounded in the results.
	GenerateAnswer bool `json:"generate_answer"`
}

type response struct {
	Results []vector.Match `json:"results"`
	Answer  string         `json:"answer,omitempty"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	q := req.Query
	if q == "" {
		q = req.Question
	}
	if strings.TrimSpace(q) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "empty question", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "top_k must not be negative", http.StatusBadRequest)
		return
	}

	matches, err := h.service.Search(r.Context(), q, req.TopK)
	if err != nil {
		slog.ErrorContext(r.Context(), "query failed", "error", err)
		if code := ingesterr.Code(err); code == "EMBEDDING_PROVIDER_ERROR" {
			h.writeError(r.Context(), w, code, err.Error(), http.StatusBadGateway)
			return
		}
		h.writeError(r.Context(), w, "QUERY_FAILED", "query failed", http.StatusBadGateway)
		return
	}

	resp := response{Results: matches}
	if req.GenerateAnswer {
		resp.Answer, err = h.service.Answer(r.Context(), q, matches)
		if errors.Is(err, ErrAnswersDisabled) {
			h.writeError(r.Context(), w, "UNAVAILABLE", err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "answer generation failed", "error", err)
			h.writeError(r.Context(), w, "ANSWER_FAILED", "answer generation failed", http.StatusBadGateway)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
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
