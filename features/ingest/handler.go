package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ragingest/internal/ingesterr"
	"ragingest/internal/middleware"
)

type Handler struct {
	service        *Service
	maxUploadBytes int64
}

func NewHandler(service *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

type ingestRequest struct {
	Content      string `json:"content"`
	DocumentType string `json:"document_type"`
	Source       string `json:"source"`
	ChunkSize    *int   `json:"chunk_size"`
	ChunkOverlap *int   `json:"chunk_overlap"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (*ingestRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(r.Context(), w, "PAYLOAD_TOO_LARGE",
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", "", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "invalid JSON body: "+err.Error(), "", http.StatusBadRequest)
		return nil, false
	}
	if strings.TrimSpace(req.Content) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Content cannot be empty", "", http.StatusBadRequest)
		return nil, false
	}
	if req.DocumentType == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "document_type is required", "", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.service.Ingest(r.Context(), Document{
		Content: []byte(req.Content),
		Type:    req.DocumentType,
		Source:  req.Source,
	}, &ChunkOverrides{Size: req.ChunkSize, Overlap: req.ChunkOverlap})
	if err != nil {
		h.writeIngestError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, res)
}

func (h *Handler) IngestFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "File too large or malformed form", "", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(r.Context(), w, "BAD_REQUEST", "Unable to retrieve file", "", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to read file", "", http.StatusInternalServerError)
		return
	}

	overrides, err := formOverrides(r)
	if err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), "", http.StatusBadRequest)
		return
	}

	res, err := h.service.IngestFile(r.Context(), data, header.Filename,
		r.FormValue("document_type"), header.Header.Get("Content-Type"), overrides)
	if err != nil {
		h.writeIngestError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, res)
}

func formOverrides(r *http.Request) (*ChunkOverrides, error) {
	var o ChunkOverrides
	for name, dst := range map[string]**int{"chunk_size": &o.Size, "chunk_overlap": &o.Overlap} {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.New(name + " must be an integer")
		}
		*dst = &n
	}
	return &o, nil
}

func (h *Handler) IngestAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	id, err := h.service.Enqueue(r.Context(), Task{
		Content:      req.Content,
		DocumentType: req.DocumentType,
		Source:       req.Source,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		h.writeIngestError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusAccepted, map[string]string{"ingestion_id": id})
}

func (h *Handler) ListIngestions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "limit must be between 1 and 500", "", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.service.ListIngestions(r.Context(), limit)
	if err != nil {
		h.writeIngestError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{"data": list})
}

func (h *Handler) GetIngestion(w http.ResponseWriter, r *http.Request) {
	ing, err := h.service.GetIngestion(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeIngestError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{"data": ing})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "failed to delete document", "error", err, "document_id", id)
		h.writeError(r.Context(), w, "STORE_WRITE_ERROR", "failed to delete document", "store", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an ingestion error to its HTTP status.
func StatusFor(err error) int {
	switch ingesterr.Code(err) {
	case "UNSUPPORTED_TYPE", "INVALID_CHUNK_CONFIG":
		return http.StatusBadRequest
	case "EMPTY_CONTENT", "EXTRACTION_ERROR":
		return http.StatusUnprocessableEntity
	case "EMBEDDING_PROVIDER_ERROR", "STORE_WRITE_ERROR":
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoLedger), errors.Is(err, ErrNoQueue):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeIngestError(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := ingesterr.Code(err)
	stage := string(ingesterr.StageOf(err))
	message := err.Error()

	switch status {
	case http.StatusNotFound:
		code, stage, message = "NOT_FOUND", "", "ingestion not found"
	case http.StatusServiceUnavailable:
		code, stage = "UNAVAILABLE", ""
	case http.StatusInternalServerError:
		slog.ErrorContext(ctx, "operation failed", "error", err)
		stage, message = "", "Internal Server Error"
	}
	h.writeError(ctx, w, code, message, stage, status)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message, stage string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{
		"code":    code,
		"message": message,
	}
	if stage != "" {
		body["stage"] = stage
	}
	resp := map[string]interface{}{
		"error":         body,
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
