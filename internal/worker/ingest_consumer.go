// Package worker runs NSQ consumers for asynchronous ingestion.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"ragingest/features/ingest"
	"ragingest/internal/ingesterr"
	"ragingest/internal/middleware"
)

const DefaultTaskTimeout = 5 * time.Minute

type Ingester interface {
	Ingest(ctx context.Context, doc ingest.Document, o *ingest.ChunkOverrides) (*ingest.Result, error)
}

// DeadLetter keeps tasks whose ingestion failed for a later retry.
type DeadLetter interface {
	Record(ctx context.Context, task ingest.Task, cause error) error
}

// IngestConsumer handles ingest.task messages. Every message is attempted
// exactly once: pipeline failures are recorded by the service, handed to the
// dead letter if one is set, and acked.
type IngestConsumer struct {
	ingester   Ingester
	deadLetter DeadLetter
	timeout    time.Duration
}

func NewIngestConsumer(i Ingester, timeout time.Duration) *IngestConsumer {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &IngestConsumer{ingester: i, timeout: timeout}
}

// WithDeadLetter sets where failed tasks are kept.
func (h *IngestConsumer) WithDeadLetter(d DeadLetter) *IngestConsumer {
	h.deadLetter = d
	return h
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task ingest.Task
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if task.IngestionID == "" {
		slog.Error("poison pill: task without ingestion id")
		return nil
	}

	ctx := middleware.WithIngestionID(context.Background(), task.IngestionID)
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	slog.InfoContext(ctx, "ingest task received", "type", task.DocumentType, "attempts", m.Attempts, "retries", task.Retries)

	res, err := h.ingester.Ingest(ctx, ingest.Document{
		Content: []byte(task.Content),
		Type:    task.DocumentType,
		Source:  task.Source,
	}, &ingest.ChunkOverrides{Size: task.ChunkSize, Overlap: task.ChunkOverlap})
	if err != nil {
		slog.ErrorContext(ctx, "ingest task failed", "error", err, "stage", ingesterr.StageOf(err))
		if h.deadLetter != nil {
			if dlErr := h.deadLetter.Record(context.WithoutCancel(ctx), task, err); dlErr != nil {
				slog.ErrorContext(ctx, "failed to record failed task", "error", dlErr)
			}
		}
		return nil
	}

	slog.InfoContext(ctx, "ingest task completed", "document_id", res.DocumentID, "chunks", res.ChunksCreated)
	return nil
}
