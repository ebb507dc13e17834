package ingest

import (
	"context"
	"errors"
	"time"

	"ragingest/internal/extract"
	"ragingest/internal/vector"
)

// State is a step of the ingestion state machine.
type State string

const (
	StateReceived  State = "received"
	StateExtracted State = "extracted"
	StateChunked   State = "chunked"
	StateEmbedded  State = "embedded"
	StateStored    State = "stored"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

const DefaultSource = "direct_input"

var (
	ErrNotFound = errors.New("not found")
	ErrNoLedger = errors.New("ingestion ledger is not configured")
	ErrNoQueue  = errors.New("async ingestion is not configured")
)

type Document struct {
	Content  []byte
	Type     string
	Source   string
	Filename string
	// ContentType is the upload's MIME type, kept for the archive.
	ContentType string
}

// ChunkOverrides replaces the configured chunk size or overlap for one call.
type ChunkOverrides struct {
	Size    *int `json:"chunk_size,omitempty"`
	Overlap *int `json:"chunk_overlap,omitempty"`
}

type DocumentInfo struct {
	Source         string `json:"source"`
	Type           string `json:"type"`
	OriginalLength int    `json:"original_length"`
	TotalPages     int    `json:"total_pages,omitempty"`
	FileSizeBytes  int64  `json:"file_size_bytes,omitempty"`
	Filename       string `json:"filename,omitempty"`
	Title          string `json:"title,omitempty"`
	ArchiveKey     string `json:"archive_key,omitempty"`
}

type Result struct {
	Status        string       `json:"status"`
	Message       string       `json:"message"`
	ChunksCreated int          `json:"chunks_created"`
	DocumentID    string       `json:"document_id"`
	IngestionID   string       `json:"ingestion_id"`
	DocumentInfo  DocumentInfo `json:"document_info"`
}

// Ingestion is one row of the ingestion ledger.
type Ingestion struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id,omitempty"`
	DocumentType  string    `json:"document_type"`
	Source        string    `json:"source"`
	State         State     `json:"state"`
	ChunksCreated int       `json:"chunks_created"`
	FailedStage   string    `json:"failed_stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Extractor interface {
	Extract(ctx context.Context, in extract.Input) (*extract.NormalizedText, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	Upsert(ctx context.Context, records []vector.Record) error
	DeleteDocument(ctx context.Context, documentID string) error
}

type Repository interface {
	Create(ctx context.Context, ing *Ingestion) error
	UpdateState(ctx context.Context, id string, state State) error
	Complete(ctx context.Context, id, documentID string, chunks int) error
	Fail(ctx context.Context, id, stage, message string) error
	Get(ctx context.Context, id string) (*Ingestion, error)
	List(ctx context.Context, limit int) ([]Ingestion, error)
	CountByState(ctx context.Context) (map[string]int, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Task is the NSQ payload of an asynchronous ingestion.
type Task struct {
	IngestionID   string `json:"ingestion_id"`
	Content       string `json:"content"`
	DocumentType  string `json:"document_type"`
	Source        string `json:"source,omitempty"`
	ChunkSize     *int   `json:"chunk_size,omitempty"`
	ChunkOverlap  *int   `json:"chunk_overlap,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	// Retries counts how often the task was replayed from the dead letter table.
	Retries int `json:"retries,omitempty"`
}

// Event is published on the result topic when an ingestion finishes.
type Event struct {
	IngestionID   string `json:"ingestion_id"`
	DocumentID    string `json:"document_id,omitempty"`
	State         State  `json:"state"`
	ChunksCreated int    `json:"chunks_created"`
	FailedStage   string `json:"failed_stage,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
