package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ragingest/internal/archive"
	"ragingest/internal/config"
	"ragingest/internal/extract"
	"ragingest/internal/ingesterr"
	"ragingest/internal/middleware"
	"ragingest/internal/text"
	"ragingest/internal/vector"
)

type Service struct {
	extractor Extractor
	embedder  Embedder
	store     Store
	chunking  text.Config

	// Optional collaborators; nil disables them.
	repo     Repository
	pub      EventPublisher
	archiver Archiver
}

type Option func(*Service)

func WithRepository(repo Repository) Option {
	return func(s *Service) { s.repo = repo }
}

func WithPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func NewService(extractor Extractor, embedder Embedder, store Store, chunking text.Config, opts ...Option) *Service {
	s := &Service{extractor: extractor, embedder: embedder, store: store, chunking: chunking}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChunkConfig applies o on top of the configured chunking.
func (s *Service) ChunkConfig(o *ChunkOverrides) text.Config {
	cfg := s.chunking
	if o != nil {
		if o.Size != nil {
			cfg.Size = *o.Size
		}
		if o.Overlap != nil {
			cfg.Overlap = *o.Overlap
		}
	}
	return cfg
}

type run struct {
	id    string
	state State
	start time.Time
}

// Ingest runs doc through extract, chunk, embed and store. Nothing is written
// to the store unless every chunk has a vector. Errors are returned as the
// failing stage produced them.
func (s *Service) Ingest(ctx context.Context, doc Document, o *ChunkOverrides) (*Result, error) {
	id := middleware.GetIngestionID(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = middleware.WithIngestionID(ctx, id)
	}
	r := &run{id: id, state: StateReceived, start: time.Now()}

	slog.InfoContext(ctx, "ingestion received", "type", doc.Type, "bytes", len(doc.Content), "filename", doc.Filename)
	if s.repo != nil {
		ing := &Ingestion{ID: id, DocumentType: doc.Type, Source: sourceOf(doc.Source), State: StateReceived}
		if err := s.repo.Create(ctx, ing); err != nil {
			slog.ErrorContext(ctx, "failed to record ingestion", "error", err)
		}
	}

	res, err := s.process(ctx, r, doc, o)
	if err != nil {
		s.fail(ctx, r, err)
		return nil, err
	}

	s.advance(ctx, r, StateCompleted)
	if s.repo != nil {
		if err := s.repo.Complete(ctx, id, res.DocumentID, res.ChunksCreated); err != nil {
			slog.ErrorContext(ctx, "failed to record completion", "error", err)
		}
	}
	s.publish(ctx, Event{
		IngestionID:   id,
		DocumentID:    res.DocumentID,
		State:         StateCompleted,
		ChunksCreated: res.ChunksCreated,
	})
	slog.InfoContext(ctx, "ingestion completed",
		"document_id", res.DocumentID, "chunks", res.ChunksCreated, "duration", time.Since(r.start))
	return res, nil
}

// IngestFile ingests uploaded bytes. An empty docType is inferred from the
// file extension, falling back to pdf.
func (s *Service) IngestFile(ctx context.Context, data []byte, filename, docType, contentType string, o *ChunkOverrides) (*Result, error) {
	if docType == "" {
		docType = extract.TypeFromFilename(filename)
	}
	if docType == "" {
		docType = extract.TypePDF
	}
	return s.Ingest(ctx, Document{
		Content:     data,
		Type:        docType,
		Source:      filename,
		Filename:    filename,
		ContentType: contentType,
	}, o)
}

func (s *Service) process(ctx context.Context, r *run, doc Document, o *ChunkOverrides) (*Result, error) {
	cfg := s.ChunkConfig(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nt, err := s.extractor.Extract(ctx, extract.Input{
		Content: doc.Content,
		Type:    doc.Type,
		Source:  doc.Source,
		NoFetch: doc.Filename != "",
	})
	if err != nil {
		return nil, err
	}
	s.advance(ctx, r, StateExtracted, "original_length", nt.OriginalLength)

	chunks, err := text.Split(nt.Text, cfg)
	if err != nil {
		return nil, err
	}
	s.advance(ctx, r, StateChunked, "chunks", len(chunks), "chunk_size", cfg.Size, "chunk_overlap", cfg.Overlap)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(chunks) {
		return nil, &ingesterr.EmbeddingProviderError{
			Reason: fmt.Sprintf("got %d vectors for %d chunks", len(vecs), len(chunks)),
		}
	}
	s.advance(ctx, r, StateEmbedded)

	documentID := uuid.New().String()
	source := sourceOf(nt.Source)
	records := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:      uuid.New().String(),
			Content: c.Content,
			Vector:  vecs[i],
			Metadata: vector.Metadata{
				DocumentID:     documentID,
				ChunkIndex:     c.Index,
				TotalChunks:    len(chunks),
				ChunkSize:      len([]rune(c.Content)),
				StartOffset:    c.Offset,
				OriginalLength: nt.OriginalLength,
				SourceType:     nt.Type,
				Source:         source,
				Page:           c.Page,
			},
		}
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return nil, err
	}
	s.advance(ctx, r, StateStored, "document_id", documentID)

	info := DocumentInfo{
		Source:         source,
		Type:           nt.Type,
		OriginalLength: nt.OriginalLength,
	}
	if pages, ok := nt.Metadata["total_pages"].(int); ok {
		info.TotalPages = pages
	}
	if title, ok := nt.Metadata["title"].(string); ok {
		info.Title = title
	}
	if doc.Filename != "" {
		info.Filename = doc.Filename
		info.FileSizeBytes = int64(len(doc.Content))
		info.ArchiveKey = s.archive(ctx, documentID, doc)
	}

	return &Result{
		Status:        "success",
		Message:       fmt.Sprintf("Successfully ingested document with %d chunks", len(chunks)),
		ChunksCreated: len(chunks),
		DocumentID:    documentID,
		IngestionID:   r.id,
		DocumentInfo:  info,
	}, nil
}

// archive stores the raw upload. Failure only costs the archive copy.
func (s *Service) archive(ctx context.Context, documentID string, doc Document) string {
	if s.archiver == nil {
		return ""
	}
	key := archive.Key(documentID, doc.Filename)
	loc, err := s.archiver.Put(ctx, key, doc.Content, doc.ContentType)
	if err != nil {
		slog.ErrorContext(ctx, "failed to archive upload", "error", err, "key", key)
		return ""
	}
	slog.DebugContext(ctx, "archived upload", "key", key, "location", loc)
	return key
}

func (s *Service) advance(ctx context.Context, r *run, next State, attrs ...any) {
	slog.InfoContext(ctx, "ingestion state changed", append([]any{"from", r.state, "to", next}, attrs...)...)
	r.state = next
	if s.repo != nil && next != StateCompleted {
		if err := s.repo.UpdateState(ctx, r.id, next); err != nil {
			slog.ErrorContext(ctx, "failed to record ingestion state", "error", err, "state", next)
		}
	}
}

func (s *Service) fail(ctx context.Context, r *run, err error) {
	stage := ingesterr.StageOf(err)
	slog.ErrorContext(ctx, "ingestion failed",
		"from", r.state, "stage", stage, "code", ingesterr.Code(err), "error", err, "duration", time.Since(r.start))
	r.state = StateFailed

	// Record the failure even when the request context is gone.
	ctx = context.WithoutCancel(ctx)
	if s.repo != nil {
		if rerr := s.repo.Fail(ctx, r.id, string(stage), err.Error()); rerr != nil {
			slog.ErrorContext(ctx, "failed to record ingestion failure", "error", rerr)
		}
	}
	s.publish(ctx, Event{
		IngestionID: r.id,
		State:       StateFailed,
		FailedStage: string(stage),
		Error:       err.Error(),
	})
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.pub == nil {
		return
	}
	ev.CorrelationID = middleware.GetCorrelationID(ctx)
	body, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal ingestion event", "error", err)
		return
	}
	if err := s.pub.Publish(config.TopicIngestResult, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingestion event", "error", err, "topic", config.TopicIngestResult)
	}
}

// DeleteDocument removes every stored chunk of a document.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "document deleted", "document_id", documentID)
	return nil
}

// Enqueue records an accepted async ingestion and hands it to the worker.
func (s *Service) Enqueue(ctx context.Context, t Task) (string, error) {
	if s.pub == nil {
		return "", ErrNoQueue
	}
	cfg := s.ChunkConfig(&ChunkOverrides{Size: t.ChunkSize, Overlap: t.ChunkOverlap})
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	t.IngestionID = uuid.New().String()
	t.CorrelationID = middleware.GetCorrelationID(ctx)
	ctx = middleware.WithIngestionID(ctx, t.IngestionID)

	if s.repo != nil {
		ing := &Ingestion{ID: t.IngestionID, DocumentType: t.DocumentType, Source: sourceOf(t.Source), State: StateReceived}
		if err := s.repo.Create(ctx, ing); err != nil {
			return "", fmt.Errorf("record ingestion: %w", err)
		}
	}

	body, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	if err := s.pub.Publish(config.TopicIngestTask, body); err != nil {
		return "", fmt.Errorf("publish ingest task: %w", err)
	}
	slog.InfoContext(ctx, "published ingest task", "topic", config.TopicIngestTask)
	return t.IngestionID, nil
}

func (s *Service) GetIngestion(ctx context.Context, id string) (*Ingestion, error) {
	if s.repo == nil {
		return nil, ErrNoLedger
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListIngestions(ctx context.Context, limit int) ([]Ingestion, error) {
	if s.repo == nil {
		return nil, ErrNoLedger
	}
	return s.repo.List(ctx, limit)
}

func sourceOf(s string) string {
	if s == "" {
		return DefaultSource
	}
	return s
}
