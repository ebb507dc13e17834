package ingest_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"ragingest/features/ingest"
	"ragingest/internal/extract"
	"ragingest/internal/vector"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, in extract.Input) (*extract.NormalizedText, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.NormalizedText), args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, ing *ingest.Ingestion) error {
	return m.Called(ctx, ing).Error(0)
}

func (m *MockRepository) UpdateState(ctx context.Context, id string, state ingest.State) error {
	return m.Called(ctx, id, state).Error(0)
}

func (m *MockRepository) Complete(ctx context.Context, id, documentID string, chunks int) error {
	return m.Called(ctx, id, documentID, chunks).Error(0)
}

func (m *MockRepository) Fail(ctx context.Context, id, stage, message string) error {
	return m.Called(ctx, id, stage, message).Error(0)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*ingest.Ingestion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Ingestion), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, limit int) ([]ingest.Ingestion, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]ingest.Ingestion), args.Error(1)
}

func (m *MockRepository) CountByState(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]int), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// memStore is an in-memory vector store that can be told to fail.
type memStore struct {
	mu      sync.Mutex
	records []vector.Record
	err     error
	deleted []string
}

func (s *memStore) Upsert(_ context.Context, records []vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *memStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, documentID)
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Metadata.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type published struct {
	topic string
	body  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, body: body})
	return nil
}

// vectorsFor returns one 3-dim vector per text.
func vectorsFor(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5, 1}
	}
	return out
}
