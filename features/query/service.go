package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragingest/internal/middleware"
	"ragingest/internal/vector"
)

const MaxTopK = 100

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	Query(ctx context.Context, vec []float32, k int) ([]vector.Match, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type Service struct {
	embedder    Embedder
	store       Store
	reranker    Reranker
	answerer    Answerer
	defaultTopK int
	logger      *Logger
}

type Option func(*Service)

// WithReranker reorders vector matches through r before they are returned.
func WithReranker(r Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

func NewService(e Embedder, s Store, defaultTopK int, l *Logger, opts ...Option) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	svc := &Service{embedder: e, store: s, defaultTopK: defaultTopK, logger: l}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search embeds q and returns the topK nearest chunks, closest first.
// topK <= 0 uses the configured default.
func (s *Service) Search(ctx context.Context, q string, topK int) ([]vector.Match, error) {
	start := time.Now()
	if topK <= 0 {
		topK = s.defaultTopK
	}
	topK = min(topK, MaxTopK)

	vec, err := s.embedder.Embed(ctx, q)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []vector.Match{}
	}

	if s.reranker != nil && len(matches) > 1 {
		matches, err = s.rerank(ctx, q, matches)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	slog.DebugContext(ctx, "query served", "top_k", topK, "results", len(matches))
	if s.logger != nil {
		s.logger.Log(LogEntry{
			Query:         q,
			TopK:          topK,
			NumResults:    len(matches),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return matches, nil
}

func (s *Service) rerank(ctx context.Context, q string, matches []vector.Match) ([]vector.Match, error) {
	contents := make([]string, len(matches))
	for i, m := range matches {
		contents[i] = m.Content
	}

	indices, err := s.reranker.Rerank(ctx, q, contents)
	if err != nil {
		return nil, err
	}

	reranked := make([]vector.Match, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(matches) {
			reranked = append(reranked, matches[idx])
		}
	}
	return reranked, nil
}
