package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ragingest/internal/ingesterr"
)

const (
	DefaultModel = "gemini-embedding-001"
	// MaxBatchSize is the provider's limit of contents per batch request.
	MaxBatchSize = 100
)

type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	BatchSize   int
	Concurrency int
}

// Embedder calls Gemini batch embeddings.
type Embedder struct {
	cfg Config
	lc  *lazyClient
}

func NewEmbedder(cfg Config, opts ...option.ClientOption) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return &Embedder{cfg: cfg, lc: &lazyClient{apiKey: cfg.APIKey, opts: opts}}
}

func (e *Embedder) Model() string { return e.cfg.Model }

// EmbedBatch returns one vector per text, in input order. Texts are sent in
// batches of at most BatchSize; any failed batch fails the whole call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(e.cfg.Model)

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		start, end := start, min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.embedBatch(gctx, em, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) != dim {
			return nil, &ingesterr.EmbeddingProviderError{
				Reason: fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(v), dim),
			}
		}
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, em *genai.EmbeddingModel, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", e.cfg.Model, "size", len(texts))

	b := em.NewBatch()
	for _, t := range texts {
		b.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, b)
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err, "size", len(texts))
		return nil, providerError(err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, &ingesterr.EmbeddingProviderError{
			Reason: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(res.Embeddings)),
		}
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, &ingesterr.EmbeddingProviderError{Reason: fmt.Sprintf("empty embedding at position %d", i)}
		}
		vecs[i] = emb.Values
	}
	return vecs, nil
}

// Embed embeds a single text, used for queries.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "embedding content", "model", e.cfg.Model, "length", len(text))
	res, err := client.EmbeddingModel(e.cfg.Model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, providerError(err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, &ingesterr.EmbeddingProviderError{Reason: "empty embedding received"}
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Close() error { return e.lc.Close() }

func (e *Embedder) getClient(ctx context.Context) (*genai.Client, error) {
	client, err := e.lc.get(ctx)
	if errors.Is(err, errNoAPIKey) {
		return nil, &ingesterr.EmbeddingProviderError{Reason: errNoAPIKey.Error()}
	}
	if err != nil {
		return nil, &ingesterr.EmbeddingProviderError{Reason: "create gemini client", Err: err}
	}
	return client, nil
}

func providerError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		reason := gErr.Message
		if reason == "" {
			reason = gErr.Body
		}
		return &ingesterr.EmbeddingProviderError{Status: gErr.Code, Reason: reason, Err: err}
	}
	return &ingesterr.EmbeddingProviderError{Err: err}
}
