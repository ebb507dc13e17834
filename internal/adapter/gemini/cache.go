package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BatchEmbedder is the provider side of CachingEmbedder.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// CachingEmbedder serves repeated texts from an expirable LRU and forwards
// the misses of one call as a single batch.
type CachingEmbedder struct {
	next  BatchEmbedder
	cache *expirable.LRU[string, []float32]
}

// WithCache wraps e; it returns e unchanged when size or ttl is not positive.
func WithCache(e BatchEmbedder, size int, ttl time.Duration) BatchEmbedder {
	if size <= 0 || ttl <= 0 {
		return e
	}
	return &CachingEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachingEmbedder) Model() string { return c.next.Model() }

func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := map[string][]int{}
	var misses []string

	for i, t := range texts {
		key := c.key(t)
		if v, ok := c.cache.Get(key); ok {
			out[i] = clone(v)
			continue
		}
		if _, seen := missIdx[key]; !seen {
			misses = append(misses, t)
		}
		missIdx[key] = append(missIdx[key], i)
	}

	slog.DebugContext(ctx, "embedding cache lookup", "hits", len(texts)-countIdx(missIdx), "misses", len(misses))
	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for i, t := range misses {
		key := c.key(t)
		c.cache.Add(key, clone(vecs[i]))
		for _, idx := range missIdx[key] {
			out[idx] = clone(vecs[i])
		}
	}
	return out, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.cache.Get(key); ok {
		return clone(v), nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, clone(v))
	return v, nil
}

func (c *CachingEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.next.Model() + ":" + hex.EncodeToString(sum[:])
}

func countIdx(m map[string][]int) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

func clone(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
