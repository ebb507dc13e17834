package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

var defaults = map[string]struct{ url, model string }{
	ProviderJina:   {"https://api.jina.ai/v1/rerank", "jina-reranker-v1-base-en"},
	ProviderCohere: {"https://api.cohere.ai/v1/rerank", "rerank-english-v3.0"},
}

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// Client reorders retrieved chunks by relevance to the query. Jina and
// Cohere share the request and response shape used here.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if d, ok := defaults[cfg.Provider]; ok {
		if cfg.BaseURL == "" {
			cfg.BaseURL = d.url
		}
		if cfg.Model == "" {
			cfg.Model = d.model
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	_, ok := defaults[c.cfg.Provider]
	return ok
}

// Rerank returns indices into docs, most relevant first. Without a provider
// the identity order is returned.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	if !c.Enabled() {
		indices := make([]int, len(docs))
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	reqBody := map[string]interface{}{
		"model":     c.cfg.Model,
		"query":     query,
		"documents": docs,
	}
	if c.cfg.Provider == ProviderCohere {
		reqBody["top_n"] = len(docs)
		reqBody["return_documents"] = false
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s api error: %d", c.cfg.Provider, resp.StatusCode)
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(docs))
	indices := make([]int, 0, len(docs))
	for _, r := range result.Results {
		if r.Index >= 0 && r.Index < len(docs) && !seen[r.Index] {
			seen[r.Index] = true
			indices = append(indices, r.Index)
		}
	}
	return indices, nil
}
