package gemini

import (
	"context"
	"errors"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var errNoAPIKey = errors.New("gemini api key not configured")

// lazyClient creates the genai client on first use so the service can start
// before a key is configured.
type lazyClient struct {
	apiKey string
	opts   []option.ClientOption

	mu     sync.RWMutex
	client *genai.Client
}

func (l *lazyClient) get(ctx context.Context) (*genai.Client, error) {
	if l.apiKey == "" {
		return nil, errNoAPIKey
	}

	l.mu.RLock()
	if l.client != nil {
		defer l.mu.RUnlock()
		return l.client, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	opts := append([]option.ClientOption{option.WithAPIKey(l.apiKey)}, l.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	l.client = client
	return client, nil
}

func (l *lazyClient) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}
