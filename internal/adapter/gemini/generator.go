package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultGenerationModel = "gemini-1.5-flash"
	DefaultMaxOutputTokens = 500
)

type GeneratorConfig struct {
	APIKey          string
	Model           string
	Endpoint        string
	MaxOutputTokens int32
	Temperature     float32
}

// Generator answers prompts with a Gemini generative model.
type Generator struct {
	cfg GeneratorConfig
	lc  *lazyClient
}

func NewGenerator(cfg GeneratorConfig, opts ...option.ClientOption) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultGenerationModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return &Generator{cfg: cfg, lc: &lazyClient{apiKey: cfg.APIKey, opts: opts}}
}

func (g *Generator) Model() string { return g.cfg.Model }

// Generate returns the text of the first candidate. An empty system prompt
// sends no system instruction.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	client, err := g.lc.get(ctx)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	m := client.GenerativeModel(g.cfg.Model)
	m.SetTemperature(g.cfg.Temperature)
	m.SetMaxOutputTokens(g.cfg.MaxOutputTokens)
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	start := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", g.cfg.Model, "error", err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}

	attrs := []any{"model", g.cfg.Model, "prompt_length", len(prompt), "duration", time.Since(start)}
	if u := resp.UsageMetadata; u != nil {
		attrs = append(attrs,
			"prompt_tokens", u.PromptTokenCount,
			"completion_tokens", u.CandidatesTokenCount,
			"total_tokens", u.TotalTokenCount)
	}
	slog.InfoContext(ctx, "generation usage", attrs...)

	return strings.TrimSpace(b.String()), nil
}

func (g *Generator) Close() error { return g.lc.Close() }
