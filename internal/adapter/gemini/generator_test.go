package gemini_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragingest/internal/adapter/gemini"
)

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

// fakeGenerator echoes the prompt back as two text parts and reports usage.
func fakeGenerator(t *testing.T, got *generateRequest, path *string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "  Go was designed "}, {"text": "at Google.\n"}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{
				"promptTokenCount": 42, "candidatesTokenCount": 7, "totalTokenCount": 49,
			},
		})
	}))
}

func TestGenerator_Generate(t *testing.T) {
	var (
		got  generateRequest
		path string
	)
	ts := fakeGenerator(t, &got, &path)
	defer ts.Close()

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	gen := gemini.NewGenerator(gemini.GeneratorConfig{APIKey: "test-key", Endpoint: ts.URL, Temperature: 0.1})
	defer gen.Close()

	answer, err := gen.Generate(context.Background(), "Be concise.", "Who made Go?")
	require.NoError(t, err)
	assert.Equal(t, "Go was designed at Google.", answer)

	assert.True(t, strings.HasSuffix(path, "/models/"+gemini.DefaultGenerationModel+":generateContent"), path)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "Who made Go?", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "Be concise.", got.SystemInstruction.Parts[0].Text)
	assert.Equal(t, gemini.DefaultMaxOutputTokens, got.GenerationConfig.MaxOutputTokens)
	assert.InDelta(t, 0.1, got.GenerationConfig.Temperature, 1e-6)

	assert.Contains(t, logs.String(), `"total_tokens":49`)
	assert.Contains(t, logs.String(), `"completion_tokens":7`)
}

func TestGenerator_NoSystemPrompt(t *testing.T) {
	var (
		got  generateRequest
		path string
	)
	ts := fakeGenerator(t, &got, &path)
	defer ts.Close()

	gen := gemini.NewGenerator(gemini.GeneratorConfig{APIKey: "test-key", Endpoint: ts.URL, Model: "gemini-2.0-flash"})
	_, err := gen.Generate(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Nil(t, got.SystemInstruction)
	assert.Contains(t, path, "gemini-2.0-flash:generateContent")
}

func TestGenerator_Errors(t *testing.T) {
	t.Run("Provider failure", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"code":503,"message":"model overloaded","status":"UNAVAILABLE"}}`))
		}))
		defer ts.Close()

		gen := gemini.NewGenerator(gemini.GeneratorConfig{APIKey: "test-key", Endpoint: ts.URL})
		answer, err := gen.Generate(context.Background(), "", "q")
		assert.Empty(t, answer)
		assert.ErrorContains(t, err, "model overloaded")
	})

	t.Run("Missing API Key", func(t *testing.T) {
		_, err := gemini.NewGenerator(gemini.GeneratorConfig{}).Generate(context.Background(), "", "q")
		assert.ErrorContains(t, err, "gemini api key not configured")
	})
}
