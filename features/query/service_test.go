package query_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragingest/features/query"
	"ragingest/internal/ingesterr"
	"ragingest/internal/vector"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) Query(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	args := m.Called(ctx, vec, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Match), args.Error(1)
}

func match(id, content string, distance float32) vector.Match {
	return vector.Match{
		Record:   vector.Record{ID: id, Content: content, Metadata: vector.Metadata{DocumentID: "doc-1"}},
		Distance: distance,
	}
}

func TestService_Search(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, "what is go").Return([]float32{1, 0}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, []float32{1, 0}, 5).
		Return([]vector.Match{match("a", "Go is a language", 0.1)}, nil)

	var logBuf bytes.Buffer
	svc := query.NewService(emb, store, 5, query.NewLogger(&logBuf))
	matches, err := svc.Search(context.Background(), "what is go", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Go is a language", matches[0].Content)
	assert.Contains(t, logBuf.String(), `"num_results":1`)
}

func TestService_Search_TopKIsCapped(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, mock.Anything, query.MaxTopK).Return(nil, nil)

	svc := query.NewService(emb, store, 5, nil)
	matches, err := svc.Search(context.Background(), "q", 10_000)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
	store.AssertExpectations(t)
}

type MockReranker struct{ mock.Mock }

func (m *MockReranker) Rerank(ctx context.Context, q string, docs []string) ([]int, error) {
	args := m.Called(ctx, q, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func TestService_Search_Reranks(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, mock.Anything, 3).Return([]vector.Match{
		match("a", "first", 0.1), match("b", "second", 0.2), match("c", "third", 0.3),
	}, nil)
	rr := new(MockReranker)
	rr.On("Rerank", mock.Anything, "q", []string{"first", "second", "third"}).Return([]int{2, 0, 9}, nil)

	svc := query.NewService(emb, store, 3, nil, query.WithReranker(rr))
	matches, err := svc.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c", matches[0].ID)
	assert.Equal(t, "a", matches[1].ID)
}

func TestService_Search_RerankError(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, mock.Anything, mock.Anything).Return([]vector.Match{
		match("a", "first", 0.1), match("b", "second", 0.2),
	}, nil)
	rr := new(MockReranker)
	rr.On("Rerank", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("jina api error: 500"))

	svc := query.NewService(emb, store, 5, nil, query.WithReranker(rr))
	_, err := svc.Search(context.Background(), "q", 0)
	assert.ErrorContains(t, err, "rerank: jina api error: 500")
}

func TestHandler_Query(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, "what is go").Return([]float32{1, 0}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, mock.Anything, 2).Return([]vector.Match{
		match("a", "near", 0.1), match("b", "far", 0.7),
	}, nil)
	h := query.NewHandler(query.NewService(emb, store, 5, nil))

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"query": "what is go", "top_k": 2}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []struct {
			ID       string          `json:"id"`
			Text     string          `json:"text"`
			Distance float32         `json:"distance"`
			Metadata vector.Metadata `json:"metadata"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "near", body.Results[0].Text)
	assert.Equal(t, "doc-1", body.Results[0].Metadata.DocumentID)
}

func TestHandler_Query_AcceptsQuestionField(t *testing.T) {
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, "legacy").Return([]float32{1}, nil)
	store := new(MockStore)
	store.On("Query", mock.Anything, mock.Anything, 5).Return([]vector.Match{}, nil)
	h := query.NewHandler(query.NewService(emb, store, 5, nil))

	rec := httptest.NewRecorder()
	h.Query(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question": "legacy"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results": []}`, rec.Body.String())
}

func TestHandler_Query_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		embedErr error
		storeErr error
		status   int
		code     string
	}{
		{"bad json", `{`, nil, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty", `{"query": "  "}`, nil, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative top_k", `{"query": "q", "top_k": -1}`, nil, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"provider", `{"query": "q"}`, &ingesterr.EmbeddingProviderError{Status: 401, Reason: "bad key"}, nil,
			http.StatusBadGateway, "EMBEDDING_PROVIDER_ERROR"},
		{"store", `{"query": "q"}`, nil, errors.New("class not found"), http.StatusBadGateway, "QUERY_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := new(MockEmbedder)
			if tt.embedErr != nil {
				emb.On("Embed", mock.Anything, mock.Anything).Return(nil, tt.embedErr)
			} else {
				emb.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)
			}
			store := new(MockStore)
			store.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.storeErr)
			h := query.NewHandler(query.NewService(emb, store, 5, nil))

			rec := httptest.NewRecorder()
			h.Query(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(tt.body)))

			assert.Equal(t, tt.status, rec.Code)
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
