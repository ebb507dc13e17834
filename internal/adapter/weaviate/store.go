package weaviate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"ragingest/internal/ingesterr"
	"ragingest/internal/vector"
)

const backendName = "weaviate"

// Store keeps chunk records in one Weaviate class per collection.
type Store struct {
	client     *weaviate.Client
	collection string
	class      string
}

func NewStore(client *weaviate.Client, collection string) *Store {
	return &Store{client: client, collection: collection, class: vector.ClassName(collection)}
}

func (s *Store) Collection() string { return s.collection }

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateSchemaClient(s.client), s.collection)
}

// Upsert writes records in one batch. Weaviate batches are not transactional,
// so on any failure the documents touched by this call are deleted again.
func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		objects = append(objects, &models.Object{
			Class:      s.class,
			ID:         strfmt.UUID(r.ID),
			Properties: properties(r),
			Vector:     r.Vector,
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err == nil {
		err = batchErrors(resp)
	}
	if err != nil {
		slog.ErrorContext(ctx, "weaviate batch upsert failed, rolling back", "error", err, "records", len(records))
		s.rollback(ctx, records)
		return &ingesterr.StoreWriteError{Backend: backendName, Err: err}
	}

	slog.DebugContext(ctx, "weaviate batch upsert", "class", s.class, "records", len(records))
	return nil
}

func (s *Store) rollback(ctx context.Context, records []vector.Record) {
	ctx = context.WithoutCancel(ctx)
	seen := map[string]bool{}
	for _, r := range records {
		id := r.Metadata.DocumentID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.DeleteDocument(ctx, id); err != nil {
			slog.ErrorContext(ctx, "rollback delete failed", "document_id", id, "error", err)
		}
	}
}

func batchErrors(resp []models.ObjectsGetResponse) error {
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, fmt.Sprintf("object %s: %s", r.ID, e.Message))
			}
		}
	}
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func properties(r vector.Record) map[string]interface{} {
	m := r.Metadata
	return map[string]interface{}{
		"content":        r.Content,
		"documentId":     m.DocumentID,
		"chunkIndex":     m.ChunkIndex,
		"totalChunks":    m.TotalChunks,
		"chunkSize":      m.ChunkSize,
		"startOffset":    m.StartOffset,
		"originalLength": m.OriginalLength,
		"sourceType":     m.SourceType,
		"source":         m.Source,
		"page":           m.Page,
	}
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

var queryFields = []graphql.Field{
	{Name: "content"},
	{Name: "documentId"},
	{Name: "chunkIndex"},
	{Name: "totalChunks"},
	{Name: "chunkSize"},
	{Name: "startOffset"},
	{Name: "originalLength"},
	{Name: "sourceType"},
	{Name: "source"},
	{Name: "page"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
}

// Query returns at most k records nearest to vec, closest first.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(queryFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	var matches []vector.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if rows, ok := data[s.class].([]interface{}); ok {
			for _, row := range rows {
				if props, ok := row.(map[string]interface{}); ok {
					matches = append(matches, toMatch(props))
				}
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func toMatch(props map[string]interface{}) vector.Match {
	var m vector.Match
	m.Content, _ = props["content"].(string)
	m.Metadata.DocumentID, _ = props["documentId"].(string)
	m.Metadata.SourceType, _ = props["sourceType"].(string)
	m.Metadata.Source, _ = props["source"].(string)
	m.Metadata.ChunkIndex = intProp(props, "chunkIndex")
	m.Metadata.TotalChunks = intProp(props, "totalChunks")
	m.Metadata.ChunkSize = intProp(props, "chunkSize")
	m.Metadata.StartOffset = intProp(props, "startOffset")
	m.Metadata.OriginalLength = intProp(props, "originalLength")
	m.Metadata.Page = intProp(props, "page")

	if additional, ok := props["_additional"].(map[string]interface{}); ok {
		m.ID, _ = additional["id"].(string)
		if d, ok := additional["distance"].(float64); ok {
			m.Distance = float32(d)
		}
	}
	return m
}

func intProp(props map[string]interface{}, name string) int {
	if v, ok := props[name].(float64); ok {
		return int(v)
	}
	return 0
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[s.class].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
