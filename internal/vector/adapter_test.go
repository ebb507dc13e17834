package vector_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragingest/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

func TestWeaviateSchemaClient_ClassExists(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"version": "1.19.0"}`))
				return
			}
			assert.Equal(t, "/v1/schema/Documents", r.URL.Path)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(&models.Class{Class: "Documents"})
		}))
		defer ts.Close()

		cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
		client, _ := weaviate.NewClient(cfg)
		schema := vector.NewWeaviateSchemaClient(client)

		exists, err := schema.ClassExists(context.Background(), "Documents")
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("NotFound", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"version": "1.19.0"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
		client, _ := weaviate.NewClient(cfg)
		schema := vector.NewWeaviateSchemaClient(client)

		exists, err := schema.ClassExists(context.Background(), "Documents")
		assert.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestWeaviateSchemaClient_CreateClass(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"version": "1.19.0"}`))
				return
			}
			assert.Equal(t, "/v1/schema", r.URL.Path)
			assert.Equal(t, "POST", r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
		client, _ := weaviate.NewClient(cfg)
		schema := vector.NewWeaviateSchemaClient(client)

		err := schema.CreateClass(context.Background(), &models.Class{Class: "Papers"})
		assert.NoError(t, err)
	})
}

func TestWeaviateSchemaClient_GetClass(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"version": "1.19.0"}`))
				return
			}
			assert.Equal(t, "/v1/schema/Documents", r.URL.Path)
			assert.Equal(t, "GET", r.Method)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(&models.Class{Class: "Documents"})
		}))
		defer ts.Close()

		cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
		client, _ := weaviate.NewClient(cfg)
		schema := vector.NewWeaviateSchemaClient(client)

		class, err := schema.GetClass(context.Background(), "Documents")
		assert.NoError(t, err)
		assert.NotNil(t, class)
		assert.Equal(t, "Documents", class.Class)
	})
}

func TestWeaviateSchemaClient_AddProperty(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/meta" {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"version": "1.19.0"}`))
				return
			}
			assert.Equal(t, "/v1/schema/Documents/properties", r.URL.Path)
			assert.Equal(t, "POST", r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
		client, _ := weaviate.NewClient(cfg)
		schema := vector.NewWeaviateSchemaClient(client)

		prop := &models.Property{
			Name:     "page",
			DataType: []string{"int"},
		}
		err := schema.AddProperty(context.Background(), "Documents", prop)
		assert.NoError(t, err)
	})
}
