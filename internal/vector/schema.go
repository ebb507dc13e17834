package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// ChunkProperties is the property set of a chunk class.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "documentId", DataType: []string{"string"}}, // exact match for deletes
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "totalChunks", DataType: []string{"int"}},
		{Name: "chunkSize", DataType: []string{"int"}},
		{Name: "startOffset", DataType: []string{"int"}},
		{Name: "originalLength", DataType: []string{"int"}},
		{Name: "sourceType", DataType: []string{"string"}},
		{Name: "source", DataType: []string{"string"}},
		{Name: "page", DataType: []string{"int"}},
	}
}

// EnsureSchema creates the chunk class for collection, or adds any properties
// an older class is missing.
func EnsureSchema(ctx context.Context, client SchemaClient, collection string) error {
	className := ClassName(collection)
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := ChunkProperties()

	if !exists {
		class := &models.Class{
			Class:       className,
			Description: "A chunk of an ingested document",
			Vectorizer:  "none",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}

	return nil
}
