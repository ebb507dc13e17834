package pgvector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragingest/internal/adapter/pgvector"
	"ragingest/internal/testutils"
)

func TestPgvectorStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	store := pgvector.NewStore(s.DB, "integration")
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Upsert(ctx, records()))

	matches, err := store.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "beta", matches[0].Content)

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
