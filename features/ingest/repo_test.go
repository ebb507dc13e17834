package ingest_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragingest/features/ingest"
)

var ingestionCols = []string{"id", "document_id", "document_type", "source", "state", "chunks_created",
	"failed_stage", "error", "created_at", "updated_at"}

func TestPostgresRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := ingest.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ingestions (id, document_type, source, state) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING")).
		WithArgs("ing-1", "text", "direct_input", "received").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Create(context.Background(), &ingest.Ingestion{
		ID: "ing-1", DocumentType: "text", Source: "direct_input", State: ingest.StateReceived,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := ingest.NewPostgresRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE ingestions SET state = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs("extracted", "ing-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ingestions SET state = $1, document_id = $2, chunks_created = $3, failed_stage = NULL, error = NULL, updated_at = NOW() WHERE id = $4")).
		WithArgs("completed", "doc-1", 3, "ing-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE ingestions SET state = $1, failed_stage = $2, error = $3, updated_at = NOW() WHERE id = $4")).
		WithArgs("failed", "embed", "quota", "ing-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateState(ctx, "ing-1", ingest.StateExtracted))
	require.NoError(t, repo.Complete(ctx, "ing-1", "doc-1", 3))
	require.NoError(t, repo.Fail(ctx, "ing-2", "embed", "quota"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := ingest.NewPostgresRepo(db)
	now := time.Now()
	const id = "0b8f1a5e-4a63-4c58-9d0c-5b3c2a9f7e11"

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM ingestions WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(ingestionCols).
				AddRow(id, "doc-1", "pdf", "a.pdf", "completed", 4, "", "", now, now))

		ing, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, ingest.StateCompleted, ing.State)
		assert.Equal(t, 4, ing.ChunksCreated)
		assert.Equal(t, "doc-1", ing.DocumentID)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM ingestions WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(ingestionCols))

		_, err := repo.Get(context.Background(), id)
		assert.ErrorIs(t, err, ingest.ErrNotFound)
	})

	t.Run("MalformedIDSkipsQuery", func(t *testing.T) {
		_, err := repo.Get(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, ingest.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := ingest.NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ingestions ORDER BY created_at DESC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(ingestionCols).
			AddRow("ing-2", "", "pdf", "bad.pdf", "failed", 0, "extract", "malformed", now, now).
			AddRow("ing-1", "doc-1", "text", "direct_input", "completed", 1, "", "", now, now))

	list, err := repo.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "extract", list[0].FailedStage)
	assert.Equal(t, ingest.StateCompleted, list[1].State)
}

func TestPostgresRepo_CountByState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := ingest.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT state, COUNT(*) FROM ingestions GROUP BY state")).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("completed", 5).
			AddRow("failed", 2))

	counts, err := repo.CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"completed": 5, "failed": 2}, counts)
}
