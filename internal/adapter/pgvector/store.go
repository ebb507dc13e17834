// Package pgvector stores chunk records in a Postgres table with a pgvector column.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/pgvector/pgvector-go"

	"ragingest/internal/ingesterr"
	"ragingest/internal/vector"
)

const backendName = "pgvector"

type Store struct {
	db         *sql.DB
	collection string
	table      string
}

func NewStore(db *sql.DB, collection string) *Store {
	return &Store{db: db, collection: collection, table: TableName(collection)}
}

// TableName maps a collection to its table ("my-docs" -> "my_docs_chunks").
func TableName(collection string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(collection) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	name := sb.String()
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		name = "c_" + name
	}
	return name + "_chunks"
}

func (s *Store) Collection() string { return s.collection }

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			chunk_index INT NOT NULL,
			total_chunks INT NOT NULL,
			chunk_size INT NOT NULL,
			start_offset INT NOT NULL,
			original_length INT NOT NULL,
			source_type TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			page INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_document_id_idx ON %[1]s (document_id)`, s.table)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("index %s: %w", s.table, err)
	}
	return nil
}

// Upsert writes all records in a single transaction.
func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.upsert(ctx, records); err != nil {
		slog.ErrorContext(ctx, "pgvector upsert failed", "error", err, "records", len(records))
		return &ingesterr.StoreWriteError{Backend: backendName, Err: err}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, records []vector.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, document_id, content, embedding, chunk_index, total_chunks, chunk_size, start_offset, original_length, source_type, source, page)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			chunk_size = EXCLUDED.chunk_size,
			start_offset = EXCLUDED.start_offset,
			original_length = EXCLUDED.original_length,
			source_type = EXCLUDED.source_type,
			source = EXCLUDED.source,
			page = EXCLUDED.page`, s.table)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx,
			r.ID, m.DocumentID, r.Content, pgvector.NewVector(r.Vector),
			m.ChunkIndex, m.TotalChunks, m.ChunkSize, m.StartOffset, m.OriginalLength,
			m.SourceType, m.Source, m.Page,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query orders by cosine distance, closest first.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	q := fmt.Sprintf(`
		SELECT id, content, document_id, chunk_index, total_chunks, chunk_size, start_offset,
			original_length, source_type, source, page, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance ASC
		LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vector.Match
	for rows.Next() {
		var (
			m        vector.Match
			distance float64
		)
		if err := rows.Scan(
			&m.ID, &m.Content, &m.Metadata.DocumentID, &m.Metadata.ChunkIndex, &m.Metadata.TotalChunks,
			&m.Metadata.ChunkSize, &m.Metadata.StartOffset, &m.Metadata.OriginalLength,
			&m.Metadata.SourceType, &m.Metadata.Source, &m.Metadata.Page, &distance,
		); err != nil {
			return nil, err
		}
		m.Distance = float32(distance)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.table)
	_, err := s.db.ExecContext(ctx, q, documentID)
	return err
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}
