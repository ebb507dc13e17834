package ingest

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Create inserts a ledger row. A row that already exists (an async ingestion
// recorded at enqueue time) is left as is.
func (r *PostgresRepo) Create(ctx context.Context, ing *Ingestion) error {
	query := `INSERT INTO ingestions (id, document_type, source, state) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, ing.ID, ing.DocumentType, ing.Source, string(ing.State))
	return err
}

func (r *PostgresRepo) UpdateState(ctx context.Context, id string, state State) error {
	query := `UPDATE ingestions SET state = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, string(state), id)
	return err
}

func (r *PostgresRepo) Complete(ctx context.Context, id, documentID string, chunks int) error {
	query := `UPDATE ingestions SET state = $1, document_id = $2, chunks_created = $3, failed_stage = NULL, error = NULL, updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, string(StateCompleted), documentID, chunks, id)
	return err
}

func (r *PostgresRepo) Fail(ctx context.Context, id, stage, message string) error {
	query := `UPDATE ingestions SET state = $1, failed_stage = $2, error = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, string(StateFailed), stage, message, id)
	return err
}

const selectIngestion = `SELECT id, COALESCE(document_id, ''), document_type, source, state, chunks_created,
	COALESCE(failed_stage, ''), COALESCE(error, ''), created_at, updated_at FROM ingestions`

type scanner interface {
	Scan(dest ...any) error
}

func scanIngestion(s scanner) (*Ingestion, error) {
	var (
		ing   Ingestion
		state string
	)
	err := s.Scan(&ing.ID, &ing.DocumentID, &ing.DocumentType, &ing.Source, &state, &ing.ChunksCreated,
		&ing.FailedStage, &ing.Error, &ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ing.State = State(state)
	return &ing, nil
}

// Get returns ErrNotFound for ids that are not UUIDs, which the column could
// never hold.
func (r *PostgresRepo) Get(ctx context.Context, id string) (*Ingestion, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	ing, err := scanIngestion(r.db.QueryRowContext(ctx, selectIngestion+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ing, err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Ingestion, error) {
	rows, err := r.db.QueryContext(ctx, selectIngestion+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Ingestion{}
	for rows.Next() {
		ing, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ing)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM ingestions GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
