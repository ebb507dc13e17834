package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save records a failed task. A second failure of the same ingestion replaces
// the earlier row.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO failed_jobs (ingestion_id, stage, payload, error, retries) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ingestion_id) DO UPDATE SET stage = EXCLUDED.stage, payload = EXCLUDED.payload,
		error = EXCLUDED.error, retries = EXCLUDED.retries, created_at = NOW()
		RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, job.IngestionID, job.Stage, []byte(job.Payload), job.Error, job.Retries).
		Scan(&job.ID, &job.CreatedAt)
}

const selectJob = `SELECT id, ingestion_id, stage, payload, error, retries, created_at FROM failed_jobs`

func scanJob(s interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		j       Job
		payload []byte
	)
	if err := s.Scan(&j.ID, &j.IngestionID, &j.Stage, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	return &j, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJob+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	j, err := scanJob(r.db.QueryRowContext(ctx, selectJob+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&count)
	return count, err
}
