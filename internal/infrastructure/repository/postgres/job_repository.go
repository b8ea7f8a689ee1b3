package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docextract/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO extraction_jobs (id, document_id, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, job.ID, job.DocumentID, string(job.Status), nullString(job.Error), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, status, error_message, created_at, updated_at
FROM extraction_jobs
WHERE id = $1
`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) LatestForDocument(ctx context.Context, documentID string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, status, error_message, created_at, updated_at
FROM extraction_jobs
WHERE document_id = $1
ORDER BY updated_at DESC
LIMIT 1
`, documentID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "latest job", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, fmt.Errorf("latest job for document: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE extraction_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), nullString(errMessage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "update job status", fmt.Errorf("id=%s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var job domain.Job
	var status string
	var errMessage sql.NullString
	err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&status,
		&errMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	job.Error = errMessage.String
	return job, nil
}
