package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// ResultRepository stores per-field rows for querying plus the full result document.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveResult replaces any earlier result of the same job.
func (r *ResultRepository) SaveResult(ctx context.Context, result *domain.ExtractionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM field_results WHERE job_id = $1`, result.JobID); err != nil {
		return fmt.Errorf("clear field results: %w", err)
	}

	names := make([]string, 0, len(result.Fields))
	for name := range result.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fr := result.Fields[name]
		row, err := fieldRow(fr)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO field_results (job_id, field_name, value, raw_value, confidence, status, method, page, bbox, evidence, validation_errors)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, result.JobID, name, row.value, nullString(fr.RawValue), fr.Confidence, string(fr.Status),
			nullString(string(fr.Method)), row.page, row.bbox, row.evidence, row.validationErrors)
		if err != nil {
			return fmt.Errorf("insert field result %s: %w", name, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE extraction_jobs
SET result = $2, updated_at = $3
WHERE id = $1
`, result.JobID, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store result document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store result rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "save result", fmt.Errorf("id=%s", result.JobID))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result tx: %w", err)
	}
	return nil
}

// GetResult returns the result of the most recently completed job for the document.
func (r *ResultRepository) GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT result
FROM extraction_jobs
WHERE document_id = $1 AND status = $2 AND result IS NOT NULL
ORDER BY updated_at DESC
LIMIT 1
`, documentID, string(domain.JobCompleted))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrResultNotReady, "get result", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}

	var result domain.ExtractionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

type fieldColumns struct {
	value            []byte
	page             sql.NullInt64
	bbox             []byte
	evidence         sql.NullString
	validationErrors []byte
}

func fieldRow(fr domain.FieldResult) (fieldColumns, error) {
	var cols fieldColumns
	var err error

	if fr.Value != nil {
		if cols.value, err = json.Marshal(fr.Value); err != nil {
			return cols, fmt.Errorf("marshal value: %w", err)
		}
	}
	if fr.SourceLocation != nil {
		if fr.SourceLocation.Page > 0 {
			cols.page = sql.NullInt64{Int64: int64(fr.SourceLocation.Page), Valid: true}
		}
		if fr.SourceLocation.BBox != nil {
			if cols.bbox, err = json.Marshal(fr.SourceLocation.BBox); err != nil {
				return cols, fmt.Errorf("marshal bbox: %w", err)
			}
		}
	}
	if fr.Evidence != nil {
		cols.evidence = nullString(fr.Evidence.Snippet)
	}
	problems := fr.ValidationErrors
	if problems == nil {
		problems = []string{}
	}
	if cols.validationErrors, err = json.Marshal(problems); err != nil {
		return cols, fmt.Errorf("marshal validation errors: %w", err)
	}
	return cols, nil
}
