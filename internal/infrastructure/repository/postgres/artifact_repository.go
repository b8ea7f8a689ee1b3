package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/docextract/internal/core/domain"
)

type ArtifactRepository struct {
	db *sql.DB
}

func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

func (r *ArtifactRepository) AddArtifact(ctx context.Context, artifact *domain.Artifact) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO artifacts (id, document_id, kind, uri, created_at)
VALUES ($1,$2,$3,$4,$5)
`, artifact.ID, artifact.DocumentID, artifact.Kind, artifact.URI, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) ListArtifacts(ctx context.Context, documentID string) ([]domain.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, kind, uri, created_at
FROM artifacts
WHERE document_id = $1
ORDER BY created_at
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Artifact, 0)
	for rows.Next() {
		var a domain.Artifact
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &a.URI, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}
