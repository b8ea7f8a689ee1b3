package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/docextract/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.SourceDocument) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (id, filename, mime_type, storage_path, supplier_id, document_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, nullString(doc.SupplierID), doc.DocumentType, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.SourceDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, supplier_id, document_type, created_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.SourceDocument
	var supplier sql.NullString
	err := row.Scan(&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &supplier, &doc.DocumentType, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.SupplierID = supplier.String
	return &doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
