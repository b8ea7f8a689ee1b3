package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docextract/internal/core/domain"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func TestDocumentCreateStoresNullSupplier(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewDocumentRepository(db)
	created := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "invoice.pdf", "application/pdf", "documents/doc-1/invoice.pdf", nil, "invoice", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.SourceDocument{
		ID:           "doc-1",
		Filename:     "invoice.pdf",
		MimeType:     "application/pdf",
		StoragePath:  "documents/doc-1/invoice.pdf",
		DocumentType: "invoice",
		CreatedAt:    created,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDocumentGetByIDReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewDocumentRepository(db).GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobGetByIDScansRow(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "document_id", "status", "error_message", "created_at", "updated_at"}).
		AddRow("job-1", "doc-1", "failed", "ocr failed", now, now)
	mock.ExpectQuery("SELECT id, document_id, status, error_message").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := NewJobRepository(db).GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobFailed || job.Error != "ocr failed" || job.DocumentID != "doc-1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobUpdateStatusReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()

	mock.ExpectExec("UPDATE extraction_jobs").
		WithArgs("missing", string(domain.JobProcessing), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewJobRepository(db).UpdateStatus(context.Background(), "missing", domain.JobProcessing, "")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestJobLatestForDocumentNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()

	mock.ExpectQuery("FROM extraction_jobs").
		WithArgs("doc-x").
		WillReturnError(sql.ErrNoRows)

	_, err := NewJobRepository(db).LatestForDocument(context.Background(), "doc-x")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, prefix := range []string{
		"CREATE TABLE IF NOT EXISTS documents",
		"CREATE TABLE IF NOT EXISTS extraction_jobs",
		"CREATE INDEX IF NOT EXISTS idx_extraction_jobs_document",
		"CREATE TABLE IF NOT EXISTS field_results",
		"CREATE TABLE IF NOT EXISTS artifacts",
		"CREATE INDEX IF NOT EXISTS idx_artifacts_document",
	} {
		mock.ExpectExec(prefix).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaRollsBackOnFailure(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := EnsureSchema(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "schema statement 1") {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
