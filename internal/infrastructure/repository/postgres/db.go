package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	schemaLockID = int64(2026101901)
	pingTimeout  = 5 * time.Second
)

// schemaStatements run in order inside one transaction; each must be idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	supplier_id TEXT,
	document_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS extraction_jobs (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	error_message TEXT,
	result JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_extraction_jobs_document ON extraction_jobs(document_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS field_results (
	job_id TEXT NOT NULL REFERENCES extraction_jobs(id) ON DELETE CASCADE,
	field_name TEXT NOT NULL,
	value JSONB,
	raw_value TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	method TEXT,
	page INTEGER,
	bbox JSONB,
	evidence TEXT,
	validation_errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	PRIMARY KEY (job_id, field_name)
)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	uri TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_document ON artifacts(document_id, created_at)`,
}

// OpenDB opens a pooled pgx connection and checks it is reachable.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema applies schemaStatements under a transaction-scoped advisory lock,
// so concurrent api and worker startups do not race on DDL.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
