package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

type SubmitExtractionUseCase struct {
	documents   ports.DocumentRepository
	jobs        ports.JobRepository
	artifacts   ports.ArtifactRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	catalog     ports.DocumentTypeCatalog
	defaultType string
}

func NewSubmitExtractionUseCase(
	documents ports.DocumentRepository,
	jobs ports.JobRepository,
	artifacts ports.ArtifactRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	catalog ports.DocumentTypeCatalog,
	defaultType string,
) *SubmitExtractionUseCase {
	return &SubmitExtractionUseCase{
		documents:   documents,
		jobs:        jobs,
		artifacts:   artifacts,
		storage:     storage,
		queue:       queue,
		catalog:     catalog,
		defaultType: defaultType,
	}
}

// Submit stores the upload, records a queued job and publishes it for the worker.
func (uc *SubmitExtractionUseCase) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.Filename) == "" || req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit extraction", errors.New("file is required"))
	}

	documentType := strings.ToLower(strings.TrimSpace(req.DocumentType))
	if documentType == "" {
		documentType = uc.defaultType
	}
	if _, err := uc.catalog.Get(documentType); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit extraction", err)
	}

	id := uuid.NewString()
	storageKey := documentStorageKey(id, req.Filename)
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, req.Body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.SourceDocument{
		ID:           id,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		StoragePath:  storageKey,
		SupplierID:   strings.TrimSpace(req.SupplierID),
		DocumentType: documentType,
		CreatedAt:    now,
	}
	if err := uc.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	original := &domain.Artifact{
		ID:         uuid.NewString(),
		DocumentID: id,
		Kind:       domain.ArtifactOriginal,
		URI:        uc.storage.URI(storageKey),
		CreatedAt:  now,
	}
	if err := uc.artifacts.AddArtifact(ctx, original); err != nil {
		return nil, fmt.Errorf("record original artifact: %w", err)
	}

	job := &domain.Job{
		ID:         uuid.NewString(),
		DocumentID: id,
		Status:     domain.JobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create extraction job: %w", err)
	}

	if err := uc.queue.PublishJobSubmitted(ctx, job.ID); err != nil {
		if markErr := uc.jobs.UpdateStatus(ctx, job.ID, domain.JobFailed, "publish failed: "+err.Error()); markErr != nil {
			slog.Error("job_mark_failed_error", "job_id", job.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish extraction job: %w", err)
	}

	slog.Info("extraction_submitted",
		"job_id", job.ID,
		"document_id", id,
		"document_type", documentType,
		"filename", doc.Filename,
	)
	return job, nil
}

func documentStorageKey(documentID, filename string) string {
	return path.Join("documents", documentID, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
