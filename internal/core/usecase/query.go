package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

type QueryUseCase struct {
	documents ports.DocumentRepository
	jobs      ports.JobRepository
	results   ports.ResultRepository
	artifacts ports.ArtifactRepository
	catalog   ports.DocumentTypeCatalog
	renderer  ports.SpreadsheetRenderer
}

func NewQueryUseCase(
	documents ports.DocumentRepository,
	jobs ports.JobRepository,
	results ports.ResultRepository,
	artifacts ports.ArtifactRepository,
	catalog ports.DocumentTypeCatalog,
	renderer ports.SpreadsheetRenderer,
) *QueryUseCase {
	return &QueryUseCase{
		documents: documents,
		jobs:      jobs,
		results:   results,
		artifacts: artifacts,
		catalog:   catalog,
		renderer:  renderer,
	}
}

func (uc *QueryUseCase) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get job", fmt.Errorf("job id is required"))
	}
	return uc.jobs.GetByID(ctx, jobID)
}

// GetResult returns the result of the document's latest job once it has completed.
func (uc *QueryUseCase) GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get result", fmt.Errorf("document id is required"))
	}

	job, err := uc.jobs.LatestForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case domain.JobCompleted:
	case domain.JobFailed:
		return nil, domain.WrapError(domain.ErrResultNotReady, "get result", fmt.Errorf("job %s failed: %s", job.ID, job.Error))
	default:
		return nil, domain.WrapError(domain.ErrResultNotReady, "get result", fmt.Errorf("job %s is %s", job.ID, job.Status))
	}

	return uc.results.GetResult(ctx, documentID)
}

// ExportResult renders the latest result as a spreadsheet with fields in config order.
func (uc *QueryUseCase) ExportResult(ctx context.Context, documentID string) ([]byte, error) {
	result, err := uc.GetResult(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var order []string
	if cfg, err := uc.catalog.Get(result.DocumentType); err == nil {
		order = cfg.FieldNames()
	}

	data, err := uc.renderer.Render(result, order)
	if err != nil {
		return nil, fmt.Errorf("render spreadsheet: %w", err)
	}
	return data, nil
}

// ListArtifacts returns everything stored for a known document, oldest first.
func (uc *QueryUseCase) ListArtifacts(ctx context.Context, documentID string) ([]domain.Artifact, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list artifacts", fmt.Errorf("document id is required"))
	}
	if _, err := uc.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}

	artifacts, err := uc.artifacts.ListArtifacts(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}
	return artifacts, nil
}
