package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

// ProcessExtractionJobUseCase is the worker side: it runs a queued job and persists the outcome.
type ProcessExtractionJobUseCase struct {
	documents ports.DocumentRepository
	jobs      ports.JobRepository
	results   ports.ResultRepository
	artifacts ports.ArtifactRepository
	storage   ports.ObjectStorage
	extractor ports.DocumentExtractor

	observeLag func(time.Duration)
}

func NewProcessExtractionJobUseCase(
	documents ports.DocumentRepository,
	jobs ports.JobRepository,
	results ports.ResultRepository,
	artifacts ports.ArtifactRepository,
	storage ports.ObjectStorage,
	extractor ports.DocumentExtractor,
) *ProcessExtractionJobUseCase {
	return &ProcessExtractionJobUseCase{
		documents: documents,
		jobs:      jobs,
		results:   results,
		artifacts: artifacts,
		storage:   storage,
		extractor: extractor,
	}
}

// SetQueueLagObserver receives the delay between job creation and the start of processing.
func (uc *ProcessExtractionJobUseCase) SetQueueLagObserver(fn func(time.Duration)) {
	uc.observeLag = fn
}

func (uc *ProcessExtractionJobUseCase) ProcessJob(ctx context.Context, jobID string) error {
	job, err := uc.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job by id: %w", err)
	}
	if job.Status == domain.JobCompleted {
		slog.Info("job_already_completed", "job_id", jobID)
		return nil
	}
	if uc.observeLag != nil && !job.CreatedAt.IsZero() {
		uc.observeLag(time.Since(job.CreatedAt))
	}

	if err := uc.jobs.UpdateStatus(ctx, jobID, domain.JobProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	slog.Info("job_processing_started", "job_id", jobID, "document_id", job.DocumentID)

	start := time.Now()
	if err := uc.run(ctx, job); err != nil {
		if failErr := uc.jobs.UpdateStatus(ctx, jobID, domain.JobFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		slog.Error("job_processing_failed", "job_id", jobID, "error", err)
		return err
	}

	if err := uc.jobs.UpdateStatus(ctx, jobID, domain.JobCompleted, ""); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	slog.Info("job_processing_completed",
		"job_id", jobID,
		"document_id", job.DocumentID,
		"duration_ms", durationMS(time.Since(start)),
	)
	return nil
}

func (uc *ProcessExtractionJobUseCase) run(ctx context.Context, job *domain.Job) error {
	doc, err := uc.documents.GetByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	data, err := uc.readFile(ctx, doc.StoragePath)
	if err != nil {
		return err
	}

	result, normalized, err := uc.extractor.ExtractFile(ctx, ports.ExtractRequest{
		DocumentID:   doc.ID,
		JobID:        job.ID,
		Filename:     doc.Filename,
		DocumentType: doc.DocumentType,
		SupplierID:   doc.SupplierID,
		Data:         data,
	})
	if err != nil {
		return err
	}

	artifacts, err := uc.storeOCRText(ctx, normalized)
	if err != nil {
		return err
	}

	resultArtifact := uc.newArtifact(doc.ID, domain.ArtifactResult, path.Join("documents", doc.ID, "jobs", job.ID, "result.json"))
	result.Artifacts = append(artifacts, resultArtifact.artifact)

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal extraction result: %w", err)
	}
	if err := uc.saveArtifact(ctx, resultArtifact, payload); err != nil {
		return err
	}

	if err := uc.results.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("save extraction result: %w", err)
	}
	return nil
}

func (uc *ProcessExtractionJobUseCase) readFile(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return data, nil
}

func (uc *ProcessExtractionJobUseCase) storeOCRText(ctx context.Context, doc domain.Document) ([]domain.Artifact, error) {
	artifacts := []domain.Artifact{}
	for _, page := range doc.Pages {
		if !page.OCRUsed {
			continue
		}
		key := path.Join("documents", doc.DocumentID, "ocr", fmt.Sprintf("page-%d.txt", page.PageNo))
		pending := uc.newArtifact(doc.DocumentID, domain.ArtifactOCRText, key)
		if err := uc.saveArtifact(ctx, pending, []byte(page.FullText)); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, pending.artifact)
	}
	return artifacts, nil
}

type pendingArtifact struct {
	key      string
	artifact domain.Artifact
}

func (uc *ProcessExtractionJobUseCase) newArtifact(documentID, kind, key string) pendingArtifact {
	return pendingArtifact{
		key: key,
		artifact: domain.Artifact{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Kind:       kind,
			URI:        uc.storage.URI(key),
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func (uc *ProcessExtractionJobUseCase) saveArtifact(ctx context.Context, pending pendingArtifact, data []byte) error {
	if err := uc.storage.Save(ctx, pending.key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %s artifact: %w", pending.artifact.Kind, err)
	}
	artifact := pending.artifact
	if err := uc.artifacts.AddArtifact(ctx, &artifact); err != nil {
		return fmt.Errorf("record %s artifact: %w", pending.artifact.Kind, err)
	}
	return nil
}
