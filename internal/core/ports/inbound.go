package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// SubmitRequest describes an uploaded file to extract.
type SubmitRequest struct {
	Filename     string
	MimeType     string
	DocumentType string
	SupplierID   string
	Body         io.Reader
}

// ExtractionSubmitter is the inbound contract for accepting documents for extraction.
type ExtractionSubmitter interface {
	Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error)
}

// ExtractionReader is the inbound read model for jobs and results.
type ExtractionReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
	ExportResult(ctx context.Context, documentID string) ([]byte, error)
	ListArtifacts(ctx context.Context, documentID string) ([]domain.Artifact, error)
}

// ExtractRequest is a file to extract synchronously, without persistence.
type ExtractRequest struct {
	DocumentID   string
	JobID        string
	Filename     string
	DocumentType string
	SupplierID   string
	Data         []byte
}

// DocumentExtractor runs the whole extraction pipeline in memory.
type DocumentExtractor interface {
	ExtractFile(ctx context.Context, req ExtractRequest) (*domain.ExtractionResult, domain.Document, error)
}

// JobProcessor is the inbound contract for asynchronous extraction.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

// DocumentTypeCatalog lists configured document types.
type DocumentTypeCatalog interface {
	List() []string
	Get(documentType string) (domain.DocumentConfig, error)
}
