package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// Normalizer turns a raw value into its typed form.
// Unparseable input fails with an error of kind domain.ErrNormalization.
type Normalizer interface {
	Normalize(raw string, field domain.FieldConfig) (any, error)
}

// Validator checks a value against the field's validators and returns human-readable problems.
// A non-nil error means the validator itself failed, not the value.
type Validator interface {
	Validate(value any, field domain.FieldConfig) ([]string, error)
}

// DocumentRepository persists uploaded source documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.SourceDocument) error
	GetByID(ctx context.Context, id string) (*domain.SourceDocument, error)
}

// JobRepository persists extraction job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	LatestForDocument(ctx context.Context, documentID string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
}

// ResultRepository persists per-field results and the aggregate result.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *domain.ExtractionResult) error
	GetResult(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
}

// ArtifactRepository records stored artifacts for a document.
type ArtifactRepository interface {
	AddArtifact(ctx context.Context, artifact *domain.Artifact) error
	ListArtifacts(ctx context.Context, documentID string) ([]domain.Artifact, error)
}

// ObjectStorage stores source documents and artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URI(key string) string
}

// MessageQueue publishes/consumes extraction jobs.
type MessageQueue interface {
	PublishJobSubmitted(ctx context.Context, jobID string) error
	SubscribeJobSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentNormalizer turns file bytes into a tokenized document.
type DocumentNormalizer interface {
	Normalize(ctx context.Context, documentID, filename string, data []byte) (domain.Document, error)
}

// LLMProvider completes a prompt with a language model.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FieldFallback may replace a weak field result with a language-model answer.
type FieldFallback interface {
	ShouldFallback(result domain.FieldResult, field domain.FieldConfig) bool
	Extract(ctx context.Context, doc domain.Document, field domain.FieldConfig, current domain.FieldResult) (domain.FieldResult, error)
}

// SpreadsheetRenderer renders a result as a spreadsheet with fields in the given order.
type SpreadsheetRenderer interface {
	Render(result *domain.ExtractionResult, fieldOrder []string) ([]byte, error)
}

// ProcessingMetrics observes pipeline outcomes.
type ProcessingMetrics interface {
	ObserveField(method domain.Method, status domain.FieldStatus)
	ObserveFallback(outcome string)
}
