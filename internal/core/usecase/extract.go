package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/extraction"
	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/core/rules"
)

// Fallback outcomes reported to ProcessingMetrics.
const (
	FallbackReplaced = "replaced"
	FallbackKept     = "kept"
	FallbackError    = "error"
)

type ExtractOptions struct {
	Concurrency int
	Debug       bool
}

// ExtractDocumentUseCase runs normalization, field extraction, validation and fallback in memory.
type ExtractDocumentUseCase struct {
	docs       ports.DocumentNormalizer
	catalog    ports.DocumentTypeCatalog
	normalizer ports.Normalizer
	validator  ports.Validator
	fallback   ports.FieldFallback
	metrics    ports.ProcessingMetrics
	opts       ExtractOptions
}

// NewExtractDocumentUseCase wires the pipeline. fallback and metrics may be nil.
func NewExtractDocumentUseCase(
	docs ports.DocumentNormalizer,
	catalog ports.DocumentTypeCatalog,
	normalizer ports.Normalizer,
	validator ports.Validator,
	fallback ports.FieldFallback,
	metrics ports.ProcessingMetrics,
	opts ExtractOptions,
) *ExtractDocumentUseCase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &ExtractDocumentUseCase{
		docs:       docs,
		catalog:    catalog,
		normalizer: normalizer,
		validator:  validator,
		fallback:   fallback,
		metrics:    metrics,
		opts:       opts,
	}
}

// ExtractFile normalizes the file and extracts every configured field.
func (uc *ExtractDocumentUseCase) ExtractFile(
	ctx context.Context,
	req ports.ExtractRequest,
) (*domain.ExtractionResult, domain.Document, error) {
	if len(req.Data) == 0 {
		return nil, domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "extract file", fmt.Errorf("file %q is empty", req.Filename))
	}
	cfg, err := uc.catalog.Get(strings.TrimSpace(req.DocumentType))
	if err != nil {
		return nil, domain.Document{}, fmt.Errorf("resolve document config: %w", err)
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	start := time.Now()
	doc, err := uc.docs.Normalize(ctx, documentID, req.Filename, req.Data)
	if err != nil {
		return nil, domain.Document{}, fmt.Errorf("normalize document: %w", err)
	}
	slog.Info("document_normalized",
		"document_id", documentID,
		"pages", len(doc.Pages),
		"tokens", doc.TokenCount(),
		"duration_ms", durationMS(time.Since(start)),
	)

	result, err := uc.Extract(ctx, doc, cfg)
	if err != nil {
		return nil, doc, err
	}
	result.JobID = req.JobID
	result.SupplierID = req.SupplierID
	if result.DebugTrace != nil {
		result.DebugTrace.DurationMS = durationMS(time.Since(start))
	}
	return result, doc, nil
}

// Extract decides every field of cfg against an already normalized document.
// A failing field becomes missing; only cancellation aborts the whole document.
func (uc *ExtractDocumentUseCase) Extract(
	ctx context.Context,
	doc domain.Document,
	cfg domain.DocumentConfig,
) (*domain.ExtractionResult, error) {
	start := time.Now()
	results := make([]domain.FieldResult, len(cfg.Fields))
	traces := make([]domain.FieldTrace, len(cfg.Fields))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(uc.opts.Concurrency)
	for i, field := range cfg.Fields {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			results[i], traces[i] = uc.extractField(groupCtx, doc, field)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}

	fields := make(map[string]domain.FieldResult, len(results))
	for _, fr := range results {
		fields[fr.FieldName] = fr
		if uc.metrics != nil {
			uc.metrics.ObserveField(fr.Method, fr.Status)
		}
	}

	result := &domain.ExtractionResult{
		DocumentID:        doc.DocumentID,
		DocumentType:      cfg.DocumentType,
		Fields:            fields,
		ValidationSummary: rules.Summarize(fields, cfg),
		Artifacts:         []domain.Artifact{},
	}

	if uc.opts.Debug {
		trace := &domain.DebugTrace{
			Pages:      len(doc.Pages),
			Tokens:     doc.TokenCount(),
			OCRPages:   ocrPages(doc),
			Fields:     make(map[string]domain.FieldTrace, len(traces)),
			DurationMS: durationMS(time.Since(start)),
		}
		for i, field := range cfg.Fields {
			trace.Fields[field.Name] = traces[i]
		}
		result.DebugTrace = trace
	}

	slog.Info("document_extracted",
		"document_id", doc.DocumentID,
		"document_type", cfg.DocumentType,
		"fields", len(fields),
		"required_present", result.ValidationSummary.RequiredPresent,
		"overall_confidence", result.ValidationSummary.OverallConfidence,
	)
	return result, nil
}

func (uc *ExtractDocumentUseCase) extractField(
	ctx context.Context,
	doc domain.Document,
	field domain.FieldConfig,
) (domain.FieldResult, domain.FieldTrace) {
	start := time.Now()
	var trace domain.FieldTrace

	result, candidates, err := extraction.ExtractFieldCounted(doc, field, uc.normalizer, uc.validator)
	if err != nil {
		slog.Warn("field_extraction_failed", "document_id", doc.DocumentID, "field", field.Name, "error", err)
		result = domain.MissingField(field.Name)
		trace.ExtractionFailed = err.Error()
	}
	trace.Candidates = candidates

	if result.Value != nil {
		problems, err := uc.validator.Validate(result.Value, field)
		if err != nil {
			slog.Warn("field_validation_failed", "document_id", doc.DocumentID, "field", field.Name, "error", err)
		} else {
			result.ValidationErrors = problems
		}
	}

	if uc.fallback != nil && uc.fallback.ShouldFallback(result, field) {
		replaced, err := uc.fallback.Extract(ctx, doc, field, result)
		switch {
		case err != nil:
			slog.Warn("llm_fallback_failed", "document_id", doc.DocumentID, "field", field.Name, "error", err)
			uc.observeFallback(FallbackError)
		case replaced.Method == domain.MethodLLM:
			result = replaced
			trace.FallbackUsed = true
			uc.observeFallback(FallbackReplaced)
		default:
			uc.observeFallback(FallbackKept)
		}
	}

	if result.ValidationErrors == nil {
		result.ValidationErrors = []string{}
	}
	if result.Alternatives == nil {
		result.Alternatives = []domain.Candidate{}
	}
	trace.WinnerMethod = result.Method
	trace.DurationMS = durationMS(time.Since(start))
	return result, trace
}

func (uc *ExtractDocumentUseCase) observeFallback(outcome string) {
	if uc.metrics != nil {
		uc.metrics.ObserveFallback(outcome)
	}
}

func ocrPages(doc domain.Document) []int {
	pages := []int{}
	for _, p := range doc.Pages {
		if p.OCRUsed {
			pages = append(pages, p.PageNo)
		}
	}
	return pages
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
