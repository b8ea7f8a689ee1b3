package usecase

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/core/rules"
)

const invoiceText = `INVOICE
Vendor: Acme Supplies Inc.
Invoice Number: INV-2024-001
Invoice Date: 2024-03-15
Total: $4,895.00`

func invoiceConfig() domain.DocumentConfig {
	return domain.DocumentConfig{
		DocumentType: "invoice",
		Fields: []domain.FieldConfig{
			{
				Name:            "invoice_number",
				Type:            "string",
				Required:        true,
				Anchors:         []string{"Invoice Number"},
				SearchWindow:    domain.WindowSameLineOrNext,
				Normalizers:     []string{"strip", "upper"},
				Validators:      []domain.ValidatorSpec{{Name: "min_length", Arg: "3"}},
				FallbackAllowed: true,
			},
			{
				Name:            "total_amount",
				Type:            "money",
				Required:        true,
				Anchors:         []string{"Total"},
				SearchWindow:    domain.WindowSameLineOrNext,
				Normalizers:     []string{"parse_money"},
				Validators:      []domain.ValidatorSpec{{Name: "positive_number"}},
				FallbackAllowed: true,
			},
			{
				Name:            "po_number",
				Type:            "string",
				Required:        false,
				Anchors:         []string{"PO Number"},
				SearchWindow:    domain.WindowSameLineOrNext,
				FallbackAllowed: true,
			},
		},
	}
}

// docFromText builds a one-page document, one line id per text line.
func docFromText(documentID, text string) domain.Document {
	var tokens []domain.Token
	for lineID, line := range strings.Split(text, "\n") {
		for i, word := range strings.Fields(line) {
			tokens = append(tokens, domain.Token{
				Text: word,
				BBox: domain.Rect{
					X0:   float64(i) * 60,
					Y0:   float64(lineID) * 14,
					X1:   float64(i)*60 + 55,
					Y1:   float64(lineID)*14 + 12,
					Page: 1,
				},
				LineID:     lineID,
				Confidence: 1,
			})
		}
	}
	return domain.Document{
		DocumentID: documentID,
		Pages:      []domain.Page{domain.NewPage(1, tokens, false)},
	}
}

type catalogFake struct {
	configs map[string]domain.DocumentConfig
}

func newCatalogFake() *catalogFake {
	return &catalogFake{configs: map[string]domain.DocumentConfig{"invoice": invoiceConfig()}}
}

func (f *catalogFake) List() []string {
	names := make([]string, 0, len(f.configs))
	for name := range f.configs {
		names = append(names, name)
	}
	return names
}

func (f *catalogFake) Get(documentType string) (domain.DocumentConfig, error) {
	cfg, ok := f.configs[documentType]
	if !ok {
		return domain.DocumentConfig{}, domain.ErrConfigNotFound
	}
	return cfg, nil
}

type docNormalizerFake struct {
	doc      domain.Document
	err      error
	filename string
}

func (f *docNormalizerFake) Normalize(_ context.Context, documentID, filename string, _ []byte) (domain.Document, error) {
	f.filename = filename
	if f.err != nil {
		return domain.Document{}, f.err
	}
	doc := f.doc
	doc.DocumentID = documentID
	return doc, nil
}

type fallbackFake struct {
	mu      sync.Mutex
	reply   domain.FieldResult
	err     error
	trigger map[string]bool
	calls   []string
}

func (f *fallbackFake) ShouldFallback(result domain.FieldResult, _ domain.FieldConfig) bool {
	return f.trigger[result.FieldName]
}

func (f *fallbackFake) Extract(_ context.Context, _ domain.Document, field domain.FieldConfig, current domain.FieldResult) (domain.FieldResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, field.Name)
	f.mu.Unlock()
	if f.err != nil {
		return current, f.err
	}
	if f.reply.Method == "" {
		return current, nil
	}
	reply := f.reply
	reply.FieldName = field.Name
	return reply, nil
}

type metricsFake struct {
	mu        sync.Mutex
	fields    map[domain.FieldStatus]int
	fallbacks map[string]int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{fields: map[domain.FieldStatus]int{}, fallbacks: map[string]int{}}
}

func (f *metricsFake) ObserveField(_ domain.Method, status domain.FieldStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[status]++
}

func (f *metricsFake) ObserveFallback(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks[outcome]++
}

func newExtractUseCase(doc domain.Document, fallback ports.FieldFallback, metrics ports.ProcessingMetrics, debug bool) *ExtractDocumentUseCase {
	return NewExtractDocumentUseCase(
		&docNormalizerFake{doc: doc},
		newCatalogFake(),
		rules.NewNormalizer(),
		rules.NewValidator(),
		fallback,
		metrics,
		ExtractOptions{Concurrency: 2, Debug: debug},
	)
}

type documentRepoFake struct {
	docs    map[string]*domain.SourceDocument
	created *domain.SourceDocument
	err     error
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.SourceDocument) error {
	if f.err != nil {
		return f.err
	}
	copyDoc := *doc
	f.created = &copyDoc
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.SourceDocument, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

type statusCall struct {
	status domain.JobStatus
	errMsg string
}

type jobRepoFake struct {
	jobs        map[string]*domain.Job
	latest      *domain.Job
	created     *domain.Job
	createErr   error
	statusCalls []statusCall
}

func (f *jobRepoFake) Create(_ context.Context, job *domain.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyJob := *job
	f.created = &copyJob
	return nil
}

func (f *jobRepoFake) GetByID(_ context.Context, id string) (*domain.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *jobRepoFake) LatestForDocument(_ context.Context, _ string) (*domain.Job, error) {
	if f.latest == nil {
		return nil, domain.ErrDocumentNotFound
	}
	copyJob := *f.latest
	return &copyJob, nil
}

func (f *jobRepoFake) UpdateStatus(_ context.Context, _ string, status domain.JobStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

type resultRepoFake struct {
	saved  *domain.ExtractionResult
	stored *domain.ExtractionResult
	err    error
}

func (f *resultRepoFake) SaveResult(_ context.Context, result *domain.ExtractionResult) error {
	if f.err != nil {
		return f.err
	}
	f.saved = result
	return nil
}

func (f *resultRepoFake) GetResult(context.Context, string) (*domain.ExtractionResult, error) {
	if f.stored == nil {
		return nil, domain.ErrResultNotReady
	}
	return f.stored, nil
}

type artifactRepoFake struct {
	added []domain.Artifact
	err   error
}

func (f *artifactRepoFake) AddArtifact(_ context.Context, artifact *domain.Artifact) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, *artifact)
	return nil
}

func (f *artifactRepoFake) ListArtifacts(context.Context, string) ([]domain.Artifact, error) {
	return f.added, nil
}

type storageFake struct {
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) URI(key string) string {
	return "mem://" + key
}

type queueFake struct {
	published string
	err       error
}

func (f *queueFake) PublishJobSubmitted(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = jobID
	return nil
}

func (f *queueFake) SubscribeJobSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}
