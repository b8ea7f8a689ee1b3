package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/observability/metrics"
)

type submitterFake struct {
	req  ports.SubmitRequest
	body string
	err  error
}

func (f *submitterFake) Submit(_ context.Context, req ports.SubmitRequest) (*domain.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.req = req
	f.body = string(raw)
	return &domain.Job{ID: "job-1", DocumentID: "doc-1", Status: domain.JobQueued}, nil
}

type readerFake struct {
	job       *domain.Job
	result    *domain.ExtractionResult
	xlsx      []byte
	artifacts []domain.Artifact
	err       error
}

func (f *readerFake) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job := *f.job
	job.ID = jobID
	return &job, nil
}

func (f *readerFake) GetResult(context.Context, string) (*domain.ExtractionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *readerFake) ExportResult(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.xlsx, nil
}

func (f *readerFake) ListArtifacts(context.Context, string) ([]domain.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifacts, nil
}

type catalogFake struct{}

func (catalogFake) List() []string { return []string{"invoice", "receipt"} }

func (catalogFake) Get(documentType string) (domain.DocumentConfig, error) {
	if documentType != "invoice" {
		return domain.DocumentConfig{}, domain.WrapError(domain.ErrConfigNotFound, "get config", errors.New(documentType))
	}
	return domain.DocumentConfig{DocumentType: "invoice"}, nil
}

func newTestRouter(cfg config.Config, submitter *submitterFake, reader *readerFake, opts ...Option) http.Handler {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	return NewRouter(cfg, submitter, reader, catalogFake{}, opts...).Handler()
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthzIncludesBreakers(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{}, WithHealth(func() map[string]string {
		return map[string]string{"llm.complete": "closed"}
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
	payload := decodeBody(t, res)
	breakers, ok := payload["breakers"].(map[string]any)
	if !ok || breakers["llm.complete"] != "closed" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestSubmitExtractionAccepted(t *testing.T) {
	submitter := &submitterFake{}
	handler := newTestRouter(config.Config{}, submitter, &readerFake{})

	body, contentType := multipartUpload(t, "invoice.pdf", "%PDF-1.7", map[string]string{
		"document_type": "invoice",
		"supplier_id":   "acme",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	payload := decodeBody(t, res)
	if payload["job_id"] != "job-1" || payload["document_id"] != "doc-1" || payload["status"] != "queued" {
		t.Fatalf("unexpected response: %+v", payload)
	}
	if submitter.req.Filename != "invoice.pdf" || submitter.req.DocumentType != "invoice" || submitter.req.SupplierID != "acme" {
		t.Fatalf("unexpected submit request: %+v", submitter.req)
	}
	if submitter.body != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", submitter.body)
	}
}

func TestSubmitExtractionMissingFile(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSubmitExtractionTooLarge(t *testing.T) {
	handler := newTestRouter(config.Config{MaxUploadBytes: 8}, &submitterFake{}, &readerFake{})

	body, contentType := multipartUpload(t, "invoice.pdf", "0123456789abcdef", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestSubmitExtractionMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid", err: domain.WrapError(domain.ErrInvalidInput, "submit", errors.New("bad type")), want: http.StatusBadRequest},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "publish", errors.New("nats")), want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(config.Config{}, &submitterFake{err: tc.err}, &readerFake{})
			body, contentType := multipartUpload(t, "a.pdf", "x", nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/extract", body)
			req.Header.Set("Content-Type", contentType)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			if payload := decodeBody(t, res); payload["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{job: &domain.Job{DocumentID: "doc-1", Status: domain.JobProcessing}})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/jobs/0b7f4c1e-3a52-4c1b-9d0e-2f6a1b7c9d10", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["job_id"] != "0b7f4c1e-3a52-4c1b-9d0e-2f6a1b7c9d10" || payload["status"] != "processing" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGetJobRejectsMalformedID(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{job: &domain.Job{}})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/jobs/bad!id", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetResultNotReadyIs404(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{
		err: domain.WrapError(domain.ErrResultNotReady, "get result", errors.New("job is queued")),
	})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/result", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetResult(t *testing.T) {
	result := &domain.ExtractionResult{
		DocumentID:   "doc-1",
		DocumentType: "invoice",
		Fields: map[string]domain.FieldResult{
			"invoice_number": {FieldName: "invoice_number", Value: "INV-1", Status: domain.FieldVerified, Confidence: 0.9},
		},
	}
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{result: result})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/result", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	fields := payload["fields"].(map[string]any)
	number := fields["invoice_number"].(map[string]any)
	if number["value"] != "INV-1" || number["status"] != "verified" {
		t.Fatalf("unexpected field payload: %+v", number)
	}
}

func TestListArtifacts(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{artifacts: []domain.Artifact{
		{ID: "a-1", DocumentID: "doc-1", Kind: domain.ArtifactOriginal, URI: "file:///data/documents/doc-1/inv.pdf"},
		{ID: "a-2", DocumentID: "doc-1", Kind: domain.ArtifactResult, URI: "file:///data/documents/doc-1/jobs/j/result.json"},
	}})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/artifacts", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["document_id"] != "doc-1" {
		t.Fatalf("unexpected document id %v", payload["document_id"])
	}
	artifacts := payload["artifacts"].([]any)
	if len(artifacts) != 2 || artifacts[0].(map[string]any)["kind"] != "original" {
		t.Fatalf("unexpected artifacts %+v", artifacts)
	}
}

func TestListArtifactsUnknownDocumentIs404(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{
		err: domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id=doc-x")),
	})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-x/artifacts", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestExportResult(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{xlsx: []byte("PK")})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1/result.xlsx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != xlsxMIME {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), `doc-1.xlsx`) {
		t.Fatalf("unexpected content disposition %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.String() != "PK" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestDocumentTypes(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/document-types", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	types := payload["document_types"].([]any)
	if len(types) != 2 || types[0] != "invoice" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/document-types/passport", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown type, got %d", res.Code)
	}
}

func TestOpenAPIDocumentServed(t *testing.T) {
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	if res.Code != http.StatusOK || !strings.HasPrefix(res.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("unexpected openapi response %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewHTTPServerMetrics("api")
	handler := newTestRouter(config.Config{}, &submitterFake{}, &readerFake{}, WithMetrics(m))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/document-types", nil))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `docextract_http_requests_total{method="GET",path="/v1/document-types",service="api",status="200"} 1`) {
		t.Fatalf("request metric missing:\n%s", res.Body.String())
	}
}
