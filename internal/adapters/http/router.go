package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/observability/metrics"
)

const (
	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// multipart overhead allowed on top of the file limit
	formOverhead = 1 << 20
)

type Router struct {
	cfg       config.Config
	submitter ports.ExtractionSubmitter
	reader    ports.ExtractionReader
	catalog   ports.DocumentTypeCatalog
	metrics   *metrics.HTTPServerMetrics
	health    func() map[string]string
	validator *openAPIValidator
}

type Option func(*Router)

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

// WithHealth adds dependency states (circuit breakers) to /healthz.
func WithHealth(states func() map[string]string) Option {
	return func(rt *Router) { rt.health = states }
}

func NewRouter(
	cfg config.Config,
	submitter ports.ExtractionSubmitter,
	reader ports.ExtractionReader,
	catalog ports.DocumentTypeCatalog,
	opts ...Option,
) *Router {
	validator, err := newOpenAPIValidator(openAPISpec)
	if err != nil {
		panic(fmt.Sprintf("embedded openapi document is invalid: %v", err))
	}
	rt := &Router{
		cfg:       cfg,
		submitter: submitter,
		reader:    reader,
		catalog:   catalog,
		validator: validator,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPI)
	mux.HandleFunc("POST /v1/extract", rt.submitExtraction)
	mux.HandleFunc("GET /v1/jobs/{job_id}", rt.getJob)
	mux.HandleFunc("GET /v1/documents/{document_id}/result", rt.getResult)
	mux.HandleFunc("GET /v1/documents/{document_id}/result.xlsx", rt.exportResult)
	mux.HandleFunc("GET /v1/documents/{document_id}/artifacts", rt.listArtifacts)
	mux.HandleFunc("GET /v1/document-types", rt.listDocumentTypes)
	mux.HandleFunc("GET /v1/document-types/{document_type}", rt.getDocumentType)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var api http.Handler = rt.validator.middleware(mux)
	api = backpressureWithReject(
		api,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.rejected("backpressure"),
	)
	api = rateLimitMiddleware(api, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected("rate_limited"))

	root := http.NewServeMux()
	root.Handle("/", api)
	root.Handle("GET /healthz", mux)
	root.Handle("GET /metrics", mux)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(recoverMiddleware(handler)))
}

func (rt *Router) rejected(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if rt.health != nil {
		payload["breakers"] = rt.health()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) submitExtraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+formOverhead)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if rt.cfg.MaxUploadBytes > 0 && fileHeader.Size > rt.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds %d bytes", rt.cfg.MaxUploadBytes),
		})
		return
	}

	documentType := strings.TrimSpace(r.FormValue("document_type"))
	job, err := rt.submitter.Submit(r.Context(), ports.SubmitRequest{
		Filename:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		DocumentType: documentType,
		SupplierID:   r.FormValue("supplier_id"),
		Body:         file,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSubmission(documentType, fileHeader.Size)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":      job.ID,
		"document_id": job.DocumentID,
		"status":      string(job.Status),
	})
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.reader.GetJob(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := rt.reader.GetResult(r.Context(), r.PathValue("document_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) exportResult(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	data, err := rt.reader.ExportResult(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, documentID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) listArtifacts(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	artifacts, err := rt.reader.ListArtifacts(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"artifacts":   artifacts,
	})
}

func (rt *Router) listDocumentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"document_types": rt.catalog.List()})
}

func (rt *Router) getDocumentType(w http.ResponseWriter, r *http.Request) {
	cfg, err := rt.catalog.Get(r.PathValue("document_type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
