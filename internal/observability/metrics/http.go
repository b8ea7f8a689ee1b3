package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics instruments the extraction API on its own registry.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	submissions *prometheus.CounterVec
	uploadBytes prometheus.Histogram
	rejected    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docextract",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests by route and status.",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "docextract",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "docextract",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: labels,
		}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docextract",
			Subsystem:   "api",
			Name:        "submissions_total",
			Help:        "Total accepted extraction submissions by document type.",
			ConstLabels: labels,
		}, []string{"document_type"}),
		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "docextract",
			Subsystem:   "api",
			Name:        "upload_bytes",
			Help:        "Size distribution of uploaded documents.",
			Buckets:     prometheus.ExponentialBuckets(16<<10, 4, 8),
			ConstLabels: labels,
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docextract",
			Subsystem:   "http",
			Name:        "rejected_total",
			Help:        "Requests rejected by traffic control by reason.",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routeLabel(r)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordSubmission(documentType string, size int64) {
	if documentType == "" {
		documentType = "unknown"
	}
	m.submissions.WithLabelValues(documentType).Inc()
	if size > 0 {
		m.uploadBytes.Observe(float64(size))
	}
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// routeLabel prefers the matched mux pattern and falls back to normalizePath.
func routeLabel(r *http.Request) string {
	pattern := r.Pattern
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		pattern = rest
	}
	if pattern != "" && pattern != "/" {
		return pattern
	}
	return normalizePath(r.URL.Path)
}

// normalizePath maps a raw path onto a known route; anything else is "other".
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{job_id}"
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/result.xlsx"):
		return "/v1/documents/{document_id}/result.xlsx"
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/result"):
		return "/v1/documents/{document_id}/result"
	case strings.HasPrefix(path, "/v1/documents/") && strings.HasSuffix(path, "/artifacts"):
		return "/v1/documents/{document_id}/artifacts"
	case strings.HasPrefix(path, "/v1/document-types/"):
		return "/v1/document-types/{document_type}"
	}
	switch path {
	case "/v1/extract", "/v1/document-types", "/healthz", "/metrics", "/openapi.yaml":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
