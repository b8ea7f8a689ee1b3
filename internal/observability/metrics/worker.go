package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docextract/internal/core/domain"
)

// WorkerMetrics tracks extraction jobs and per-field outcomes.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobTotal      *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobInFlight   prometheus.Gauge
	queueLag      *prometheus.HistogramVec
	fieldTotal    *prometheus.CounterVec
	fallbackTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total processed extraction jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Extraction job duration in seconds by status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	jobInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docextract",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of extraction jobs being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	fieldTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "extraction",
			Name:      "field_results_total",
			Help:      "Total field results by extraction method and status.",
		},
		[]string{"service", "method", "status"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "extraction",
			Name:      "llm_fallback_total",
			Help:      "Total language model fallback attempts by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(jobTotal, jobDuration, jobInFlight, queueLag, fieldTotal, fallbackTotal)

	return &WorkerMetrics{
		registry:      registry,
		service:       service,
		jobTotal:      jobTotal,
		jobDuration:   jobDuration,
		jobInFlight:   jobInFlight,
		queueLag:      queueLag,
		fieldTotal:    fieldTotal,
		fallbackTotal: fallbackTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry so other collectors can share the endpoint.
func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) StartJob() {
	m.jobInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.jobInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.jobTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveField(method domain.Method, status domain.FieldStatus) {
	m.fieldTotal.WithLabelValues(m.service, string(method), string(status)).Inc()
}

func (m *WorkerMetrics) ObserveFallback(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.fallbackTotal.WithLabelValues(m.service, outcome).Inc()
}
