package bootstrap

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/core/fallback"
	"github.com/kirillkom/docextract/internal/core/ports"
	"github.com/kirillkom/docextract/internal/core/rules"
	"github.com/kirillkom/docextract/internal/core/usecase"
	"github.com/kirillkom/docextract/internal/infrastructure/configstore"
	"github.com/kirillkom/docextract/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/docextract/internal/infrastructure/extractor"
	"github.com/kirillkom/docextract/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/docextract/internal/infrastructure/llm"
	"github.com/kirillkom/docextract/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/docextract/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docextract/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docextract/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docextract/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docextract/internal/infrastructure/resilience"
	"github.com/kirillkom/docextract/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docextract/internal/observability/metrics"
)

// App holds the services used by the api and worker processes.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Catalog   ports.DocumentTypeCatalog
	Metrics   *metrics.WorkerMetrics
	SubmitUC  ports.ExtractionSubmitter
	ProcessUC ports.JobProcessor
	QueryUC   ports.ExtractionReader
	ExtractUC ports.DocumentExtractor

	executors []*resilience.Executor
	closeFn   func()
}

// Pipeline is the in-memory extraction stack without database or queue, used by the CLI and MCP server.
type Pipeline struct {
	Catalog   ports.DocumentTypeCatalog
	ExtractUC *usecase.ExtractDocumentUseCase
	Renderer  ports.SpreadsheetRenderer

	executor *resilience.Executor
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	workerMetrics := metrics.NewWorkerMetrics("worker")
	pipeline, err := NewPipeline(cfg, workerMetrics)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	jobs := postgres.NewJobRepository(db)
	results := postgres.NewResultRepository(db)
	artifacts := postgres.NewArtifactRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queueExecutor := resilience.NewExecutor(resilience.FromSettings(cfg.QueueResilience))
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Subscribers:        cfg.WorkerJobs,
		ResilienceExecutor: queueExecutor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	submitUC := usecase.NewSubmitExtractionUseCase(documents, jobs, artifacts, storage, queue, pipeline.Catalog, cfg.DefaultDocumentType)
	processUC := usecase.NewProcessExtractionJobUseCase(documents, jobs, results, artifacts, storage, pipeline.ExtractUC)
	processUC.SetQueueLagObserver(workerMetrics.ObserveQueueLag)
	queryUC := usecase.NewQueryUseCase(documents, jobs, results, artifacts, pipeline.Catalog, pipeline.Renderer)

	executors := []*resilience.Executor{queueExecutor}
	if pipeline.executor != nil {
		executors = append(executors, pipeline.executor)
	}

	return &App{
		Config:  cfg,
		Queue:   queue,
		Catalog: pipeline.Catalog,
		Metrics: workerMetrics,

		SubmitUC:  submitUC,
		ProcessUC: processUC,
		QueryUC:   queryUC,
		ExtractUC: pipeline.ExtractUC,

		executors: executors,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// BreakerStates reports circuit breaker state per outbound operation.
func (a *App) BreakerStates() map[string]string {
	states := make(map[string]string)
	for _, executor := range a.executors {
		maps.Copy(states, executor.States())
	}
	return states
}

// NewPipeline builds configs, normalizer, rules and the optional LLM fallback. observer may be nil.
func NewPipeline(cfg config.Config, observer ports.ProcessingMetrics) (*Pipeline, error) {
	catalog, err := configstore.New(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load document configs: %w", err)
	}

	normalizer := extractor.NewDefaultNormalizer(ocr.Options{
		TesseractBin: cfg.OCRTesseractBin,
		PdftoppmBin:  cfg.OCRPdftoppmBin,
		DPI:          cfg.OCRDPI,
		Language:     cfg.OCRLanguage,
	}, cfg.OCRMinCharsPerPage)

	var executor *resilience.Executor
	var fallbackSvc ports.FieldFallback
	if cfg.LLMFallbackEnabled {
		executor = resilience.NewExecutor(resilience.FromSettings(cfg.LLMResilience))
		provider, err := newLLMProvider(cfg, executor)
		if err != nil {
			return nil, err
		}
		svc, err := fallback.New(provider, fallback.Gate{
			Enabled:   true,
			Threshold: cfg.LLMConfidenceThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("init llm fallback: %w", err)
		}
		fallbackSvc = svc
	}

	extractUC := usecase.NewExtractDocumentUseCase(
		normalizer,
		catalog,
		rules.NewNormalizer(),
		rules.NewValidator(),
		fallbackSvc,
		observer,
		usecase.ExtractOptions{
			Concurrency: cfg.WorkerConcurrency,
			Debug:       cfg.Debug,
		},
	)

	return &Pipeline{
		Catalog:   catalog,
		ExtractUC: extractUC,
		Renderer:  xlsx.Renderer{},
		executor:  executor,
	}, nil
}

func newLLMProvider(cfg config.Config, executor *resilience.Executor) (ports.LLMProvider, error) {
	var provider ports.LLMProvider
	switch cfg.LLMProvider {
	case "", "ollama":
		provider = ollama.New(cfg.OllamaURL, cfg.LLMModel)
	case "openai":
		provider = openai.New(cfg.CloudLLMAPIKey, cfg.CloudLLMModel, "")
	case "anthropic":
		provider = anthropic.New(cfg.CloudLLMAPIKey, cfg.CloudLLMModel, "")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}

	name := cfg.LLMProvider
	if name == "" {
		name = "ollama"
	}
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	return llm.NewResilient(name, provider, executor, timeout), nil
}
