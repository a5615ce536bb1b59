package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haithamq/visaflow/internal/config"
	"github.com/haithamq/visaflow/internal/core/match"
	"github.com/haithamq/visaflow/internal/core/pipeline"
	"github.com/haithamq/visaflow/internal/core/ports"
	"github.com/haithamq/visaflow/internal/core/usecase"
	"github.com/haithamq/visaflow/internal/core/validate"
	"github.com/haithamq/visaflow/internal/infrastructure/checkpoint/postgres"
	"github.com/haithamq/visaflow/internal/infrastructure/embedding/ollama"
	"github.com/haithamq/visaflow/internal/infrastructure/extractor/ocr"
	"github.com/haithamq/visaflow/internal/infrastructure/imaging"
	"github.com/haithamq/visaflow/internal/infrastructure/queue/nats"
	"github.com/haithamq/visaflow/internal/infrastructure/render/excel"
	"github.com/haithamq/visaflow/internal/infrastructure/requirements/embassy"
	"github.com/haithamq/visaflow/internal/infrastructure/resilience"
	"github.com/haithamq/visaflow/internal/infrastructure/storage/localfs"
	"github.com/haithamq/visaflow/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.CommandQueue
	Machine   *pipeline.Machine
	Workflows ports.WorkflowService
	Validator ports.DocumentValidator

	PipelineMetrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.ArtifactsPath)
	if err != nil {
		return nil, fmt.Errorf("init artifact storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init command queue: %w", err)
	}

	var embedder ports.Embedder
	if cfg.EmbedderEnabled {
		embedder = ollama.NewEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel,
			time.Duration(cfg.EmbedTimeoutSec)*time.Second)
	}

	extractor := ocr.New(strings.Split(cfg.OCRLanguages, ","), log)
	inspector := imaging.New()
	renderer := excel.New(storage)

	source, err := embassy.New(store, embassy.Options{
		RequestTimeout:     time.Duration(cfg.FetchTimeoutSec) * time.Second,
		CacheTTL:           time.Duration(cfg.RequirementTTLHrs) * time.Hour,
		RatePerMinute:      cfg.FetchRatePerMinute,
		ResilienceExecutor: executor,
		Logger:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("init requirement source: %w", err)
	}

	matcher := match.New(embedder, log)
	validator := validate.New(extractor, inspector, log)

	pipelineMetrics := metrics.NewPipelineMetrics(service)

	machine := pipeline.NewMachine(source, matcher, validator, renderer, store, pipeline.Options{
		Service:       service,
		StageTimeout:  time.Duration(cfg.StageTimeoutSec) * time.Second,
		CheckpointTTL: time.Duration(cfg.CheckpointTTLHrs) * time.Hour,
		MaxRetries:    cfg.MaxRetries,
		Metrics:       pipelineMetrics,
		Logger:        log,
	})

	workflows := usecase.NewWorkflowService(machine, queue, log)

	return &App{
		Config: cfg,

		Queue:     queue,
		Machine:   machine,
		Workflows: workflows,
		Validator: validator,

		PipelineMetrics: pipelineMetrics,

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
