package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/match"
	"github.com/haithamq/visaflow/internal/core/ports"
	"github.com/haithamq/visaflow/internal/core/validate"
	"github.com/haithamq/visaflow/internal/observability/metrics"
)

// Matcher is the match stage body dependency.
type Matcher interface {
	Match(ctx context.Context, requirements []domain.Requirement, documents []domain.Document, travelers []domain.Traveler) match.Outcome
}

// Validator is the validate stage body dependency.
type Validator interface {
	Validate(ctx context.Context, documents []domain.Document, requirements []domain.Requirement) validate.Outcome
}

type Options struct {
	Service       string
	StageTimeout  time.Duration
	CheckpointTTL time.Duration
	MaxRetries    int
	Metrics       *metrics.PipelineMetrics
	Logger        *slog.Logger
}

// Machine sequences the pipeline stages over a static transition table,
// checkpointing state after every stage so a crash loses at most one
// stage's work. Stage bodies capture expected failures into the state's
// ErrorMessage and return normally; the transition predicates route them
// to the error handler.
type Machine struct {
	source    ports.RequirementSource
	matcher   Matcher
	validator Validator
	renderer  ports.ArtifactRenderer
	store     ports.CheckpointStore

	log     *slog.Logger
	metrics *metrics.PipelineMetrics

	service       string
	stageTimeout  time.Duration
	checkpointTTL time.Duration
	maxRetries    int
}

func NewMachine(
	source ports.RequirementSource,
	matcher Matcher,
	validator Validator,
	renderer ports.ArtifactRenderer,
	store ports.CheckpointStore,
	opts Options,
) *Machine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "pipeline"
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Machine{
		source:        source,
		matcher:       matcher,
		validator:     validator,
		renderer:      renderer,
		store:         store,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		service:       opts.Service,
		stageTimeout:  opts.StageTimeout,
		checkpointTTL: opts.CheckpointTTL,
		maxRetries:    opts.MaxRetries,
	}
}

func stateKey(requestID string) string {
	return "workflow:" + requestID
}

// Run builds the initial state, persists it, and drives stages until a
// terminal stage. Stage-level failures are absorbed into the state; only a
// checkpoint store failure surfaces as an error.
func (m *Machine) Run(ctx context.Context, cmd domain.RunCommand) (*domain.PipelineState, error) {
	if cmd.RequestID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start workflow", fmt.Errorf("request_id is required"))
	}

	state := domain.NewPipelineState(
		cmd.RequestID,
		cmd.CountryID,
		cmd.CountryNameLocal,
		cmd.VisaType,
		cmd.Travelers,
		cmd.Documents,
		m.maxRetries,
	)

	if err := m.checkpoint(ctx, state); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "persist initial state", err)
	}

	m.log.Info("workflow started", "request_id", state.RequestID, "country_id", state.CountryID, "visa_type", state.VisaType)
	return m.drive(ctx, state, domain.StageInitialize)
}

// Resume re-enters the transition table at the persisted stage. A state
// still carrying ErrorMessage from a failed attempt routes straight back
// through the error handler; callers clear it first (see PrepareRetry).
func (m *Machine) Resume(ctx context.Context, requestID string) (*domain.PipelineState, error) {
	state, err := m.loadState(ctx, requestID)
	if err != nil {
		return nil, err
	}

	m.log.Info("workflow resumed", "request_id", requestID, "stage", state.CurrentStage, "retry_count", state.RetryCount)

	switch {
	case state.CurrentStage == domain.StageError:
		if state.ErrorMessage != "" {
			return m.drive(ctx, state, domain.StageErrorHandler)
		}
		entry := state.FailedStage
		if entry == "" {
			entry = domain.StageInitialize
		}
		return m.drive(ctx, state, entry)
	case state.CurrentStage.Terminal():
		// completed/incomplete/invalid: nothing left to execute
		return state, nil
	default:
		// The persisted stage already ran; continue from its successor.
		next := m.nextStage(state.CurrentStage, state)
		if next.Terminal() {
			return m.finishTerminal(ctx, state, next)
		}
		if next == domain.StageErrorHandler {
			state.FailedStage = state.CurrentStage
		}
		return m.drive(ctx, state, next)
	}
}

// GetState is a read-only snapshot; no stage execution.
func (m *Machine) GetState(ctx context.Context, requestID string) (*domain.PipelineState, error) {
	return m.loadState(ctx, requestID)
}

// PrepareRetry clears the captured error so the next Resume re-runs the
// failed stage instead of re-routing to the error handler. Refused once
// the retry budget is spent.
func (m *Machine) PrepareRetry(ctx context.Context, requestID string) error {
	state, err := m.loadState(ctx, requestID)
	if err != nil {
		return err
	}
	if state.RetryCount >= state.MaxRetries {
		return domain.WrapError(domain.ErrRetryExhausted, "retry workflow",
			fmt.Errorf("retry_count=%d max_retries=%d", state.RetryCount, state.MaxRetries))
	}
	state.ErrorMessage = ""
	state.UpdatedAt = time.Now().UTC()
	if err := m.checkpoint(ctx, state); err != nil {
		return domain.WrapError(domain.ErrStorage, "persist retry state", err)
	}
	if m.metrics != nil {
		m.metrics.ObserveRetry(m.service)
	}
	return nil
}

func (m *Machine) drive(ctx context.Context, state *domain.PipelineState, stage domain.Stage) (*domain.PipelineState, error) {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.StartRun()
	}
	defer func() {
		if m.metrics != nil {
			m.metrics.FinishRun(m.service, string(state.CurrentStage), time.Since(start))
		}
	}()

	for {
		m.runStage(ctx, state, stage)
		state.CurrentStage = stage
		state.UpdatedAt = time.Now().UTC()
		if err := m.checkpoint(ctx, state); err != nil {
			return state, domain.WrapError(domain.ErrStorage, "persist checkpoint", err)
		}

		next := m.nextStage(stage, state)
		if next.Terminal() {
			return m.finishTerminal(ctx, state, next)
		}
		if next == domain.StageErrorHandler && stage != domain.StageErrorHandler {
			state.FailedStage = stage
		}
		stage = next
	}
}

func (m *Machine) finishTerminal(ctx context.Context, state *domain.PipelineState, stage domain.Stage) (*domain.PipelineState, error) {
	state.CurrentStage = stage
	state.UpdatedAt = time.Now().UTC()
	if err := m.checkpoint(ctx, state); err != nil {
		return state, domain.WrapError(domain.ErrStorage, "persist terminal state", err)
	}
	m.log.Info("workflow finished", "request_id", state.RequestID, "stage", stage, "coverage", state.CoverageScore)
	return state, nil
}

func (m *Machine) runStage(ctx context.Context, state *domain.PipelineState, stage domain.Stage) {
	start := time.Now()
	stageCtx, cancel := context.WithTimeout(ctx, m.stageTimeout)
	defer cancel()

	switch stage {
	case domain.StageInitialize:
		m.initializeStage(state)
	case domain.StageScrape:
		m.scrapeStage(stageCtx, state)
	case domain.StageMatch:
		m.matchStage(stageCtx, state)
	case domain.StageValidate:
		m.validateStage(stageCtx, state)
	case domain.StageGenerate:
		m.generateStage(stageCtx, state)
	case domain.StageErrorHandler:
		m.errorHandlerStage(state)
	}

	if m.metrics != nil {
		m.metrics.ObserveStage(m.service, string(stage), time.Since(start))
	}
}

// nextStage is the transition table: evaluated after the stage body ran,
// using the just-produced state.
func (m *Machine) nextStage(stage domain.Stage, state *domain.PipelineState) domain.Stage {
	switch stage {
	case domain.StageInitialize:
		if state.ErrorMessage != "" {
			return domain.StageErrorHandler
		}
		if len(state.Requirements) > 0 && state.RequirementsCached {
			return domain.StageMatch
		}
		return domain.StageScrape
	case domain.StageScrape:
		if state.ErrorMessage != "" {
			return domain.StageErrorHandler
		}
		return domain.StageMatch
	case domain.StageMatch:
		if state.ErrorMessage != "" {
			return domain.StageErrorHandler
		}
		if state.MissingMandatoryRatio() > 0.5 {
			// Normal return; the caller must supply more documents.
			return domain.StageIncomplete
		}
		return domain.StageValidate
	case domain.StageValidate:
		if state.ErrorMessage != "" {
			return domain.StageErrorHandler
		}
		if len(state.ValidationErrors) > 0 {
			return domain.StageInvalid
		}
		return domain.StageGenerate
	case domain.StageGenerate:
		if state.ErrorMessage != "" {
			return domain.StageErrorHandler
		}
		return domain.StageCompleted
	case domain.StageErrorHandler:
		return domain.StageError
	default:
		return domain.StageError
	}
}

func (m *Machine) initializeStage(state *domain.PipelineState) {
	m.log.Info("initializing workflow", "request_id", state.RequestID,
		"travelers", len(state.Travelers), "documents", len(state.Documents))
}

func (m *Machine) scrapeStage(ctx context.Context, state *domain.PipelineState) {
	set, err := m.source.Fetch(ctx, state.CountryID, state.VisaType)
	if err != nil {
		m.log.Error("requirement fetch failed", "request_id", state.RequestID, "error", err)
		state.ErrorMessage = fmt.Sprintf("fetch requirements: %v", err)
		return
	}
	state.Requirements = set.Requirements
	state.RequirementsSource = set.SourceURL
	state.RequirementsCached = set.FromCache
	m.log.Info("requirements ready", "request_id", state.RequestID,
		"count", len(set.Requirements), "source", set.SourceURL, "cached", set.FromCache)
}

func (m *Machine) matchStage(ctx context.Context, state *domain.PipelineState) {
	out := m.matcher.Match(ctx, state.Requirements, state.Documents, state.Travelers)
	state.MatchResults = out.Matches
	state.MissingRequirements = out.Missing
	state.CoverageScore = out.CoverageScore
	m.log.Info("documents matched", "request_id", state.RequestID,
		"missing", len(out.Missing), "coverage", out.CoverageScore)
}

func (m *Machine) validateStage(ctx context.Context, state *domain.PipelineState) {
	out := m.validator.Validate(ctx, state.Documents, state.Requirements)
	state.Documents = out.Documents
	state.ValidationComplete = true
	state.ValidationErrors = out.Errors
	state.ValidationWarnings = out.Warnings
	m.log.Info("documents validated", "request_id", state.RequestID,
		"errors", len(out.Errors), "warnings", len(out.Warnings))
}

func (m *Machine) generateStage(ctx context.Context, state *domain.PipelineState) {
	artifacts, err := m.renderer.Render(ctx, state)
	if err != nil {
		m.log.Error("artifact generation failed", "request_id", state.RequestID, "error", err)
		state.ErrorMessage = fmt.Sprintf("generate artifacts: %v", err)
		return
	}
	state.Artifacts = artifacts
	m.log.Info("artifacts generated", "request_id", state.RequestID,
		"application", artifacts.ApplicationPath, "checklist", artifacts.ChecklistPath)
}

func (m *Machine) errorHandlerStage(state *domain.PipelineState) {
	m.log.Error("workflow error", "request_id", state.RequestID,
		"failed_stage", state.FailedStage, "error", state.ErrorMessage, "retry_count", state.RetryCount)
	if state.RetryCount < state.MaxRetries {
		state.RetryCount++
	}
}

func (m *Machine) checkpoint(ctx context.Context, state *domain.PipelineState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := m.store.Set(ctx, stateKey(state.RequestID), blob, m.checkpointTTL); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}

func (m *Machine) loadState(ctx context.Context, requestID string) (*domain.PipelineState, error) {
	blob, err := m.store.Get(ctx, stateKey(requestID))
	if err != nil {
		if domain.IsKind(err, domain.ErrCheckpointNotFound) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "load workflow state", err)
		}
		return nil, domain.WrapError(domain.ErrStorage, "load workflow state", err)
	}
	var state domain.PipelineState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "decode workflow state", err)
	}
	return &state, nil
}
