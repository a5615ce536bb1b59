package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/match"
	"github.com/haithamq/visaflow/internal/core/validate"
)

type sourceFake struct {
	set   domain.RequirementSet
	err   error
	calls int
}

func (f *sourceFake) Fetch(context.Context, string, string) (domain.RequirementSet, error) {
	f.calls++
	if f.err != nil {
		return domain.RequirementSet{}, f.err
	}
	return f.set, nil
}

type matcherFake struct {
	out match.Outcome
}

func (f *matcherFake) Match(context.Context, []domain.Requirement, []domain.Document, []domain.Traveler) match.Outcome {
	return f.out
}

type validatorFake struct {
	out validate.Outcome
}

func (f *validatorFake) Validate(_ context.Context, documents []domain.Document, _ []domain.Requirement) validate.Outcome {
	out := f.out
	if out.Documents == nil {
		out.Documents = documents
	}
	return out
}

type rendererFake struct {
	artifacts domain.Artifacts
	err       error
}

func (f *rendererFake) Render(context.Context, *domain.PipelineState) (domain.Artifacts, error) {
	if f.err != nil {
		return domain.Artifacts{}, f.err
	}
	return f.artifacts, nil
}

type storeFake struct {
	entries map[string][]byte
	getErr  error
	setErr  error
	sets    int
}

func newStoreFake() *storeFake {
	return &storeFake{entries: make(map[string][]byte)}
}

func (f *storeFake) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	blob, ok := f.entries[key]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	return blob, nil
}

func (f *storeFake) Set(_ context.Context, key string, blob []byte, _ time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	f.entries[key] = stored
	return nil
}

func mandatorySet() domain.RequirementSet {
	return domain.RequirementSet{
		Requirements: []domain.Requirement{
			{ID: "r1", DocumentType: "passport", IsMandatory: true},
			{ID: "r2", DocumentType: "photo", IsMandatory: true},
			{ID: "r3", DocumentType: "bank_statement", IsMandatory: true},
		},
		SourceURL: "https://embassy.example/visa",
	}
}

func fullCoverage() match.Outcome {
	return match.Outcome{
		Matches: []domain.MatchResult{
			{RequirementID: "r1", DocumentID: "d1", Score: 1.0, Status: domain.MatchMatched},
			{RequirementID: "r2", DocumentID: "d2", Score: 1.0, Status: domain.MatchMatched},
			{RequirementID: "r3", DocumentID: "d3", Score: 0.9, Status: domain.MatchMatched},
		},
		Missing:       []string{},
		CoverageScore: 1.0,
	}
}

func newTestMachine(source *sourceFake, matcher *matcherFake, validator *validatorFake, renderer *rendererFake, store *storeFake) *Machine {
	return NewMachine(source, matcher, validator, renderer, store, Options{
		Service:    "test",
		MaxRetries: 3,
	})
}

func runCommand() domain.RunCommand {
	return domain.RunCommand{
		Action:    domain.ActionStart,
		RequestID: "req-1",
		CountryID: "fr",
		VisaType:  "tourist",
		Documents: []domain.Document{
			{ID: "d1", Type: "passport", FilePath: "/tmp/p.pdf"},
			{ID: "d2", Type: "photo", FilePath: "/tmp/f.jpg"},
			{ID: "d3", Type: "bank_statement", FilePath: "/tmp/b.pdf"},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	store := newStoreFake()
	renderer := &rendererFake{artifacts: domain.Artifacts{
		ApplicationPath: "req-1_application.xlsx",
		ChecklistPath:   "req-1_checklist.xlsx",
	}}
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		renderer,
		store,
	)

	state, err := machine.Run(context.Background(), runCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed", state.CurrentStage)
	}
	if state.CoverageScore != 1.0 {
		t.Fatalf("coverage = %v, want 1.0", state.CoverageScore)
	}
	if !state.ValidationComplete {
		t.Fatal("validation must be marked complete")
	}
	if state.Artifacts.ApplicationPath == "" || state.Artifacts.ChecklistPath == "" {
		t.Fatalf("artifacts missing: %+v", state.Artifacts)
	}

	// every executed stage plus the initial and terminal writes
	if store.sets < 7 {
		t.Fatalf("checkpoint writes = %d, want one per stage", store.sets)
	}

	var persisted domain.PipelineState
	if err := json.Unmarshal(store.entries["workflow:req-1"], &persisted); err != nil {
		t.Fatalf("decode persisted state: %v", err)
	}
	if persisted.CurrentStage != domain.StageCompleted {
		t.Fatalf("persisted stage = %s, want completed", persisted.CurrentStage)
	}
}

func TestRunRequiresRequestID(t *testing.T) {
	machine := newTestMachine(&sourceFake{}, &matcherFake{}, &validatorFake{}, &rendererFake{}, newStoreFake())
	cmd := runCommand()
	cmd.RequestID = ""
	if _, err := machine.Run(context.Background(), cmd); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("error = %v, want invalid input", err)
	}
}

func TestRunInitialPersistFailure(t *testing.T) {
	store := newStoreFake()
	store.setErr = errors.New("connection refused")
	machine := newTestMachine(&sourceFake{}, &matcherFake{}, &validatorFake{}, &rendererFake{}, store)

	_, err := machine.Run(context.Background(), runCommand())
	if !domain.IsKind(err, domain.ErrStorage) {
		t.Fatalf("error = %v, want storage", err)
	}
}

func TestRunIncompleteWhenMostMandatoryMissing(t *testing.T) {
	store := newStoreFake()
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: match.Outcome{
			Matches: []domain.MatchResult{
				{RequirementID: "r1", DocumentID: "d1", Score: 1.0, Status: domain.MatchMatched},
				{RequirementID: "r2", Status: domain.MatchMissing},
				{RequirementID: "r3", Status: domain.MatchMissing},
			},
			Missing:       []string{"r2", "r3"},
			CoverageScore: 1.0 / 3.0,
		}},
		&validatorFake{},
		&rendererFake{},
		store,
	)

	state, err := machine.Run(context.Background(), runCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStage != domain.StageIncomplete {
		t.Fatalf("stage = %s, want incomplete", state.CurrentStage)
	}
	if state.ErrorMessage != "" {
		t.Fatalf("incomplete is a normal return, got error %q", state.ErrorMessage)
	}
	if state.ValidationComplete {
		t.Fatal("validation must not run for an incomplete set")
	}
}

func TestRunInvalidOnValidationErrors(t *testing.T) {
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{
			Errors:   []string{"[photo] Could not validate photo"},
			AllValid: false,
		}},
		&rendererFake{},
		newStoreFake(),
	)

	state, err := machine.Run(context.Background(), runCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStage != domain.StageInvalid {
		t.Fatalf("stage = %s, want invalid", state.CurrentStage)
	}
	if len(state.ValidationErrors) != 1 {
		t.Fatalf("validation errors = %v", state.ValidationErrors)
	}
}

func TestRunScrapeFailureRoutesToError(t *testing.T) {
	source := &sourceFake{err: errors.New("embassy unreachable")}
	machine := newTestMachine(source, &matcherFake{}, &validatorFake{}, &rendererFake{}, newStoreFake())

	state, err := machine.Run(context.Background(), runCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStage != domain.StageError {
		t.Fatalf("stage = %s, want error", state.CurrentStage)
	}
	if state.FailedStage != domain.StageScrape {
		t.Fatalf("failed stage = %s, want scrape", state.FailedStage)
	}
	if state.ErrorMessage == "" {
		t.Fatal("error message must be captured")
	}
	if state.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", state.RetryCount)
	}
}

func TestRunGenerateFailureRoutesToError(t *testing.T) {
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		&rendererFake{err: errors.New("disk full")},
		newStoreFake(),
	)

	state, err := machine.Run(context.Background(), runCommand())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if state.CurrentStage != domain.StageError {
		t.Fatalf("stage = %s, want error", state.CurrentStage)
	}
	if state.FailedStage != domain.StageGenerate {
		t.Fatalf("failed stage = %s, want generate", state.FailedStage)
	}
}

func TestGetState(t *testing.T) {
	store := newStoreFake()
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		&rendererFake{},
		store,
	)
	if _, err := machine.Run(context.Background(), runCommand()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	state, err := machine.GetState(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed", state.CurrentStage)
	}

	if _, err := machine.GetState(context.Background(), "unknown"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("error = %v, want run not found", err)
	}
}

func TestPrepareRetryClearsError(t *testing.T) {
	store := newStoreFake()
	source := &sourceFake{err: errors.New("embassy unreachable")}
	machine := newTestMachine(source, &matcherFake{}, &validatorFake{}, &rendererFake{}, store)

	if _, err := machine.Run(context.Background(), runCommand()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if err := machine.PrepareRetry(context.Background(), "req-1"); err != nil {
		t.Fatalf("PrepareRetry() error = %v", err)
	}
	state, err := machine.GetState(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", state.ErrorMessage)
	}
	if state.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", state.RetryCount)
	}
}

func TestPrepareRetryExhaustedBudget(t *testing.T) {
	store := newStoreFake()
	machine := newTestMachine(&sourceFake{}, &matcherFake{}, &validatorFake{}, &rendererFake{}, store)

	state := domain.NewPipelineState("req-1", "fr", "", "tourist", nil, nil, 3)
	state.CurrentStage = domain.StageError
	state.RetryCount = 3
	blob, _ := json.Marshal(state)
	_ = store.Set(context.Background(), "workflow:req-1", blob, 0)

	if err := machine.PrepareRetry(context.Background(), "req-1"); !domain.IsKind(err, domain.ErrRetryExhausted) {
		t.Fatalf("error = %v, want retry exhausted", err)
	}
}

func TestResumeAfterClearedErrorRerunsFailedStage(t *testing.T) {
	store := newStoreFake()
	source := &sourceFake{err: errors.New("embassy unreachable")}
	machine := newTestMachine(
		source,
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		&rendererFake{},
		store,
	)

	if _, err := machine.Run(context.Background(), runCommand()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := machine.PrepareRetry(context.Background(), "req-1"); err != nil {
		t.Fatalf("PrepareRetry() error = %v", err)
	}

	// the transient failure is gone on the retry attempt
	source.err = nil
	source.set = mandatorySet()

	state, err := machine.Resume(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if state.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed", state.CurrentStage)
	}
	if state.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", state.RetryCount)
	}
}

func TestResumeWithStaleErrorRoutesThroughHandler(t *testing.T) {
	store := newStoreFake()
	source := &sourceFake{err: errors.New("embassy unreachable")}
	machine := newTestMachine(source, &matcherFake{}, &validatorFake{}, &rendererFake{}, store)

	if _, err := machine.Run(context.Background(), runCommand()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Resume without PrepareRetry: the captured error is still set, so the
	// run lands back in the error stage with the budget advanced.
	state, err := machine.Resume(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if state.CurrentStage != domain.StageError {
		t.Fatalf("stage = %s, want error", state.CurrentStage)
	}
	if state.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", state.RetryCount)
	}
}

func TestResumeTerminalStateIsNoop(t *testing.T) {
	store := newStoreFake()
	machine := newTestMachine(
		&sourceFake{set: mandatorySet()},
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		&rendererFake{},
		store,
	)
	if _, err := machine.Run(context.Background(), runCommand()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	writesBefore := store.sets

	state, err := machine.Resume(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if state.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed", state.CurrentStage)
	}
	if store.sets != writesBefore {
		t.Fatal("resuming a finished run must not write checkpoints")
	}
}

func TestResumeSkipsScrapeWhenRequirementsCached(t *testing.T) {
	store := newStoreFake()
	source := &sourceFake{}
	machine := newTestMachine(
		source,
		&matcherFake{out: fullCoverage()},
		&validatorFake{out: validate.Outcome{AllValid: true}},
		&rendererFake{},
		store,
	)

	set := mandatorySet()
	state := domain.NewPipelineState("req-1", "fr", "", "tourist", nil, runCommand().Documents, 3)
	state.Requirements = set.Requirements
	state.RequirementsCached = true
	blob, _ := json.Marshal(state)
	_ = store.Set(context.Background(), "workflow:req-1", blob, 0)

	resumed, err := machine.Resume(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.CurrentStage != domain.StageCompleted {
		t.Fatalf("stage = %s, want completed", resumed.CurrentStage)
	}
	if source.calls != 0 {
		t.Fatalf("scrape ran %d times, want 0 with cached requirements", source.calls)
	}
}

func TestResumeUnknownRun(t *testing.T) {
	machine := newTestMachine(&sourceFake{}, &matcherFake{}, &validatorFake{}, &rendererFake{}, newStoreFake())
	if _, err := machine.Resume(context.Background(), "ghost"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("error = %v, want run not found", err)
	}
}
