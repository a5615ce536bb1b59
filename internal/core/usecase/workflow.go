package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
)

// workflowState is the slice of the state machine the service needs.
type workflowState interface {
	GetState(ctx context.Context, requestID string) (*domain.PipelineState, error)
	PrepareRetry(ctx context.Context, requestID string) error
}

// WorkflowService is the caller-facing surface: start and retry hand work
// to a pipeline worker over the command queue, status and result read the
// persisted state without executing any stage.
type WorkflowService struct {
	machine workflowState
	queue   ports.CommandQueue
	log     *slog.Logger
}

func NewWorkflowService(machine workflowState, queue ports.CommandQueue, log *slog.Logger) *WorkflowService {
	if log == nil {
		log = slog.Default()
	}
	return &WorkflowService{machine: machine, queue: queue, log: log}
}

func (s *WorkflowService) Start(ctx context.Context, cmd domain.RunCommand) error {
	if cmd.RequestID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "start workflow", fmt.Errorf("request_id is required"))
	}
	if cmd.CountryID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "start workflow", fmt.Errorf("country_id is required"))
	}
	if cmd.VisaType == "" {
		return domain.WrapError(domain.ErrInvalidInput, "start workflow", fmt.Errorf("visa_type is required"))
	}

	cmd.Action = domain.ActionStart
	if err := s.queue.PublishRunCommand(ctx, cmd); err != nil {
		return fmt.Errorf("publish start command: %w", err)
	}
	s.log.Info("workflow start accepted", "request_id", cmd.RequestID, "country_id", cmd.CountryID)
	return nil
}

func (s *WorkflowService) Status(ctx context.Context, requestID string) (domain.WorkflowStatus, error) {
	state, err := s.machine.GetState(ctx, requestID)
	if err != nil {
		return domain.WorkflowStatus{}, err
	}
	return state.StatusView(), nil
}

// Result returns the full state, only once the run reached a terminal stage.
func (s *WorkflowService) Result(ctx context.Context, requestID string) (*domain.PipelineState, error) {
	state, err := s.machine.GetState(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !state.CurrentStage.Terminal() {
		return nil, domain.WrapError(domain.ErrRunNotFinished, "read workflow result",
			fmt.Errorf("current stage %s", state.CurrentStage))
	}
	return state, nil
}

// Retry checks the retry budget and clears the captured error before any
// resume command is published; an exhausted budget is rejected here, not
// inside the machine.
func (s *WorkflowService) Retry(ctx context.Context, requestID string) error {
	if err := s.machine.PrepareRetry(ctx, requestID); err != nil {
		return err
	}
	cmd := domain.RunCommand{Action: domain.ActionResume, RequestID: requestID}
	if err := s.queue.PublishRunCommand(ctx, cmd); err != nil {
		return fmt.Errorf("publish resume command: %w", err)
	}
	s.log.Info("workflow retry accepted", "request_id", requestID)
	return nil
}
