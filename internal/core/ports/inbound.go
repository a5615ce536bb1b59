package ports

import (
	"context"

	"github.com/haithamq/visaflow/internal/core/domain"
)

// WorkflowRunner drives one pipeline run to a terminal stage.
type WorkflowRunner interface {
	Run(ctx context.Context, cmd domain.RunCommand) (*domain.PipelineState, error)
	Resume(ctx context.Context, requestID string) (*domain.PipelineState, error)
	GetState(ctx context.Context, requestID string) (*domain.PipelineState, error)
}

// WorkflowService is the caller-facing contract served over HTTP.
type WorkflowService interface {
	Start(ctx context.Context, cmd domain.RunCommand) error
	Status(ctx context.Context, requestID string) (domain.WorkflowStatus, error)
	Result(ctx context.Context, requestID string) (*domain.PipelineState, error)
	Retry(ctx context.Context, requestID string) error
}

// DocumentValidator validates one document outside a pipeline run.
type DocumentValidator interface {
	ValidateSingle(ctx context.Context, doc domain.Document) (domain.Document, error)
}
