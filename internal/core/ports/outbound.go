package ports

import (
	"context"
	"io"
	"time"

	"github.com/haithamq/visaflow/internal/core/domain"
)

// RequirementSource fetches the requirement set for a country/visa pair.
// Implementations own caching and fallback; FromCache provenance feeds the
// initialize transition.
type RequirementSource interface {
	Fetch(ctx context.Context, countryID, visaType string) (domain.RequirementSet, error)
}

// Embedder builds unit-normalized vectors for a text batch. A nil Embedder
// is a legal configuration: the semantic matching pass is skipped.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TextExtractor pulls plain text from a document file. Implementations
// swallow their own failures and return "".
type TextExtractor interface {
	Extract(ctx context.Context, filePath string) (string, error)
}

// ImageInspector reads the image metadata the photo rules check.
type ImageInspector interface {
	Inspect(ctx context.Context, filePath string) (domain.ImageInfo, error)
}

// CheckpointStore is the opaque per-request key-value store behind
// checkpoint/resume. Get returns domain.ErrCheckpointNotFound on a miss.
type CheckpointStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error
}

// ArtifactRenderer emits the finished package for a completed run.
type ArtifactRenderer interface {
	Render(ctx context.Context, state *domain.PipelineState) (domain.Artifacts, error)
}

// ObjectStorage stores rendered artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CommandQueue moves run commands from the API to pipeline workers.
type CommandQueue interface {
	PublishRunCommand(ctx context.Context, cmd domain.RunCommand) error
	SubscribeRunCommands(ctx context.Context, handler func(context.Context, domain.RunCommand) error) error
}
