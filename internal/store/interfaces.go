package store

import (
	"context"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

// RunReader provides read access to runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	GetRunWithArtifacts(ctx context.Context, id string) (*model.RunWithArtifacts, error)
}

// RunWriter provides write access to runs.
type RunWriter interface {
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRunConfig(ctx context.Context, id, config string) error
	FinishRun(ctx context.Context, id, state string, exitCode int, errorInfo *string) error
}

// ArtifactReader provides read access to artifact versions.
type ArtifactReader interface {
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	ResolveArtifact(ctx context.Context, ref model.ArtifactRef) (*model.Artifact, error)
	ListArtifactVersions(ctx context.Context, name string) ([]model.Artifact, error)
}

// ArtifactWriter registers artifact versions, aliases and lineage.
type ArtifactWriter interface {
	CreateArtifact(ctx context.Context, a *model.Artifact) error
	SetAlias(ctx context.Context, name, alias, artifactID string) error
	RecordUsage(ctx context.Context, runID, artifactID, role string) error
}

// Registry combines all run and artifact operations for the tracker.
type Registry interface {
	RunReader
	RunWriter
	ArtifactReader
	ArtifactWriter
}
