package engine

import (
	"context"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/table"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// Step is one named phase of a pipeline run.
type Step interface {
	Name() string
	Run(ctx context.Context, sc *StepContext) error
}

// RunContext is the part of a tracking run the steps use. *tracking.Run
// implements it.
type RunContext interface {
	UseArtifact(ctx context.Context, ref string) (*tracking.ArtifactHandle, error)
	LogArtifact(ctx context.Context, p *tracking.PendingArtifact) (*model.Artifact, error)
}

// Params are the caller-supplied arguments of one cleaning run.
type Params struct {
	InputArtifact     string
	OutputArtifact    string
	OutputType        string
	OutputDescription string
	MinPrice          float64
	MaxPrice          float64
}

// ConfigMap returns the params in the form recorded as run configuration.
func (p Params) ConfigMap() map[string]any {
	return map[string]any{
		"input_artifact":     p.InputArtifact,
		"output_artifact":    p.OutputArtifact,
		"output_type":        p.OutputType,
		"output_description": p.OutputDescription,
		"min_price":          p.MinPrice,
		"max_price":          p.MaxPrice,
	}
}

// StepContext carries state between steps. Each step reads what earlier steps
// filled in and sets its own outputs.
type StepContext struct {
	Params Params

	InputArtifact *model.Artifact // set by download
	InputPath     string          // set by download
	Input         *table.Table    // set by load
	Output        *table.Table    // set by filter, rewritten by normalize
	OutputPath    string          // set by save
	Published     *model.Artifact // set by publish
}
