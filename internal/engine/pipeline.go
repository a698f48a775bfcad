package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// The tracer is resolved lazily so callers can install a provider first.
var tracer trace.Tracer = otel.Tracer("github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/engine")

// Pipeline runs its steps in order and stops at the first failure.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline from the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Run executes every step against sc.
// On failure it returns a *StepError naming the step that failed.
func (p *Pipeline) Run(ctx context.Context, sc *StepContext) error {
	for _, step := range p.steps {
		if err := runStep(ctx, step, sc); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
	}
	return nil
}

func runStep(ctx context.Context, step Step, sc *StepContext) error {
	ctx, span := tracer.Start(ctx, JobType+"."+step.Name())
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.step", step.Name()))

	if err := step.Run(ctx, sc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the name of the failed step.
func (e *StepError) StepName() string {
	return e.Step
}
