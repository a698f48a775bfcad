package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// JobType is recorded on every cleaning run.
const JobType = "basic_cleaning"

// Fixed column semantics of the cleaning step.
const (
	PriceColumn      = "price"
	LastReviewColumn = "last_review"
)

// Result summarizes a successful cleaning run.
type Result struct {
	RunID      string
	Input      model.Artifact
	Output     model.Artifact
	OutputPath string
	InputRows  int
	OutputRows int
}

// NewCleaningPipeline wires the cleaning steps against run, writing the
// cleaned file into workDir.
func NewCleaningPipeline(run RunContext, workDir string) *Pipeline {
	return NewPipeline(
		&DownloadStep{Session: run},
		&LoadStep{},
		&FilterStep{Column: PriceColumn},
		&NormalizeDatesStep{Column: LastReviewColumn},
		&SaveStep{Dir: workDir},
		&PublishStep{Session: run},
	)
}

// Clean performs one tracked cleaning run: it begins a run on backend,
// records params as its configuration, runs the cleaning pipeline and
// finishes the run. The run is finished on every return path.
func Clean(ctx context.Context, backend tracking.Backend, project, workDir string, params Params) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, JobType+".run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	run, err := tracking.Init(ctx, backend, JobType, project)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("run.id", run.ID()))
	defer func() {
		// Finish even when ctx was cancelled so the run never stays open.
		if ferr := run.Finish(context.WithoutCancel(ctx), err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if err := run.UpdateConfig(ctx, params.ConfigMap()); err != nil {
		return nil, err
	}

	sc := &StepContext{Params: params}
	if err := NewCleaningPipeline(run, workDir).Run(ctx, sc); err != nil {
		return nil, err
	}

	return &Result{
		RunID:      run.ID(),
		Input:      *sc.InputArtifact,
		Output:     *sc.Published,
		OutputPath: sc.OutputPath,
		InputRows:  sc.Input.Len(),
		OutputRows: sc.Output.Len(),
	}, nil
}
