package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

// Run is the session handle for one execution. Create it with Init and close
// it with Finish on every exit path.
type Run struct {
	backend  Backend
	info     model.Run
	config   map[string]any
	finished bool
}

// Init begins a new run of jobType.
func Init(ctx context.Context, b Backend, jobType, project string) (*Run, error) {
	info, err := b.CreateRun(ctx, jobType, project)
	if err != nil {
		return nil, fmt.Errorf("init run: %w", err)
	}
	slog.Info("run started", "run_id", info.ID, "job_type", jobType, "project", project)
	return &Run{backend: b, info: *info, config: map[string]any{}}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.info.ID }

// Config returns a copy of the recorded configuration.
func (r *Run) Config() map[string]any { return maps.Clone(r.config) }

// UpdateConfig merges values into the run configuration and records it.
func (r *Run) UpdateConfig(ctx context.Context, values map[string]any) error {
	if r.finished {
		return model.ErrRunFinished
	}
	next := maps.Clone(r.config)
	maps.Copy(next, values)
	if err := r.backend.UpdateRunConfig(ctx, r.info.ID, next); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	r.config = next
	return nil
}

// UseArtifact resolves ref and records that this run consumes it.
func (r *Run) UseArtifact(ctx context.Context, ref string) (*ArtifactHandle, error) {
	if r.finished {
		return nil, model.ErrRunFinished
	}
	parsed, err := model.ParseArtifactRef(ref)
	if err != nil {
		return nil, err
	}
	a, err := r.backend.UseArtifact(ctx, r.info.ID, parsed)
	if err != nil {
		return nil, withKind(model.ErrResolution, fmt.Errorf("use artifact %s: %w", parsed, err))
	}
	return &ArtifactHandle{Artifact: *a, backend: r.backend}, nil
}

// LogArtifact publishes p as a new artifact version produced by this run.
func (r *Run) LogArtifact(ctx context.Context, p *PendingArtifact) (*model.Artifact, error) {
	if r.finished {
		return nil, model.ErrRunFinished
	}
	if err := p.validate(); err != nil {
		return nil, withKind(model.ErrPublish, err)
	}
	a, err := r.backend.LogArtifact(ctx, r.info.ID, p)
	if err != nil {
		return nil, withKind(model.ErrPublish, fmt.Errorf("log artifact %s: %w", p.Name, err))
	}
	slog.Info("artifact logged", "run_id", r.info.ID, "artifact", a.Ref(), "digest", a.Digest)
	return a, nil
}

// Finish marks the run complete. A nil runErr finishes the run successfully;
// otherwise it is recorded as failed. Finishing twice is a no-op.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	if r.finished {
		return nil
	}
	r.finished = true

	if runErr == nil {
		if err := r.backend.FinishRun(ctx, r.info.ID, 0, nil); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		slog.Info("run finished", "run_id", r.info.ID)
		return nil
	}

	info := buildErrorInfo(runErr)
	if err := r.backend.FinishRun(ctx, r.info.ID, 1, &info); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	slog.Error("run failed", "run_id", r.info.ID, "error", runErr)
	return nil
}

// ArtifactHandle is a resolved input artifact.
type ArtifactHandle struct {
	Artifact model.Artifact
	backend  Backend
}

// File returns a local path holding the artifact payload.
func (h *ArtifactHandle) File(ctx context.Context) (string, error) {
	path, err := h.backend.FetchArtifactFile(ctx, &h.Artifact)
	if err != nil {
		return "", withKind(model.ErrResolution, fmt.Errorf("fetch %s: %w", h.Artifact.Ref(), err))
	}
	return path, nil
}

// stepNamer is implemented by errors that carry a pipeline step name.
type stepNamer interface {
	StepName() string
}

func buildErrorInfo(err error) string {
	step := "unknown"
	var sn stepNamer
	if errors.As(err, &sn) {
		step = sn.StepName()
	}
	info := model.ErrorInfo{
		FailedStep: step,
		Message:    err.Error(),
		FailedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	return info.ToJSON()
}

// withKind tags err with kind unless it already carries it.
func withKind(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
