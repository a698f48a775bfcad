package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/table"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

var errMissingInput = errors.New("missing input from an earlier step")

// ---------------------------------------------------------------------------
// Step 1: Download
// ---------------------------------------------------------------------------

// DownloadStep resolves the input artifact to a local file.
type DownloadStep struct {
	Session RunContext
}

func (s *DownloadStep) Name() string { return "download" }

func (s *DownloadStep) Run(ctx context.Context, sc *StepContext) error {
	slog.Info("downloading artifact", "artifact", sc.Params.InputArtifact)
	handle, err := s.Session.UseArtifact(ctx, sc.Params.InputArtifact)
	if err != nil {
		return err
	}
	path, err := handle.File(ctx)
	if err != nil {
		return err
	}
	sc.InputArtifact = &handle.Artifact
	sc.InputPath = path
	return nil
}

// ---------------------------------------------------------------------------
// Step 2: Load
// ---------------------------------------------------------------------------

// LoadStep parses the downloaded file as CSV.
type LoadStep struct{}

func (s *LoadStep) Name() string { return "load" }

func (s *LoadStep) Run(_ context.Context, sc *StepContext) error {
	if sc.InputPath == "" {
		return errMissingInput
	}
	t, err := table.ReadFile(sc.InputPath)
	if err != nil {
		return err
	}
	sc.Input = t
	slog.Debug("dataset loaded", "path", sc.InputPath, "rows", t.Len(), "columns", len(t.Header))
	return nil
}

// ---------------------------------------------------------------------------
// Step 3: Filter
// ---------------------------------------------------------------------------

// FilterStep keeps the rows whose Column lies in [MinPrice, MaxPrice].
// Bound ordering is not checked; inverted bounds keep nothing.
type FilterStep struct {
	Column string
}

func (s *FilterStep) Name() string { return "filter" }

func (s *FilterStep) Run(_ context.Context, sc *StepContext) error {
	if sc.Input == nil {
		return errMissingInput
	}
	slog.Info("dropping outliers", "column", s.Column, "min_price", sc.Params.MinPrice, "max_price", sc.Params.MaxPrice)

	prices, err := sc.Input.Floats(s.Column)
	if err != nil {
		return err
	}
	out, err := sc.Input.Select(table.Between(prices, sc.Params.MinPrice, sc.Params.MaxPrice))
	if err != nil {
		return err
	}
	sc.Output = out
	slog.Info("outliers dropped", "rows_in", sc.Input.Len(), "rows_out", out.Len())
	return nil
}

// ---------------------------------------------------------------------------
// Step 4: Normalize
// ---------------------------------------------------------------------------

// NormalizeDatesStep replaces Column with parsed timestamps.
type NormalizeDatesStep struct {
	Column string
}

func (s *NormalizeDatesStep) Name() string { return "normalize" }

func (s *NormalizeDatesStep) Run(_ context.Context, sc *StepContext) error {
	if sc.Output == nil {
		return errMissingInput
	}
	cells, err := sc.Output.Values(s.Column)
	if err != nil {
		return err
	}
	return sc.Output.SetColumn(s.Column, table.FormatDatetimes(table.ParseDatetimes(cells)))
}

// ---------------------------------------------------------------------------
// Step 5: Save
// ---------------------------------------------------------------------------

// SaveStep writes the cleaned table to Dir/<output artifact name>.
type SaveStep struct {
	Dir string
}

func (s *SaveStep) Name() string { return "save" }

func (s *SaveStep) Run(_ context.Context, sc *StepContext) error {
	if sc.Output == nil {
		return errMissingInput
	}
	path := filepath.Join(s.Dir, filepath.Base(sc.Params.OutputArtifact))
	slog.Info("saving cleaned data", "path", path, "rows", sc.Output.Len())
	if err := sc.Output.WriteFile(path); err != nil {
		return err
	}
	sc.OutputPath = path
	return nil
}

// ---------------------------------------------------------------------------
// Step 6: Publish
// ---------------------------------------------------------------------------

// PublishStep registers the saved file as a new artifact.
type PublishStep struct {
	Session RunContext
}

func (s *PublishStep) Name() string { return "publish" }

func (s *PublishStep) Run(ctx context.Context, sc *StepContext) error {
	if sc.OutputPath == "" {
		return errMissingInput
	}
	slog.Info("logging artifact", "artifact", sc.Params.OutputArtifact, "type", sc.Params.OutputType)

	p := tracking.NewArtifact(sc.Params.OutputArtifact, sc.Params.OutputType, sc.Params.OutputDescription)
	if err := p.AddFile(sc.OutputPath); err != nil {
		return fmt.Errorf("add file: %w", err)
	}
	a, err := s.Session.LogArtifact(ctx, p)
	if err != nil {
		return err
	}
	sc.Published = a
	return nil
}
