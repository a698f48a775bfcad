// Package tracking implements the run context used by pipeline steps: begin a
// run, record its configuration, resolve input artifacts to local files,
// register output artifacts and finish the run.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

// Backend is the artifact store and run tracker a Run talks to.
type Backend interface {
	CreateRun(ctx context.Context, jobType, project string) (*model.Run, error)
	UpdateRunConfig(ctx context.Context, runID string, config map[string]any) error
	UseArtifact(ctx context.Context, runID string, ref model.ArtifactRef) (*model.Artifact, error)
	FetchArtifactFile(ctx context.Context, a *model.Artifact) (string, error)
	LogArtifact(ctx context.Context, runID string, p *PendingArtifact) (*model.Artifact, error)
	FinishRun(ctx context.Context, runID string, exitCode int, errorInfo *string) error
}

// PendingArtifact describes an output artifact before it is logged.
// It carries exactly one local file.
type PendingArtifact struct {
	Name        string
	Type        string
	Description string
	path        string
}

// NewArtifact creates a PendingArtifact with the given metadata.
func NewArtifact(name, artifactType, description string) *PendingArtifact {
	return &PendingArtifact{Name: name, Type: artifactType, Description: description}
}

// AddFile attaches the payload file. An artifact holds a single file.
func (p *PendingArtifact) AddFile(path string) error {
	if p.path != "" {
		return fmt.Errorf("artifact %s already has file %s", p.Name, p.path)
	}
	if path == "" {
		return fmt.Errorf("artifact %s: empty file path", p.Name)
	}
	p.path = path
	return nil
}

// Path returns the local payload path, or "" if none was added.
func (p *PendingArtifact) Path() string { return p.path }

// FileName is the base name the payload is stored under.
func (p *PendingArtifact) FileName() string { return filepath.Base(p.path) }

func (p *PendingArtifact) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("artifact name is required")
	case p.Type == "":
		return fmt.Errorf("artifact %s: type is required", p.Name)
	case p.path == "":
		return fmt.Errorf("artifact %s: no file added", p.Name)
	}
	if err := CheckName(p.Name); err != nil {
		return err
	}
	return CheckName(p.FileName())
}

// ErrInvalidName is returned for artifact and file names that cannot be used
// as a single path element.
var ErrInvalidName = errors.New("invalid artifact name")

// CheckName rejects names that are empty, "." or "..", or that contain a path
// separator or NUL. Artifact and file names become directory entries in the
// blob store.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
