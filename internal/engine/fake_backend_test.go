package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// fakeBackend is an in-memory tracking.Backend.
type fakeBackend struct {
	inputs  map[string]fakeInput // keyed by artifact name
	logged  []loggedArtifact
	used    []string
	config  map[string]any
	finish  *finishCall
	logErr  error
	created int
}

type fakeInput struct {
	artifact model.Artifact
	path     string
}

type loggedArtifact struct {
	artifact model.Artifact
	content  []byte
}

type finishCall struct {
	exitCode  int
	errorInfo *string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{inputs: map[string]fakeInput{}}
}

func (f *fakeBackend) addInput(name, path string) {
	f.inputs[name] = fakeInput{
		artifact: model.Artifact{ID: "in-" + name, Name: name, FileName: name},
		path:     path,
	}
}

func (f *fakeBackend) CreateRun(_ context.Context, jobType, project string) (*model.Run, error) {
	f.created++
	run := model.NewRun(fmt.Sprintf("run-%d", f.created), jobType, project)
	return &run, nil
}

func (f *fakeBackend) UpdateRunConfig(_ context.Context, _ string, config map[string]any) error {
	f.config = config
	return nil
}

func (f *fakeBackend) UseArtifact(_ context.Context, _ string, ref model.ArtifactRef) (*model.Artifact, error) {
	in, ok := f.inputs[ref.Name]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", ref, model.ErrNotFound)
	}
	f.used = append(f.used, ref.String())
	a := in.artifact
	return &a, nil
}

func (f *fakeBackend) FetchArtifactFile(_ context.Context, a *model.Artifact) (string, error) {
	return f.inputs[a.Name].path, nil
}

func (f *fakeBackend) LogArtifact(_ context.Context, runID string, p *tracking.PendingArtifact) (*model.Artifact, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	b, err := os.ReadFile(p.Path())
	if err != nil {
		return nil, err
	}
	a := model.NewArtifact(fmt.Sprintf("out-%d", len(f.logged)), p.Name, p.Type, p.Description, runID)
	a.FileName = p.FileName()
	a.Version = len(f.logged)
	f.logged = append(f.logged, loggedArtifact{artifact: a, content: b})
	return &a, nil
}

func (f *fakeBackend) FinishRun(_ context.Context, _ string, exitCode int, errorInfo *string) error {
	if f.finish != nil {
		return errors.New("finished twice")
	}
	f.finish = &finishCall{exitCode: exitCode, errorInfo: errorInfo}
	return nil
}
