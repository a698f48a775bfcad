package tracking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/store"
)

var _ Backend = (*Local)(nil)

// Local tracks runs in a SQLite registry and keeps artifact payloads under a
// blob directory laid out as <root>/<name>/<digest>/<file>.
type Local struct {
	registry store.Registry
	root     string
}

// NewLocal creates a Local backend storing payloads under root.
func NewLocal(registry store.Registry, root string) *Local {
	return &Local{registry: registry, root: root}
}

// CreateRun registers a new running run.
func (l *Local) CreateRun(ctx context.Context, jobType, project string) (*model.Run, error) {
	run := model.NewRun(uuid.New().String(), jobType, project)
	if err := l.registry.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunConfig stores config as the run's configuration.
func (l *Local) UpdateRunConfig(ctx context.Context, runID string, config map[string]any) error {
	b, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return l.registry.UpdateRunConfig(ctx, runID, string(b))
}

// UseArtifact resolves ref and records it as an input of runID.
func (l *Local) UseArtifact(ctx context.Context, runID string, ref model.ArtifactRef) (*model.Artifact, error) {
	run, err := l.registry.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, model.ErrRunFinished
	}
	a, err := l.registry.ResolveArtifact(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := l.registry.RecordUsage(ctx, runID, a.ID, model.UsageInput); err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}
	return a, nil
}

// FetchArtifactFile returns the blob path of a. Local payloads are never copied.
func (l *Local) FetchArtifactFile(_ context.Context, a *model.Artifact) (string, error) {
	path, err := l.blobPath(a.Name, a.Digest, a.FileName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("payload of %s: %w", a.Ref(), err)
	}
	return path, nil
}

// Open opens the payload of a for reading.
func (l *Local) Open(ctx context.Context, a *model.Artifact) (*os.File, error) {
	path, err := l.FetchArtifactFile(ctx, a)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// LogArtifact copies the payload into the blob directory and registers it as
// the next version of p.Name. When the latest version already has the same
// digest that version is returned and linked to runID instead.
func (l *Local) LogArtifact(ctx context.Context, runID string, p *PendingArtifact) (*model.Artifact, error) {
	src, err := os.Open(p.Path())
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return l.LogArtifactFrom(ctx, runID, p, src)
}

// LogArtifactFrom is LogArtifact with the payload read from r. p.FileName()
// names the stored file; p's path is not opened.
func (l *Local) LogArtifactFrom(ctx context.Context, runID string, p *PendingArtifact, r io.Reader) (*model.Artifact, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	run, err := l.registry.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, model.ErrRunFinished
	}

	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("copy payload: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))

	latest, err := l.registry.ResolveArtifact(ctx, model.ArtifactRef{Name: p.Name, Alias: model.AliasLatest})
	switch {
	case err == nil && sameVersion(latest, p, digest):
		if err := l.registry.RecordUsage(ctx, runID, latest.ID, model.UsageOutput); err != nil {
			return nil, fmt.Errorf("record usage: %w", err)
		}
		return latest, nil
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	dst, err := l.blobPath(p.Name, digest, p.FileName())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("move payload: %w", err)
	}

	a := model.NewArtifact(uuid.New().String(), p.Name, p.Type, p.Description, runID)
	a.FileName = p.FileName()
	a.Digest = digest
	a.Size = size
	if err := l.registry.CreateArtifact(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FinishRun records the final state of runID.
func (l *Local) FinishRun(ctx context.Context, runID string, exitCode int, errorInfo *string) error {
	state := model.RunFinished
	if exitCode != 0 {
		state = model.RunFailed
	}
	return l.registry.FinishRun(ctx, runID, state, exitCode, errorInfo)
}

// ErrReservedAlias is returned when setting an alias the registry manages
// itself: latest and the vN version tags.
var ErrReservedAlias = errors.New("alias is managed by the tracker")

// SetAlias points name:alias at the given version.
func (l *Local) SetAlias(ctx context.Context, name, alias string, version int) (*model.Artifact, error) {
	if _, ok := (model.ArtifactRef{Name: name, Alias: alias}).Version(); ok || alias == model.AliasLatest {
		return nil, fmt.Errorf("%w: %s", ErrReservedAlias, alias)
	}
	a, err := l.registry.ResolveArtifact(ctx, model.ArtifactRef{Name: name, Alias: fmt.Sprintf("v%d", version)})
	if err != nil {
		return nil, err
	}
	if err := l.registry.SetAlias(ctx, name, alias, a.ID); err != nil {
		return nil, err
	}
	return l.registry.GetArtifact(ctx, a.ID)
}

// Registry exposes the underlying registry for read-only queries.
func (l *Local) Registry() store.Registry { return l.registry }

// sameVersion reports whether logging p with digest would repeat latest
// exactly, metadata included.
func sameVersion(latest *model.Artifact, p *PendingArtifact, digest string) bool {
	return latest.Digest == digest &&
		latest.FileName == p.FileName() &&
		latest.Type == p.Type &&
		latest.Description == p.Description
}

func (l *Local) blobPath(name, digest, fileName string) (string, error) {
	path := filepath.Join(l.root, url.PathEscape(name), digest, fileName)
	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes the artifact root", ErrInvalidName, name)
	}
	return path, nil
}
