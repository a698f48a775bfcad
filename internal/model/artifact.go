package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AliasLatest always points at the newest version of an artifact.
const AliasLatest = "latest"

// Usage role constants
const (
	UsageInput  = "input"
	UsageOutput = "output"
)

// Artifact is one immutable, versioned file registered with the tracker.
type Artifact struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	FileName    string   `json:"file_name"`
	Digest      string   `json:"digest"`
	Size        int64    `json:"size"`
	RunID       string   `json:"run_id"`
	Aliases     []string `json:"aliases,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// NewArtifact creates an unversioned Artifact produced by runID.
// The registry assigns Version when the artifact is stored.
func NewArtifact(id, name, artifactType, description, runID string) Artifact {
	return Artifact{
		ID:          id,
		Name:        name,
		Type:        artifactType,
		Description: description,
		RunID:       runID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// VersionTag returns the "vN" alias of the artifact's version.
func (a Artifact) VersionTag() string {
	return "v" + strconv.Itoa(a.Version)
}

// Ref returns the fully pinned reference "name:vN".
func (a Artifact) Ref() string {
	return a.Name + ":" + a.VersionTag()
}

// ArtifactRef identifies an artifact by name and alias, e.g. "sample.csv:latest".
type ArtifactRef struct {
	Name  string
	Alias string
}

// ParseArtifactRef parses "name", "name:alias" or "name:vN".
// A missing alias resolves to latest.
func ParseArtifactRef(s string) (ArtifactRef, error) {
	s = strings.TrimSpace(s)
	name, alias := s, AliasLatest
	if i := strings.LastIndex(s, ":"); i >= 0 {
		name, alias = s[:i], s[i+1:]
	}
	if name == "" {
		return ArtifactRef{}, fmt.Errorf("%w: empty artifact name in %q", ErrResolution, s)
	}
	if alias == "" {
		return ArtifactRef{}, fmt.Errorf("%w: empty alias in %q", ErrResolution, s)
	}
	return ArtifactRef{Name: name, Alias: alias}, nil
}

// Version returns the pinned version number when the alias is "vN".
func (r ArtifactRef) Version() (int, bool) {
	if len(r.Alias) < 2 || r.Alias[0] != 'v' {
		return 0, false
	}
	n, err := strconv.Atoi(r.Alias[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (r ArtifactRef) String() string {
	return r.Name + ":" + r.Alias
}
