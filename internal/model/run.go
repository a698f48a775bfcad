package model

import "time"

// Run state constants
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Run is one tracked execution of a pipeline step.
type Run struct {
	ID         string  `json:"id"`
	JobType    string  `json:"job_type"`
	Project    string  `json:"project"`
	State      string  `json:"state"`
	Config     string  `json:"config"` // JSON object
	ExitCode   *int    `json:"exit_code,omitempty"`
	ErrorInfo  *string `json:"error_info,omitempty"`
	CreatedAt  string  `json:"created_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// RunWithArtifacts is a Run together with the artifacts it used and logged.
type RunWithArtifacts struct {
	Run
	Inputs  []Artifact `json:"inputs"`
	Outputs []Artifact `json:"outputs"`
}

// NewRun creates a new Run in the running state.
func NewRun(id, jobType, project string) Run {
	return Run{
		ID:        id,
		JobType:   jobType,
		Project:   project,
		State:     RunRunning,
		Config:    "{}",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Finished reports whether the run has left the running state.
func (r Run) Finished() bool {
	return r.State != RunRunning
}
