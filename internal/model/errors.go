package model

import (
	"encoding/json"
	"errors"
)

// Error kinds. Concrete errors wrap one of these so callers can use errors.Is.
var (
	// ErrResolution means an artifact reference could not be resolved to a file.
	ErrResolution = errors.New("artifact resolution failed")
	// ErrParse means a dataset is not valid delimited tabular text.
	ErrParse = errors.New("parse failed")
	// ErrIO means a local filesystem operation failed.
	ErrIO = errors.New("local io failed")
	// ErrPublish means registering an output artifact failed.
	ErrPublish = errors.New("artifact publish failed")
	// ErrRunFinished is returned when a finished run is used again.
	ErrRunFinished = errors.New("run already finished")
	// ErrNotFound is returned by the registry for unknown runs or artifacts.
	ErrNotFound = errors.New("not found")
)

// ErrorInfo holds structured failure information for a Run.
type ErrorInfo struct {
	FailedStep string `json:"failed_step"`
	Message    string `json:"message"`
	FailedAt   string `json:"failed_at"`
}

// ToJSON serializes ErrorInfo to a JSON string.
func (e ErrorInfo) ToJSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}
