package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// ---------------------------------------------------------------------------
// POST /api/runs
// ---------------------------------------------------------------------------

type createRunRequest struct {
	JobType string `json:"job_type"`
	Project string `json:"project"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.JobType == "" {
		writeError(w, http.StatusBadRequest, "job_type is required")
		return
	}

	run, err := s.tracker.CreateRun(r.Context(), req.JobType, req.Project)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ---------------------------------------------------------------------------
// GET /api/runs/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.tracker.Registry().GetRunWithArtifacts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ---------------------------------------------------------------------------
// PUT /api/runs/{id}/config
// ---------------------------------------------------------------------------

type updateConfigRequest struct {
	Config map[string]any `json:"config"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Config == nil {
		req.Config = map[string]any{}
	}
	if err := s.tracker.UpdateRunConfig(r.Context(), r.PathValue("id"), req.Config); err != nil {
		writeTrackerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// POST /api/runs/{id}/finish
// ---------------------------------------------------------------------------

type finishRunRequest struct {
	ExitCode  int     `json:"exit_code"`
	ErrorInfo *string `json:"error_info"`
}

func (s *Server) handleFinishRun(w http.ResponseWriter, r *http.Request) {
	var req finishRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.tracker.FinishRun(r.Context(), r.PathValue("id"), req.ExitCode, req.ErrorInfo); err != nil {
		writeTrackerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// POST /api/runs/{id}/use
// ---------------------------------------------------------------------------

type useArtifactRequest struct {
	Ref string `json:"ref"`
}

func (s *Server) handleUseArtifact(w http.ResponseWriter, r *http.Request) {
	var req useArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ref, err := model.ParseArtifactRef(req.Ref)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.tracker.UseArtifact(r.Context(), r.PathValue("id"), ref)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// POST /api/runs/{id}/artifacts?name=&type=&description=&file_name=
// ---------------------------------------------------------------------------

func (s *Server) handleLogArtifact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := tracking.NewArtifact(q.Get("name"), q.Get("type"), q.Get("description"))
	if p.Name == "" || p.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	fileName := q.Get("file_name")
	if fileName == "" {
		fileName = p.Name
	}
	if err := tracking.CheckName(p.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := tracking.CheckName(fileName); err != nil {
		writeError(w, http.StatusBadRequest, "file_name: "+err.Error())
		return
	}
	if err := p.AddFile(fileName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.tracker.LogArtifactFrom(r.Context(), r.PathValue("id"), p, r.Body)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// ---------------------------------------------------------------------------
// GET /api/artifacts?name=
// ---------------------------------------------------------------------------

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	versions, err := s.tracker.Registry().ListArtifactVersions(r.Context(), name)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	if versions == nil {
		versions = []model.Artifact{}
	}
	writeJSON(w, http.StatusOK, versions)
}

// ---------------------------------------------------------------------------
// GET /api/artifacts/{id}/file
// ---------------------------------------------------------------------------

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	a, err := s.tracker.Registry().GetArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	f, err := s.tracker.Open(r.Context(), a)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

// ---------------------------------------------------------------------------
// POST /api/aliases
// ---------------------------------------------------------------------------

type setAliasRequest struct {
	Name    string `json:"name"`
	Alias   string `json:"alias"`
	Version int    `json:"version"`
}

func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req setAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Alias == "" {
		writeError(w, http.StatusBadRequest, "name and alias are required")
		return
	}
	a, err := s.tracker.SetAlias(r.Context(), req.Name, req.Alias, req.Version)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
