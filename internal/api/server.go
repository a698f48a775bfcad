package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/store"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// maxRequestBody is the maximum allowed JSON request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// Tracker is the backend the service exposes. *tracking.Local implements it.
type Tracker interface {
	tracking.Backend
	LogArtifactFrom(ctx context.Context, runID string, p *tracking.PendingArtifact, r io.Reader) (*model.Artifact, error)
	Open(ctx context.Context, a *model.Artifact) (*os.File, error)
	SetAlias(ctx context.Context, name, alias string, version int) (*model.Artifact, error)
	Registry() store.Registry
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	tracker   Tracker
	maxUpload int64
	mux       *http.ServeMux
}

// New creates a new API server. Uploads larger than maxUpload bytes are rejected.
func New(t Tracker, maxUpload int64) *Server {
	srv := &Server{tracker: t, maxUpload: maxUpload, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return logRequests(jsonContent(s.mux))
}

func (s *Server) routes() {
	s.mux.Handle("POST /api/runs", limitBody(maxRequestBody, s.handleCreateRun))
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.Handle("PUT /api/runs/{id}/config", limitBody(maxRequestBody, s.handleUpdateConfig))
	s.mux.Handle("POST /api/runs/{id}/finish", limitBody(maxRequestBody, s.handleFinishRun))
	s.mux.Handle("POST /api/runs/{id}/use", limitBody(maxRequestBody, s.handleUseArtifact))
	s.mux.Handle("POST /api/runs/{id}/artifacts", limitBody(s.maxUpload, s.handleLogArtifact))
	s.mux.HandleFunc("GET /api/artifacts", s.handleListArtifacts)
	s.mux.HandleFunc("GET /api/artifacts/{id}/file", s.handleDownload)
	s.mux.Handle("POST /api/aliases", limitBody(maxRequestBody, s.handleSetAlias))
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// limitBody restricts the request body to n bytes.
func limitBody(n int64, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTrackerError maps registry errors onto HTTP status codes.
func writeTrackerError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrRunFinished):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tracking.ErrInvalidName), errors.Is(err, tracking.ErrReservedAlias):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
	default:
		slog.Error("tracker error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
