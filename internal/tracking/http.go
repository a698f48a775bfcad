package tracking

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
)

var _ Backend = (*HTTP)(nil)

// HTTP talks to a remote tracker service. Downloaded payloads are cached
// under cacheDir/<name>-v<N>/<file>.
type HTTP struct {
	baseURL  string
	client   *http.Client
	cacheDir string
}

// NewHTTP creates a client for the tracker service at baseURL.
func NewHTTP(baseURL string, timeout time.Duration, cacheDir string) *HTTP {
	return &HTTP{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// CreateRun registers a new run with the service.
func (c *HTTP) CreateRun(ctx context.Context, jobType, project string) (*model.Run, error) {
	var run model.Run
	body := map[string]string{"job_type": jobType, "project": project}
	if err := c.doJSON(ctx, http.MethodPost, "/api/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunConfig replaces the run configuration.
func (c *HTTP) UpdateRunConfig(ctx context.Context, runID string, config map[string]any) error {
	body := map[string]any{"config": config}
	return c.doJSON(ctx, http.MethodPut, "/api/runs/"+url.PathEscape(runID)+"/config", body, nil)
}

// UseArtifact resolves ref on the service and records the usage.
func (c *HTTP) UseArtifact(ctx context.Context, runID string, ref model.ArtifactRef) (*model.Artifact, error) {
	var a model.Artifact
	body := map[string]string{"ref": ref.String()}
	if err := c.doJSON(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/use", body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FetchArtifactFile downloads the payload of a into the cache directory,
// verifying its digest.
func (c *HTTP) FetchArtifactFile(ctx context.Context, a *model.Artifact) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/artifacts/"+url.PathEscape(a.ID)+"/file", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	dir := filepath.Join(c.cacheDir, url.PathEscape(a.Name)+"-"+a.VersionTag())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", a.Ref(), err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); a.Digest != "" && got != a.Digest {
		return "", fmt.Errorf("download %s: digest mismatch: got %s, want %s", a.Ref(), got, a.Digest)
	}

	path := filepath.Join(dir, a.FileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// LogArtifact uploads the payload of p as a new artifact version.
func (c *HTTP) LogArtifact(ctx context.Context, runID string, p *PendingArtifact) (*model.Artifact, error) {
	f, err := os.Open(p.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	q := url.Values{}
	q.Set("name", p.Name)
	q.Set("type", p.Type)
	q.Set("description", p.Description)
	q.Set("file_name", p.FileName())
	endpoint := c.baseURL + "/api/runs/" + url.PathEscape(runID) + "/artifacts?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if st, err := f.Stat(); err == nil {
		req.ContentLength = st.Size()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var a model.Artifact
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// FinishRun records the final state of runID.
func (c *HTTP) FinishRun(ctx context.Context, runID string, exitCode int, errorInfo *string) error {
	body := map[string]any{"exit_code": exitCode, "error_info": errorInfo}
	return c.doJSON(ctx, http.MethodPost, "/api/runs/"+url.PathEscape(runID)+"/finish", body, nil)
}

func (c *HTTP) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps a tracker error response onto the model error kinds.
func decodeError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(b, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(b))
	}
	msg := fmt.Sprintf("tracker %s: %s", resp.Status, e.Error)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, model.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, model.ErrRunFinished)
	}
	return errors.New(msg)
}
