package tracking_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/api"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/model"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/store"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

type remoteEnv struct {
	local  *tracking.Local
	client *tracking.HTTP
	cache  string
}

func newRemoteEnv(t *testing.T) *remoteEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := store.OpenSQLite(filepath.Join(dir, "tracker.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	local := tracking.NewLocal(s, filepath.Join(dir, "blobs"))

	srv := httptest.NewServer(api.New(local, 1<<20).Handler())
	t.Cleanup(srv.Close)

	cache := filepath.Join(dir, "cache")
	return &remoteEnv{
		local:  local,
		client: tracking.NewHTTP(srv.URL+"/", 5*time.Second, cache),
		cache:  cache,
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func logVia(t *testing.T, ctx context.Context, b tracking.Backend, name, content string) *model.Artifact {
	t.Helper()
	run, err := tracking.Init(ctx, b, "upload", "test")
	if err != nil {
		t.Fatal(err)
	}
	p := tracking.NewArtifact(name, "raw_data", "raw sample")
	if err := p.AddFile(writeFile(t, name, content)); err != nil {
		t.Fatal(err)
	}
	a, err := run.LogArtifact(ctx, p)
	if err != nil {
		t.Fatalf("LogArtifact: %v", err)
	}
	if err := run.Finish(ctx, nil); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestHTTP_RoundTrip(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()
	seeded := logVia(t, ctx, env.local, "sample.csv", "price\n10\n")

	run, err := tracking.Init(ctx, env.client, "basic_cleaning", "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := run.UpdateConfig(ctx, map[string]any{"min_price": 10.0}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	h, err := run.UseArtifact(ctx, "sample.csv:latest")
	if err != nil {
		t.Fatalf("UseArtifact: %v", err)
	}
	if h.Artifact.ID != seeded.ID {
		t.Errorf("resolved %s, want %s", h.Artifact.ID, seeded.ID)
	}
	path, err := h.File(ctx)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := filepath.Join(env.cache, "sample.csv-v0", "sample.csv"); path != want {
		t.Errorf("cached path = %s, want %s", path, want)
	}
	if b, _ := os.ReadFile(path); string(b) != "price\n10\n" {
		t.Errorf("downloaded payload = %q", b)
	}

	p := tracking.NewArtifact("clean_sample.csv", "clean_sample", "cleaned")
	if err := p.AddFile(writeFile(t, "clean_sample.csv", "price\n10\n")); err != nil {
		t.Fatal(err)
	}
	out, err := run.LogArtifact(ctx, p)
	if err != nil {
		t.Fatalf("LogArtifact: %v", err)
	}
	if out.Version != 0 || out.Type != "clean_sample" || out.RunID != run.ID() {
		t.Errorf("logged artifact = %+v", out)
	}
	if out.Digest != seeded.Digest {
		t.Errorf("digest = %s, want %s", out.Digest, seeded.Digest)
	}

	if err := run.Finish(ctx, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	lineage, err := env.local.Registry().GetRunWithArtifacts(ctx, run.ID())
	if err != nil {
		t.Fatal(err)
	}
	if lineage.State != model.RunFinished {
		t.Errorf("State = %q, want finished", lineage.State)
	}
	if lineage.Config != `{"min_price":10}` {
		t.Errorf("Config = %s", lineage.Config)
	}
	if len(lineage.Inputs) != 1 || len(lineage.Outputs) != 1 {
		t.Errorf("lineage inputs=%d outputs=%d, want 1 and 1", len(lineage.Inputs), len(lineage.Outputs))
	}
}

func TestHTTP_UseArtifact_NotFound(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	run, err := tracking.Init(ctx, env.client, "basic_cleaning", "test")
	if err != nil {
		t.Fatal(err)
	}
	_, err = run.UseArtifact(ctx, "missing.csv")
	if !errors.Is(err, model.ErrResolution) || !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UseArtifact error = %v, want ErrResolution wrapping ErrNotFound", err)
	}
}

func TestHTTP_FinishTwice(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	r, err := env.client.CreateRun(ctx, "basic_cleaning", "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.client.FinishRun(ctx, r.ID, 0, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := env.client.FinishRun(ctx, r.ID, 0, nil); !errors.Is(err, model.ErrRunFinished) {
		t.Fatalf("second FinishRun error = %v, want ErrRunFinished", err)
	}
	if err := env.client.FinishRun(ctx, "nope", 0, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("FinishRun unknown run error = %v, want ErrNotFound", err)
	}
}

func TestHTTP_LogArtifact_SameDigestReusesVersion(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()

	a := logVia(t, ctx, env.client, "clean_sample.csv", "price\n50\n")
	b := logVia(t, ctx, env.client, "clean_sample.csv", "price\n50\n")
	if a.ID != b.ID {
		t.Errorf("identical uploads produced %s and %s, want one version", a.Ref(), b.Ref())
	}
	c := logVia(t, ctx, env.client, "clean_sample.csv", "price\n60\n")
	if c.Version != 1 {
		t.Errorf("changed upload Version = %d, want 1", c.Version)
	}
}

func TestHTTP_FetchArtifactFile_DigestMismatch(t *testing.T) {
	env := newRemoteEnv(t)
	ctx := context.Background()
	a := logVia(t, ctx, env.local, "sample.csv", "price\n10\n")

	tampered := *a
	tampered.Digest = "0000"
	if _, err := env.client.FetchArtifactFile(ctx, &tampered); err == nil {
		t.Fatal("FetchArtifactFile with wrong digest: expected error")
	}
	if _, err := os.Stat(filepath.Join(env.cache, "sample.csv-v0", "sample.csv")); !os.IsNotExist(err) {
		t.Errorf("mismatched download left in cache: %v", err)
	}
}
