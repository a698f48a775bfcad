package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	content := `# comment line
FOO_TEST_KEY=hello
BAR_TEST_KEY="quoted value"
BAZ_TEST_KEY='single quoted'

EMPTY_LINE_ABOVE=works
`
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"FOO_TEST_KEY", "BAR_TEST_KEY", "BAZ_TEST_KEY", "EMPTY_LINE_ABOVE"}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	loadEnvFile(envFile)

	tests := []struct {
		key  string
		want string
	}{
		{"FOO_TEST_KEY", "hello"},
		{"BAR_TEST_KEY", "quoted value"},
		{"BAZ_TEST_KEY", "single quoted"},
		{"EMPTY_LINE_ABOVE", "works"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("os.Getenv(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadEnvFile_RealEnvTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	if err := os.WriteFile(envFile, []byte("PRECEDENCE_TEST=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PRECEDENCE_TEST", "from-env")

	loadEnvFile(envFile)

	if got := os.Getenv("PRECEDENCE_TEST"); got != "from-env" {
		t.Errorf("env var = %q, want %q (real env should take precedence)", got, "from-env")
	}
}

func TestLoadEnvFile_MissingFile(t *testing.T) {
	loadEnvFile("/nonexistent/path/.env")
}

func clearEnv(t *testing.T) {
	t.Helper()
	envKeys := []string{
		"LOG_LEVEL", "LOG_FORMAT", "TRACKER_URL", "TRACKER_DB_PATH",
		"ARTIFACT_DIR", "WORK_DIR", "TRACKER_PROJECT", "PORT",
		"HTTP_TIMEOUT", "MAX_UPLOAD_BYTES", "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.DBPath != "tracker.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "tracker.db")
	}
	if cfg.ArtifactDir != "artifacts" {
		t.Errorf("ArtifactDir = %q, want %q", cfg.ArtifactDir, "artifacts")
	}
	if cfg.WorkDir != "." {
		t.Errorf("WorkDir = %q, want %q", cfg.WorkDir, ".")
	}
	if cfg.Port != "8090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8090")
	}
	if cfg.HTTPTimeout != 60*time.Second {
		t.Errorf("HTTPTimeout = %v, want 60s", cfg.HTTPTimeout)
	}
	if cfg.MaxUploadBytes != 512<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 512<<20)
	}
	if cfg.UseRemoteTracker() {
		t.Error("UseRemoteTracker should be false without TRACKER_URL")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRACKER_URL", "http://tracker:8090")
	t.Setenv("WORK_DIR", "/tmp/work")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg := Load()

	if !cfg.UseRemoteTracker() || cfg.TrackerURL != "http://tracker:8090" {
		t.Errorf("TrackerURL = %q, want remote tracker", cfg.TrackerURL)
	}
	if cfg.WorkDir != "/tmp/work" {
		t.Errorf("WorkDir = %q, want %q", cfg.WorkDir, "/tmp/work")
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", cfg.HTTPTimeout)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), "tracker.env")
	if err := os.WriteFile(envFile, []byte("TRACKER_PROJECT=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("TRACKER_PROJECT") })

	if got := Load().Project; got != "from-file" {
		t.Errorf("Project = %q, want %q", got, "from-file")
	}
}

func TestEnvDuration_Invalid(t *testing.T) {
	t.Setenv("TEST_DUR_INVALID", "not-a-duration")

	got := envDuration("TEST_DUR_INVALID", 5*time.Second)
	if got != 5*time.Second {
		t.Errorf("envDuration with invalid value = %v, want fallback 5s", got)
	}
}

func TestEnvInt64_Invalid(t *testing.T) {
	for _, v := range []string{"abc", "-1", "0"} {
		t.Setenv("TEST_INT_INVALID", v)
		if got := envInt64("TEST_INT_INVALID", 42); got != 42 {
			t.Errorf("envInt64(%q) = %d, want fallback 42", v, got)
		}
	}
}
