// Package config provides centralized configuration for the cleaning step and
// the tracker service. Values come from environment variables, optionally
// seeded from a .env file, with sensible defaults.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string

	// TrackerURL selects the remote tracker service. Empty means the local
	// SQLite registry is used directly.
	TrackerURL string

	// DBPath is the path to the SQLite registry database.
	DBPath string

	// ArtifactDir holds artifact payloads (local backend) or the download
	// cache (remote backend).
	ArtifactDir string

	// WorkDir is where the cleaned CSV is written before it is published.
	WorkDir string

	// Project is recorded on every run.
	Project string

	// Port is the tracker service listen port.
	Port string

	// HTTPTimeout bounds each request to the remote tracker.
	HTTPTimeout time.Duration

	// MaxUploadBytes is the largest artifact the tracker service accepts.
	MaxUploadBytes int64

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying defaults.
// Variables from the file named by ENV_FILE (default .env) fill in anything
// the real environment does not set.
func Load() Config {
	loadEnvFile(envOr("ENV_FILE", ".env"))

	return Config{
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "text"),
		TrackerURL:     os.Getenv("TRACKER_URL"),
		DBPath:         envOr("TRACKER_DB_PATH", "tracker.db"),
		ArtifactDir:    envOr("ARTIFACT_DIR", "artifacts"),
		WorkDir:        envOr("WORK_DIR", "."),
		Project:        envOr("TRACKER_PROJECT", "nyc_airbnb"),
		Port:           envOr("PORT", "8090"),
		HTTPTimeout:    envDuration("HTTP_TIMEOUT", 60*time.Second),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 512<<20),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// UseRemoteTracker reports whether runs go through the tracker service.
func (c Config) UseRemoteTracker() bool {
	return c.TrackerURL != ""
}

// loadEnvFile loads path without overriding variables already set.
// A missing file is not an error.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("ignoring env file", "path", path, "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
