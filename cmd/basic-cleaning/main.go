package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/cli"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/config"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/logging"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/telemetry"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

func main() {
	cfg := config.Load()
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		cli.Exit(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "basic_cleaning", cfg.OTLPEndpoint)
	if err != nil {
		cli.Exit(err)
	}

	if cfg.UseRemoteTracker() {
		slog.Debug("using tracker service", "url", cfg.TrackerURL)
	} else {
		slog.Debug("using local registry", "db", cfg.DBPath, "artifacts", cfg.ArtifactDir)
	}

	open := func() (tracking.Backend, func() error, error) { return cli.OpenBackend(cfg) }
	err = cli.NewCleaningCommand(open, cfg.Project, cfg.WorkDir).ExecuteContext(ctx)

	if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
		slog.Warn("telemetry shutdown", "error", serr)
	}
	stop()
	cli.Exit(err)
}
