package main

import (
	"context"
	"os"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/cli"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/config"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/logging"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

func main() {
	cfg := config.Load()
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		cli.Exit(err)
	}

	cmd := cli.NewTrackerCommand(cli.TrackerOptions{
		Open:      func() (*tracking.Local, func() error, error) { return cli.OpenLocal(cfg) },
		Project:   cfg.Project,
		Port:      cfg.Port,
		MaxUpload: cfg.MaxUploadBytes,
	})
	cli.Exit(cmd.ExecuteContext(context.Background()))
}
