package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/api"
	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/tracking"
)

// uploadJobType is recorded on runs created by "artifact put".
const uploadJobType = "upload"

// TrackerOptions configures the tracker command tree.
type TrackerOptions struct {
	Open      LocalOpener
	Project   string
	Port      string
	MaxUpload int64
}

// NewTrackerCommand builds the tracker command: the HTTP service plus admin
// commands working directly on the local registry.
func NewTrackerCommand(opts TrackerOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "tracker",
		Short: "Artifact store and run tracker",
		Long: `Serve the artifact registry over HTTP and inspect or seed it from the
command line. Pipeline steps reach the service through TRACKER_URL.`,
		Example: `  # Start the service
  $ tracker serve

  # Seed a raw dataset
  $ tracker artifact put sample.csv --type raw_data --description "Raw Airbnb sample"

  # Inspect versions and lineage
  $ tracker artifact list clean_sample.csv
  $ tracker run show 6f1c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newArtifactCmd(opts))
	root.AddCommand(newRunCmd(opts))
	return root
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd(opts TrackerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, closeLocal, err := opts.Open()
			if err != nil {
				return err
			}
			defer closeLocal()

			srv := api.New(local, opts.MaxUpload)
			httpServer := &http.Server{
				Addr:    ":" + opts.Port,
				Handler: srv.Handler(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				slog.Info("tracker listening", "addr", "http://localhost:"+opts.Port)
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				slog.Info("shutting down...")
				return httpServer.Shutdown(context.WithoutCancel(ctx))
			})
			return g.Wait()
		},
	}
}

// ---------------------------------------------------------------------------
// artifact put / list
// ---------------------------------------------------------------------------

func newArtifactCmd(opts TrackerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Manage artifacts",
	}
	cmd.AddCommand(newArtifactPutCmd(opts), newArtifactListCmd(opts))
	return cmd
}

func newArtifactPutCmd(opts TrackerOptions) *cobra.Command {
	var name, artifactType, description, alias string

	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Log a local file as a new artifact version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			local, closeLocal, err := opts.Open()
			if err != nil {
				return err
			}
			defer closeLocal()

			ctx := cmd.Context()
			run, err := tracking.Init(ctx, local, uploadJobType, opts.Project)
			if err != nil {
				return err
			}
			defer func() {
				if ferr := run.Finish(context.WithoutCancel(ctx), err); ferr != nil && err == nil {
					err = ferr
				}
			}()

			if name == "" {
				name = filepath.Base(args[0])
			}
			p := tracking.NewArtifact(name, artifactType, description)
			if err := p.AddFile(args[0]); err != nil {
				return err
			}
			a, err := run.LogArtifact(ctx, p)
			if err != nil {
				return err
			}
			if alias != "" {
				if a, err = local.SetAlias(ctx, a.Name, alias, a.Version); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", a.Ref(), a.Digest, strings.Join(a.Aliases, ","))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "artifact name (defaults to the file name)")
	f.StringVar(&artifactType, "type", "", "artifact type")
	f.StringVar(&description, "description", "", "free-text description")
	f.StringVar(&alias, "alias", "", "extra alias to point at the new version")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newArtifactListCmd(opts TrackerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <name>",
		Short: "List the versions of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, closeLocal, err := opts.Open()
			if err != nil {
				return err
			}
			defer closeLocal()

			versions, err := local.Registry().ListArtifactVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tTYPE\tSIZE\tALIASES\tRUN\tCREATED")
			for _, a := range versions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
					a.VersionTag(), a.Type, a.Size, strings.Join(a.Aliases, ","), a.RunID, a.CreatedAt)
			}
			return tw.Flush()
		},
	}
}

// ---------------------------------------------------------------------------
// run show
// ---------------------------------------------------------------------------

func newRunCmd(opts TrackerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect runs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a run with its input and output artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, closeLocal, err := opts.Open()
			if err != nil {
				return err
			}
			defer closeLocal()

			run, err := local.Registry().GetRunWithArtifacts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	})
	return cmd
}

// Exit prints err to stderr and exits non-zero. It is a no-op for nil.
func Exit(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
