package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j-jou/build-ml-pipeline-for-short-term-rental-prices/internal/engine"
)

// NewCleaningCommand builds the basic-cleaning command. Every flag is
// required; there are no defaults.
func NewCleaningCommand(open BackendOpener, project, workDir string) *cobra.Command {
	var p engine.Params

	cmd := &cobra.Command{
		Use:   "basic-cleaning",
		Short: "A very basic data cleaning",
		Long: `Download a raw dataset artifact, drop rows whose price lies outside
[min_price, max_price], parse last_review as a timestamp and log the result
as a new artifact.`,
		Example: `  $ basic-cleaning \
      --input_artifact sample.csv:latest \
      --output_artifact clean_sample.csv \
      --output_type clean_sample \
      --output_description "Data with outliers and null values removed" \
      --min_price 10 \
      --max_price 350`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, closeBackend, err := open()
			if err != nil {
				return err
			}
			defer closeBackend()

			res, err := engine.Clean(cmd.Context(), backend, project, workDir, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged %s from %s (%d of %d rows kept)\n",
				res.Output.Ref(), res.Input.Ref(), res.OutputRows, res.InputRows)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.InputArtifact, "input_artifact", "", "csv file from the artifact store")
	f.StringVar(&p.OutputArtifact, "output_artifact", "", "cleaned csv")
	f.StringVar(&p.OutputType, "output_type", "", "type of output")
	f.StringVar(&p.OutputDescription, "output_description", "", "short description")
	f.Float64Var(&p.MinPrice, "min_price", 0, "min price below which data is considered an outlier")
	f.Float64Var(&p.MaxPrice, "max_price", 0, "max price above which data is considered an outlier")
	for _, name := range []string{"input_artifact", "output_artifact", "output_type", "output_description", "min_price", "max_price"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
