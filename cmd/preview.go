package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reports/internal/generation"
)

var previewCmd = &cobra.Command{
	Use:     "preview <report-id>",
	Aliases: []string{"p"},
	Short:   "Render the first page of a report as PDF",
	Long: `Fill a report with the given parameters and export only its first page as
PDF. Validation and defaults work as in generate.

Examples:
  reports preview contractor-activity -p startDate=2025-01-01 -p endDate=2025-01-31
  reports preview report-catalog -o /tmp/`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

var (
	previewFlags  *StandardFlags
	previewOutput string
)

func init() {
	rootCmd.AddCommand(previewCmd)

	previewFlags = AddStandardFlags(previewCmd, "params")
	previewCmd.Flags().StringVarP(&previewOutput, "output", "o", "", "Output file or directory, - for stdout")
}

func runPreview(cmd *cobra.Command, args []string) error {
	params, err := previewFlags.ParseParams()
	if err != nil {
		return err
	}

	return withGeneration(cmd, func(ctx context.Context, gen *generation.Service) error {
		result, err := gen.Preview(ctx, args[0], params)
		if err != nil {
			return err
		}

		return writeResult(cmd, result, previewOutput)
	})
}
