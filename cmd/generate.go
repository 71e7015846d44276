package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reports/internal/generation"
)

var generateCmd = &cobra.Command{
	Use:     "generate <report-id>",
	Aliases: []string{"g"},
	Short:   "Generate a report document",
	Long: `Generate a report as PDF, Excel or HTML. Parameters are validated against
the report's declared parameters before any work is queued; missing optional
parameters take their declared defaults.

Examples:
  reports generate report-catalog                        # PDF in the working directory
  reports generate report-catalog -f html -o catalog.html
  reports generate contractor-activity -f xlsx -p startDate=2025-01-01 -p limit=50
  reports generate contractor-activity --params-file params.json -o out/
  reports generate report-catalog -f html -o -           # Write to stdout`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var (
	generateFlags  *StandardFlags
	generateFormat string
	generateOutput string
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateFlags = AddStandardFlags(generateCmd, "params", "context")
	generateCmd.Flags().StringVarP(&generateFormat, "format", "f", "pdf", "Output format (pdf, excel, xlsx, xls, html)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "Output file or directory, - for stdout (default: generated name in the working directory)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	params, err := generateFlags.ParseParams()
	if err != nil {
		return err
	}
	values, err := generateFlags.ParseContext()
	if err != nil {
		return err
	}

	return withGeneration(cmd, func(ctx context.Context, gen *generation.Service) error {
		result, err := gen.Generate(ctx, generation.Request{
			ReportID:   args[0],
			Parameters: params,
			Format:     generateFormat,
			Context:    values,
		})
		if err != nil {
			return err
		}

		return writeResult(cmd, result, generateOutput)
	})
}

// withGeneration scans the catalog and runs fn with the generation service.
// Interrupt signals cancel the context passed to fn.
func withGeneration(cmd *cobra.Command, fn func(ctx context.Context, gen *generation.Service) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, shutdown, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	if _, err := scannedDiscovery(ctx, container); err != nil {
		return err
	}

	gen, err := container.Generation()
	if err != nil {
		return fmt.Errorf("failed to get generation service: %w", err)
	}

	return fn(ctx, gen)
}

// writeResult stores the document at dest. An empty dest or a directory
// receives the generated file name; "-" writes the content to stdout.
func writeResult(cmd *cobra.Command, result *generation.Result, dest string) error {
	if dest == "-" {
		_, err := cmd.OutOrStdout().Write(result.Content)
		return err
	}

	path := dest
	if path == "" {
		path = result.FileName()
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, result.FileName())
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, result.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d pages, %d bytes)\n", path, result.Pages, len(result.Content))
	return nil
}
