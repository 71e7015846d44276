package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Keep the report catalog up to date until interrupted",
	Long: `Scan the report sources, then rescan every external.scan_interval and,
with external.watch enabled, whenever files under the external directories
change. Scan activity is logged. Stop with Ctrl+C.

Examples:
  reports watch
  REPORTS_EXTERNAL_WATCH=true reports watch --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, shutdown, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	disc, err := container.Discovery()
	if err != nil {
		return fmt.Errorf("failed to get discovery service: %w", err)
	}

	if err := disc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	defer disc.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (%d reports). Press Ctrl+C to stop.\n",
		disc.ExternalPath(), disc.Catalog().Count())

	<-ctx.Done()

	fmt.Fprintf(out, "Stopped with %d reports.\n", disc.Catalog().Count())
	return nil
}
