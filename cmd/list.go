package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List available reports",
	Long: `List the reports discovered in the external directory and the built-in
bundle. External reports replace built-in reports with the same id.

Examples:
  reports list                         # Table of all reports
  reports list --category finance      # Only one category
  reports list --tag monthly -o json   # Filter by tag, output as JSON`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listFlags    *StandardFlags
	listCategory string
	listTag      string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listFlags = AddStandardFlags(listCmd, "output")
	listCmd.Flags().StringVar(&listCategory, "category", "", "Only list reports in this category")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Only list reports carrying this tag")
}

func runList(cmd *cobra.Command, args []string) error {
	container, shutdown, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	disc, err := scannedDiscovery(cmd.Context(), container)
	if err != nil {
		return err
	}

	infos := disc.Catalog().Infos(listCategory, listTag)
	out := cmd.OutOrStdout()

	if ok, err := writeStructured(out, listFlags.OutputFormat, infos); ok {
		return err
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tSOURCE\tTAGS")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.ID, info.Name, info.Category, info.Source, strings.Join(info.Tags, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal: %d reports\n", len(infos))
	return nil
}
