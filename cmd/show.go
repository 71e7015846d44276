package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reports/internal/types"
)

var showCmd = &cobra.Command{
	Use:     "show <report-id>",
	Aliases: []string{"s"},
	Short:   "Show a report and its parameters",
	Long: `Show the metadata of one report, including its declared parameters,
their types, defaults and validation rules.

Examples:
  reports show contractor-activity
  reports show contractor-activity -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var showFlags *StandardFlags

func init() {
	rootCmd.AddCommand(showCmd)

	showFlags = AddStandardFlags(showCmd, "output")
}

func runShow(cmd *cobra.Command, args []string) error {
	container, shutdown, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	disc, err := scannedDiscovery(cmd.Context(), container)
	if err != nil {
		return err
	}

	md, err := disc.Get(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, showFlags.OutputFormat, md); ok {
		return err
	}

	return writeMetadata(out, md)
}

func writeMetadata(out io.Writer, md *types.ReportMetadata) error {
	fmt.Fprintf(out, "%s (%s)\n", md.Name, md.ID)
	if md.Description != "" {
		fmt.Fprintf(out, "  %s\n", md.Description)
	}
	fmt.Fprintf(out, "\nVersion:  %s\n", md.Version)
	if md.Category != "" {
		fmt.Fprintf(out, "Category: %s\n", md.Category)
	}
	if len(md.Tags) > 0 {
		fmt.Fprintf(out, "Tags:     %s\n", strings.Join(md.Tags, ", "))
	}
	fmt.Fprintf(out, "Template: %s\n", md.Files.Template)

	if len(md.Parameters) == 0 {
		fmt.Fprintln(out, "\nNo parameters.")
		return nil
	}

	fmt.Fprintln(out, "\nParameters:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tREQUIRED\tDEFAULT\tRULES")
	for _, p := range md.Parameters {
		def := ""
		if p.DefaultValue != nil {
			def = *p.DefaultValue
		}
		fmt.Fprintf(w, "  %s\t%s\t%t\t%s\t%s\n", p.Name, p.Type.Canonical(), p.Required, def, describeRules(p.Validation))
	}

	return w.Flush()
}

func describeRules(v *types.Validation) string {
	if v == nil {
		return ""
	}

	var rules []string
	if v.Min != nil {
		rules = append(rules, fmt.Sprintf("min=%g", *v.Min))
	}
	if v.Max != nil {
		rules = append(rules, fmt.Sprintf("max=%g", *v.Max))
	}
	if v.Pattern != "" {
		rules = append(rules, "pattern="+v.Pattern)
	}
	if v.MinDate != "" {
		rules = append(rules, "from="+v.MinDate)
	}
	if v.MaxDate != "" {
		rules = append(rules, "to="+v.MaxDate)
	}

	return strings.Join(rules, " ")
}
