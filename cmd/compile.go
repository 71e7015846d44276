package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/reports/internal/engine"
)

var compileCmd = &cobra.Command{
	Use:     "compile",
	Aliases: []string{"c"},
	Short:   "Precompile report templates",
	Long: `Compile every report template source under a directory and store the
precompiled artifacts in the compilation cache. Generation then loads the
artifacts instead of parsing the sources again.

Examples:
  reports compile                  # Templates under the external reports path
  reports compile --dir ./drafts   # Templates under another directory`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

var compileDir string

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVar(&compileDir, "dir", "", "Directory to compile (default: external.path)")
}

type compileResult struct {
	path     string
	artifact string
	err      error
}

func runCompile(cmd *cobra.Command, args []string) error {
	container, shutdown, err := openContainer(cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	cfg := container.Config()
	dir := compileDir
	if dir == "" {
		dir = cfg.External.Path
	}

	sources, err := findSources(dir, cfg.Compilation.CacheDirectory)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		fmt.Fprintf(out, "No templates found in %s.\n", dir)
		return nil
	}

	comp, err := container.Compiler()
	if err != nil {
		return fmt.Errorf("failed to get compiler: %w", err)
	}

	results := make([]compileResult, len(sources))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range sources {
		g.Go(func() error {
			_, err := comp.Compile(path)
			results[i] = compileResult{path: path, artifact: comp.CompiledPath(path), err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEMPLATE\tSTATUS\tARTIFACT")
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "%s\tfailed\t%s\n", r.path, firstLine(r.err.Error()))
			continue
		}
		fmt.Fprintf(w, "%s\tok\t%s\n", r.path, r.artifact)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	stats := comp.Stats()
	fmt.Fprintf(out, "\nCompiled %d of %d templates (%d from cache)\n",
		len(results)-failed, len(results), stats.DiskHits+stats.MemoryHits)

	if failed > 0 {
		return fmt.Errorf("%d templates failed to compile", failed)
	}
	return nil
}

// findSources returns the template sources under dir in walk order, skipping
// the compilation cache directory.
func findSources(dir, cacheDir string) ([]string, error) {
	cacheDir = filepath.Clean(cacheDir)

	var sources []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && filepath.Clean(path) == cacheDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), engine.SourceExt) {
			sources = append(sources, path)
		}
		return nil
	})

	return sources, err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
