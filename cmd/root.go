// Package cmd provides the command-line interface for the reports pipeline.
//
// Configuration precedence, highest first:
//
//  1. Command-line flags (--config, --log-level)
//  2. REPORTS_CONFIG_FILE: path to a configuration file
//  3. Individual environment variables (REPORTS_GENERATION_TIMEOUT, ...)
//  4. .reports.yml in the working directory
//
// Every configuration key can be overridden with REPORTS_<SECTION>_<OPTION>,
// e.g. REPORTS_DATABASE_DSN or REPORTS_EXTERNAL_PATH.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/reports/internal/config"
	"github.com/conneroisu/reports/internal/di"
	"github.com/conneroisu/reports/internal/discovery"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reports",
	Short: "Discover, compile and generate reports",
	Long: `reports discovers report definitions from an external directory and the
built-in bundle, compiles their templates and generates PDF, Excel or HTML
documents from them.

Quick Start:
  reports list                          List available reports
  reports show contractor-activity      Show a report and its parameters
  reports generate report-catalog -f html
  reports preview contractor-activity -p startDate=2025-01-01
  reports compile                       Precompile external templates

Command Aliases:
  list (l), show (s), generate (g), preview (p), compile (c)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .reports.yml, can also use REPORTS_CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reports")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openContainer loads the configuration and prepares the service container.
// The returned function shuts the container down.
func openContainer(cmd *cobra.Command) (*di.Container, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := di.NewContainer(cfg)
	if err := container.Initialize(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize service container: %w", err)
	}

	return container, func() {
		if err := container.Shutdown(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: error during shutdown: %v\n", err)
		}
	}, nil
}

// scannedDiscovery returns the discovery service after one full scan.
func scannedDiscovery(ctx context.Context, container *di.Container) (*discovery.Service, error) {
	disc, err := container.Discovery()
	if err != nil {
		return nil, fmt.Errorf("failed to get discovery service: %w", err)
	}

	if err := disc.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to scan reports: %w", err)
	}

	return disc, nil
}
