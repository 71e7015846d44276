// Package config provides configuration management for the report pipeline
// using Viper for loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files (.reports.yml), environment
// variable overrides with the REPORTS_ prefix, defaults and validation. It
// covers external template discovery, the embedded bundle, the compilation
// cache, generation limits, the data source and logging.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// BuiltinBundle selects the compiled-in embedded bundle.
const BuiltinBundle = "builtin"

// EnvPrefix prefixes every environment override, e.g. REPORTS_GENERATION_TIMEOUT.
const EnvPrefix = "REPORTS"

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// EnvKeyReplacer maps nested config keys onto environment variable names.
func EnvKeyReplacer() *strings.Replacer {
	return envKeyReplacer
}

type Config struct {
	External    ExternalConfig    `mapstructure:"external" yaml:"external"`
	Embedded    EmbeddedConfig    `mapstructure:"embedded" yaml:"embedded"`
	Compilation CompilationConfig `mapstructure:"compilation" yaml:"compilation"`
	Generation  GenerationConfig  `mapstructure:"generation" yaml:"generation"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

type ExternalConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Path         string        `mapstructure:"path" yaml:"path"`
	ScanInterval time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
	Watch        bool          `mapstructure:"watch" yaml:"watch"`
}

type EmbeddedConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// UseBuiltin reports whether the compiled-in bundle should be used.
func (c EmbeddedConfig) UseBuiltin() bool {
	return c.Path == "" || c.Path == BuiltinBundle
}

type CompilationConfig struct {
	CacheEnabled      bool   `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheDirectory    string `mapstructure:"cache_directory" yaml:"cache_directory"`
	RecompileOnChange bool   `mapstructure:"recompile_on_change" yaml:"recompile_on_change"`
}

type GenerationConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	TempDirectory string        `mapstructure:"temp_directory" yaml:"temp_directory"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Schema          string        `mapstructure:"schema" yaml:"schema"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	Breaker         BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

// Configured reports whether a data source was set up.
func (c DatabaseConfig) Configured() bool {
	return c.Driver != "" && c.DSN != ""
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SetDefaults registers default values on the global viper instance.
func SetDefaults() {
	viper.SetDefault("external.enabled", true)
	viper.SetDefault("external.path", "./reports")
	viper.SetDefault("external.scan_interval", 5*time.Minute)
	viper.SetDefault("external.watch", false)

	viper.SetDefault("embedded.enabled", true)
	viper.SetDefault("embedded.path", BuiltinBundle)

	viper.SetDefault("compilation.cache_enabled", true)
	viper.SetDefault("compilation.cache_directory", "./reports/cache")
	viper.SetDefault("compilation.recompile_on_change", true)

	viper.SetDefault("generation.timeout", 5*time.Minute)
	viper.SetDefault("generation.max_concurrent", 5)
	viper.SetDefault("generation.temp_directory", "./temp/reports")

	viper.SetDefault("database.driver", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.schema", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.breaker.max_requests", 1)
	viper.SetDefault("database.breaker.interval", time.Minute)
	viper.SetDefault("database.breaker.timeout", 30*time.Second)
	viper.SetDefault("database.breaker.failure_threshold", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetDefault("metrics.enabled", true)
}

func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.External.Path = filepath.Clean(config.External.Path)
	config.Compilation.CacheDirectory = filepath.Clean(config.Compilation.CacheDirectory)
	config.Generation.TempDirectory = filepath.Clean(config.Generation.TempDirectory)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the defaults without consulting viper state.
func Default() *Config {
	return &Config{
		External:    ExternalConfig{Enabled: true, Path: "reports", ScanInterval: 5 * time.Minute},
		Embedded:    EmbeddedConfig{Enabled: true, Path: BuiltinBundle},
		Compilation: CompilationConfig{CacheEnabled: true, CacheDirectory: filepath.Join("reports", "cache"), RecompileOnChange: true},
		Generation:  GenerationConfig{Timeout: 5 * time.Minute, MaxConcurrent: 5, TempDirectory: filepath.Join("temp", "reports")},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			Breaker:         BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: 30 * time.Second, FailureThreshold: 5},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateGenerationConfig(&config.Generation); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}

	if err := validateDatabaseConfig(&config.Database); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if config.External.Enabled {
		if err := validatePath(config.External.Path); err != nil {
			return fmt.Errorf("external path: %w", err)
		}
	}

	if config.Compilation.CacheEnabled {
		if err := validatePath(config.Compilation.CacheDirectory); err != nil {
			return fmt.Errorf("cache directory: %w", err)
		}
	}

	return nil
}

func validateGenerationConfig(config *GenerationConfig) error {
	if config.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", config.MaxConcurrent)
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	return validatePath(config.TempDirectory)
}

func validateDatabaseConfig(config *DatabaseConfig) error {
	switch config.Driver {
	case "", DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return fmt.Errorf("unsupported driver %q", config.Driver)
	}

	if config.MaxOpenConns < 0 || config.MaxIdleConns < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	switch strings.ToLower(config.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.Level)
	}

	switch config.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}

	return nil
}

// validatePath rejects empty paths and paths with control characters.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("path contains control characters: %q", path)
	}

	return nil
}
