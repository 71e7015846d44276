package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	config, err := Load()
	require.NoError(t, err)

	assert.True(t, config.External.Enabled)
	assert.Equal(t, "reports", config.External.Path)
	assert.Equal(t, 5*time.Minute, config.External.ScanInterval)
	assert.True(t, config.Embedded.Enabled)
	assert.True(t, config.Embedded.UseBuiltin())
	assert.True(t, config.Compilation.CacheEnabled)
	assert.Equal(t, filepath.Join("reports", "cache"), config.Compilation.CacheDirectory)
	assert.True(t, config.Compilation.RecompileOnChange)
	assert.Equal(t, 5*time.Minute, config.Generation.Timeout)
	assert.Equal(t, 5, config.Generation.MaxConcurrent)
	assert.Equal(t, filepath.Join("temp", "reports"), config.Generation.TempDirectory)
	assert.False(t, config.Database.Configured())
	assert.Equal(t, "info", config.Logging.Level)

	assert.Equal(t, Default(), config)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "duration strings",
			setup: func() {
				viper.Set("generation.timeout", "90s")
				viper.Set("external.scan_interval", "1m")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 90*time.Second, c.Generation.Timeout)
				assert.Equal(t, time.Minute, c.External.ScanInterval)
			},
		},
		{
			name: "database section",
			setup: func() {
				viper.Set("database.driver", "sqlite")
				viper.Set("database.dsn", "file::memory:")
				viper.Set("database.schema", "reporting")
			},
			check: func(t *testing.T, c *Config) {
				assert.True(t, c.Database.Configured())
				assert.Equal(t, "reporting", c.Database.Schema)
				assert.Equal(t, uint32(5), c.Database.Breaker.FailureThreshold)
			},
		},
		{
			name:        "zero concurrency rejected",
			setup:       func() { viper.Set("generation.max_concurrent", 0) },
			expectError: true,
		},
		{
			name:        "negative timeout rejected",
			setup:       func() { viper.Set("generation.timeout", "-1s") },
			expectError: true,
		},
		{
			name:        "unknown driver rejected",
			setup:       func() { viper.Set("database.driver", "oracle") },
			expectError: true,
		},
		{
			name:        "unknown log level rejected",
			setup:       func() { viper.Set("logging.level", "chatty") },
			expectError: true,
		},
		{
			name:        "unparseable concurrency",
			setup:       func() { viper.Set("generation.max_concurrent", "many") },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			tt.setup()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}

			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	file := filepath.Join(dir, ".reports.yml")
	content := `
external:
  path: /srv/reports
  watch: true
compilation:
  cache_enabled: false
generation:
  max_concurrent: 2
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	t.Setenv("REPORTS_GENERATION_MAX_CONCURRENT", "7")

	viper.SetConfigFile(file)
	viper.SetEnvPrefix("REPORTS")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	require.NoError(t, viper.ReadInConfig())

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/reports", config.External.Path)
	assert.True(t, config.External.Watch)
	assert.False(t, config.Compilation.CacheEnabled)
	assert.Equal(t, 7, config.Generation.MaxConcurrent)
}
