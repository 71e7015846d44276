//go:build property
// +build property

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestGenerationConfigProperties tests generation limit validation properties
func TestGenerationConfigProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: only positive concurrency and timeout are accepted
	properties.Property("positive limits", prop.ForAll(
		func(maxConcurrent int, timeoutMs int) bool {
			cfg := Default()
			cfg.Generation.MaxConcurrent = maxConcurrent
			cfg.Generation.Timeout = time.Duration(timeoutMs) * time.Millisecond

			err := validateConfig(cfg)
			if maxConcurrent > 0 && timeoutMs > 0 {
				return err == nil
			}

			return err != nil
		},
		gen.IntRange(-5, 50),
		gen.IntRange(-1000, 600000),
	))

	// Property: default config should always be valid
	properties.Property("default config validity", prop.ForAll(
		func() bool {
			return validateConfig(Default()) == nil
		},
	))

	properties.TestingRun(t)
}

// TestDatabaseConfigProperties tests driver validation properties
func TestDatabaseConfigProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("driver whitelist", prop.ForAll(
		func(driver string) bool {
			cfg := Default()
			cfg.Database.Driver = driver

			err := validateDatabaseConfig(&cfg.Database)
			switch driver {
			case "", DriverPostgres, DriverPgx, DriverSQLite:
				return err == nil
			default:
				return err != nil
			}
		},
		gen.OneConstOf("", "postgres", "pgx", "sqlite", "mysql", "oracle", "Postgres"),
	))

	properties.TestingRun(t)
}
