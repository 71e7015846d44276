// Package datasource acquires the database connections that report queries
// run on and supplies the schema name passed to templates. Connection
// acquisition goes through a circuit breaker so a failing database is not
// hammered by every queued generation.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers "postgres"
	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite" // registers "sqlite"

	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
)

// Conn is a connection held for the duration of one fill. Callers must Close
// it to return it to the pool.
type Conn interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
	Close() error
}

// ConnectionProvider hands out dedicated connections.
type ConnectionProvider interface {
	Conn(ctx context.Context) (Conn, error)
}

// SchemaSource supplies the database schema name.
type SchemaSource interface {
	Schema(ctx context.Context) (string, error)
}

// BreakerOptions configures the connection circuit breaker.
type BreakerOptions struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Options configures a Provider.
type Options struct {
	Driver          string
	DSN             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Breaker         BreakerOptions
}

// Provider is a pooled database handle implementing ConnectionProvider and
// SchemaSource.
type Provider struct {
	db     *sqlx.DB
	schema string
	cb     *gobreaker.CircuitBreaker
	logger logging.Logger
}

// Open opens and pings the configured database.
func Open(ctx context.Context, opts Options, logger logging.Logger) (*Provider, error) {
	if opts.Driver == "" || opts.DSN == "" {
		return nil, reporterrors.NewNotConfiguredError(reporterrors.CodeConnectionUnavailable, "database is not configured")
	}

	db, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", opts.Driver, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewProvider(db, opts, logger), nil
}

// NewProvider wraps an open database handle.
func NewProvider(db *sqlx.DB, opts Options, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("datasource")

	threshold := opts.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	p := &Provider{
		db:     db,
		schema: strings.TrimSpace(opts.Schema),
		logger: logger,
	}

	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-datasource",
		MaxRequests: opts.Breaker.MaxRequests,
		Interval:    opts.Breaker.Interval,
		Timeout:     opts.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a database failure.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	})

	return p
}

// Conn acquires a dedicated connection. It fails fast while the breaker is
// open.
func (p *Provider) Conn(ctx context.Context) (Conn, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.db.Connx(ctx)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, reporterrors.NewGenerationError(reporterrors.CodeConnectionUnavailable,
			"failed to acquire database connection", err)
	}

	return out.(*sqlx.Conn), nil
}

// Schema returns the configured schema name.
func (p *Provider) Schema(ctx context.Context) (string, error) {
	if p.schema == "" {
		return "", reporterrors.NewNotConfiguredError(reporterrors.CodeSchemaUnavailable, "database schema is not configured")
	}

	return p.schema, nil
}

// BreakerState returns the circuit breaker state name.
func (p *Provider) BreakerState() string {
	return p.cb.State().String()
}

// DB returns the underlying handle.
func (p *Provider) DB() *sqlx.DB {
	return p.db
}

// Close closes the pool.
func (p *Provider) Close() error {
	return p.db.Close()
}

// Static is a SchemaSource returning a fixed name. An empty name reports
// ErrNotConfigured.
type Static string

// Schema implements SchemaSource.
func (s Static) Schema(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", reporterrors.NewNotConfiguredError(reporterrors.CodeSchemaUnavailable, "database schema is not configured")
	}

	return string(s), nil
}

// Unconfigured is a ConnectionProvider for deployments without a database.
// Templates without a query still fill; others fail with ErrNotConfigured.
type Unconfigured struct{}

// Conn implements ConnectionProvider.
func (Unconfigured) Conn(ctx context.Context) (Conn, error) {
	return nil, reporterrors.NewNotConfiguredError(reporterrors.CodeConnectionUnavailable, "database is not configured")
}
