// Package generation turns a report id and caller parameters into an
// exported document. Requests are validated eagerly, then filled and
// exported on a fixed pool of workers; at most MaxConcurrent fills run at
// once and every request is bounded by the configured timeout.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conneroisu/reports/internal/datasource"
	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metadata"
	"github.com/conneroisu/reports/internal/metrics"
	"github.com/conneroisu/reports/internal/types"
)

// Defaults applied by New.
const (
	DefaultMaxConcurrent = 4
	DefaultTimeout       = 5 * time.Minute
)

// Catalog looks up report metadata by id.
type Catalog interface {
	Get(id string) (*types.ReportMetadata, error)
}

// Compiler returns executable templates for a template path.
type Compiler interface {
	Compile(path string) (*engine.Template, error)
}

// Filler fills a template against an optional query connection.
type Filler interface {
	Fill(ctx context.Context, t *engine.Template, params map[string]interface{}, q engine.Queryer) (*engine.Document, error)
}

// Options configures the service.
type Options struct {
	MaxConcurrent int
	// Timeout bounds a request from submission to result. Zero disables it.
	Timeout       time.Duration
	TempDirectory string
	ExternalPath  string
	Embedded      fs.FS
}

// Dependencies are the collaborators of the service. Catalog and Compiler
// are required.
type Dependencies struct {
	Catalog     Catalog
	Compiler    Compiler
	Filler      Filler
	Connections datasource.ConnectionProvider
	Schema      datasource.SchemaSource
	Loader      *metadata.Loader
	Logger      logging.Logger
	Metrics     *metrics.Metrics
	Clock       func() time.Time
}

// Service generates reports.
type Service struct {
	opts        Options
	catalog     Catalog
	compiler    Compiler
	filler      Filler
	connections datasource.ConnectionProvider
	schema      datasource.SchemaSource
	loader      *metadata.Loader
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	pool     *workerPool
	cacheDir string
	copyMu   sync.Mutex
}

// New creates the service, prepares the local template cache and copies the
// embedded templates into it.
func New(opts Options, deps Dependencies) (*Service, error) {
	if deps.Catalog == nil || deps.Compiler == nil {
		return nil, reporterrors.NewConfigError(reporterrors.CodeInvalidConfig, "generation requires a catalog and a compiler")
	}

	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout < 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TempDirectory == "" {
		opts.TempDirectory = filepath.Join(os.TempDir(), "reports")
	}

	s := &Service{
		opts:        opts,
		catalog:     deps.Catalog,
		compiler:    deps.Compiler,
		filler:      deps.Filler,
		connections: deps.Connections,
		schema:      deps.Schema,
		loader:      deps.Loader,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Clock,
		cacheDir:    filepath.Join(opts.TempDirectory, EmbeddedCacheDir),
	}
	if s.filler == nil {
		s.filler = engine.NewFiller(deps.Compiler)
	}
	if s.connections == nil {
		s.connections = datasource.Unconfigured{}
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.loader == nil {
		s.loader = metadata.NewLoader(s.logger)
	}
	s.logger = s.logger.WithComponent("generation")
	if s.now == nil {
		s.now = time.Now
	}

	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return nil, reporterrors.NewIOError(reporterrors.CodeTemplateRead, "failed to create template cache directory", err).WithFile(s.cacheDir)
	}

	s.preload(context.Background())

	s.pool = newWorkerPool(opts.MaxConcurrent, s.metrics.SetActiveGenerations)

	return s, nil
}

// Generate produces the document for req.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	return s.generate(ctx, req, false)
}

// Preview fills the report like Generate but exports only the first page as
// PDF.
func (s *Service) Preview(ctx context.Context, reportID string, params map[string]interface{}) (*Result, error) {
	return s.generate(ctx, Request{
		ReportID:   reportID,
		Parameters: params,
		Format:     string(engine.FormatPDF),
	}, true)
}

// ActiveGenerations returns the number of fills currently holding a permit.
func (s *Service) ActiveGenerations() int {
	return s.pool.activeCount()
}

// MaxConcurrent returns the permit capacity.
func (s *Service) MaxConcurrent() int {
	return s.pool.size
}

// CacheDirectory returns where embedded templates are copied to.
func (s *Service) CacheDirectory() string {
	return s.cacheDir
}

// Close stops the workers. Queued requests fail and later calls are refused.
func (s *Service) Close() error {
	s.pool.close()
	return nil
}

func (s *Service) generate(ctx context.Context, req Request, preview bool) (*Result, error) {
	requestID := uuid.NewString()
	ctx = logging.ContextWithRequestID(ctx, requestID)
	start := time.Now()

	md, err := s.catalog.Get(req.ReportID)
	if err != nil {
		return nil, err
	}

	params, err := Validate(md.Parameters, req.Parameters)
	if err != nil {
		s.logger.Warn(ctx, err, "parameter validation failed", "report", md.ID)
		return nil, stageError(err, reporterrors.ErrorTypeValidation, reporterrors.CodeInvalidParameters,
			"parameter validation failed", md.ID)
	}

	format, err := engine.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}

	templatePath, err := s.resolveTemplate(ctx, md)
	if err != nil {
		return nil, err
	}

	schema := s.loader.ResolveDefaults(md.Parameters, req.Context)

	job := func(ctx context.Context) (*Result, error) {
		return s.execute(ctx, md, schema, params, templatePath, format, preview, requestID)
	}

	result, err := s.submit(ctx, job)

	outcome := metrics.OutcomeSuccess
	switch {
	case reporterrors.IsTimeout(err):
		outcome = metrics.OutcomeTimeout
	case err != nil:
		outcome = metrics.OutcomeError
	}
	s.metrics.ObserveGeneration(string(format), outcome, time.Since(start))

	if err != nil {
		s.logger.Error(ctx, err, "report generation failed", "report", md.ID, "format", format, "preview", preview)
		return nil, err
	}

	s.logger.Info(ctx, "report generated",
		"report", md.ID,
		"format", format,
		"preview", preview,
		"pages", result.Pages,
		"bytes", len(result.Content),
		"duration", time.Since(start))

	return result, nil
}

// submit runs job on the pool and waits for it within the timeout measured
// from now.
func (s *Service) submit(ctx context.Context, job func(ctx context.Context) (*Result, error)) (*Result, error) {
	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}
	defer cancel()

	t := &task{ctx: jobCtx, run: job, done: make(chan outcome, 1)}

	if err := s.pool.submit(t); err != nil {
		return nil, s.contextError(ctx, jobCtx, err)
	}

	select {
	case out := <-t.done:
		if out.err != nil && jobCtx.Err() != nil {
			return nil, s.contextError(ctx, jobCtx, out.err)
		}
		return out.result, out.err
	case <-jobCtx.Done():
		return nil, s.contextError(ctx, jobCtx, jobCtx.Err())
	}
}

// contextError maps an ended job context to the caller-facing error: a
// Timeout when the deadline passed, Interrupted when the caller cancelled.
func (s *Service) contextError(parent, jobCtx context.Context, err error) error {
	if parent.Err() != nil {
		if reporterrors.IsInterrupted(err) {
			return err
		}
		return reporterrors.NewInterruptedError(parent.Err())
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return reporterrors.NewTimeoutError(fmt.Sprintf("report generation timed out after %s", s.opts.Timeout))
	}

	return err
}

func (s *Service) execute(
	ctx context.Context,
	md *types.ReportMetadata,
	schema []types.ReportParameter,
	supplied map[string]interface{},
	templatePath string,
	format engine.Format,
	preview bool,
	requestID string,
) (*Result, error) {
	tmpl, err := s.compiler.Compile(templatePath)
	if err != nil {
		return nil, stageError(err, reporterrors.ErrorTypeCompile, reporterrors.CodeTemplateSyntax, "failed to compile template", md.ID)
	}

	params := s.mergeParameters(ctx, schema, supplied)

	conn := &lazyConn{ctx: ctx, provider: s.connections}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Warn(ctx, err, "failed to release data connection", "report", md.ID)
		}
	}()

	doc, err := s.filler.Fill(ctx, tmpl, params, conn)
	if err != nil {
		if conn.err != nil {
			return nil, stageError(conn.err, reporterrors.ErrorTypeGeneration, reporterrors.CodeConnectionUnavailable,
				"failed to acquire data connection", md.ID)
		}
		return nil, stageError(err, reporterrors.ErrorTypeGeneration, reporterrors.CodeFillFailed, "failed to fill report", md.ID)
	}

	if preview {
		doc = doc.FirstPage()
	}

	content, err := engine.Export(ctx, doc, format)
	if err != nil {
		return nil, stageError(err, reporterrors.ErrorTypeGeneration, reporterrors.CodeExportFailed, "failed to export report", md.ID)
	}

	return &Result{
		RequestID:   requestID,
		ReportID:    md.ID,
		Format:      format,
		GeneratedAt: s.now(),
		Content:     content,
		Pages:       doc.PageCount(),
	}, nil
}

// lazyConn acquires a data connection on first use so templates whose
// queries never run do not need a database. It belongs to one fill.
type lazyConn struct {
	ctx      context.Context
	provider datasource.ConnectionProvider
	conn     datasource.Conn
	err      error
	once     sync.Once
}

func (c *lazyConn) acquire() error {
	c.once.Do(func() {
		c.conn, c.err = c.provider.Conn(c.ctx)
	})

	return c.err
}

func (c *lazyConn) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}

	return c.conn.QueryxContext(ctx, query, args...)
}

func (c *lazyConn) Rebind(query string) string {
	if err := c.acquire(); err != nil {
		return query
	}

	return c.conn.Rebind(query)
}

// Close releases the connection if one was acquired.
func (c *lazyConn) Close() error {
	if c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// stageError keeps context errors as they are and returns a new error for
// everything else. Errors from collaborators may be shared between requests
// (the compiler hands one error to every caller waiting on the same path), so
// they are never modified in place. Read failures are reported as
// Generation errors with their code kept.
func stageError(err error, errType reporterrors.ErrorType, code, message, reportID string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var re *reporterrors.ReportError
	if errors.As(err, &re) {
		if direct, ok := err.(*reporterrors.ReportError); ok && direct.Type != reporterrors.ErrorTypeIO {
			scoped := *direct
			if scoped.ReportID == "" {
				scoped.ReportID = reportID
			}
			scoped.Context = copyContext(direct.Context)
			return &scoped
		}

		errType, code = re.Type, re.Code
		if errType == reporterrors.ErrorTypeIO {
			errType = reporterrors.ErrorTypeGeneration
		}
	}

	return reporterrors.Wrap(err, errType, code, message).WithReport(reportID)
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}

	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
