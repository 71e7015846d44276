// Package discovery maintains the catalog of available reports. Reports are
// found in two places: an external directory tree that operators may edit at
// runtime, and an embedded bundle shipped with the binary. External reports
// override embedded ones with the same id.
package discovery

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metadata"
	"github.com/conneroisu/reports/internal/metrics"
	"github.com/conneroisu/reports/internal/types"
)

// IndexFile lists the reports of an embedded bundle.
const IndexFile = "metadata.json"

// External subdirectories scanned for templates.
var ExternalDirs = []string{"custom", "templates"}

// Scan triggers, used as metric labels.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "watch"
)

// Options configures the discovery service.
type Options struct {
	ExternalEnabled bool
	ExternalPath    string
	ScanInterval    time.Duration
	Watch           bool

	EmbeddedEnabled bool
	// Embedded is the bundle root holding metadata.json.
	Embedded fs.FS
}

// Service scans report sources and publishes the catalog.
type Service struct {
	opts    Options
	loader  *metadata.Loader
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	catalog atomic.Pointer[Catalog]
	scanMu  sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a discovery service with an empty catalog.
func New(opts Options, loader *metadata.Loader, logger logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if loader == nil {
		loader = metadata.NewLoader(logger)
	}

	s := &Service{
		opts:    opts,
		loader:  loader,
		logger:  logger.WithComponent("discovery"),
		metrics: m,
		now:     time.Now,
	}
	s.catalog.Store(emptyCatalog())

	return s
}

// Catalog returns the current snapshot. The snapshot never changes; a later
// scan publishes a new one.
func (s *Service) Catalog() *Catalog {
	return s.catalog.Load()
}

// Get returns the metadata of id from the current snapshot.
func (s *Service) Get(id string) (*types.ReportMetadata, error) {
	md, ok := s.Catalog().Get(id)
	if !ok {
		return nil, reporterrors.NewNotFoundError(reporterrors.CodeReportNotFound, "report not found").WithReport(id)
	}

	return md, nil
}

// ExternalPath returns the root of the external report tree.
func (s *Service) ExternalPath() string {
	return s.opts.ExternalPath
}

// Scan rebuilds the catalog from all enabled sources and publishes it.
// Per-file failures are logged and skipped. Scans are serialized.
func (s *Service) Scan(ctx context.Context) error {
	return s.scan(ctx, TriggerManual)
}

func (s *Service) scan(ctx context.Context, trigger string) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	start := s.now()
	s.logger.Info(ctx, "starting reports scan", "trigger", trigger)

	entries := make(map[string]Entry)

	if s.opts.ExternalEnabled {
		s.scanExternal(ctx, entries)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.opts.EmbeddedEnabled && s.opts.Embedded != nil {
		s.scanEmbedded(ctx, entries)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	catalog := newCatalog(entries, s.now())
	s.catalog.Store(catalog)

	s.metrics.ObserveScan(trigger)
	s.metrics.SetCatalogSize(string(types.SourceExternal), catalog.CountBySource(types.SourceExternal))
	s.metrics.SetCatalogSize(string(types.SourceEmbedded), catalog.CountBySource(types.SourceEmbedded))

	s.logger.Info(ctx, "reports scan completed",
		"reports", catalog.Count(), "duration", catalog.LastScan().Sub(start))

	return nil
}

func (s *Service) scanExternal(ctx context.Context, entries map[string]Entry) {
	root := s.opts.ExternalPath
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		s.logger.Debug(ctx, "external reports directory does not exist", "path", root)
		return
	}

	for _, sub := range ExternalDirs {
		dir := filepath.Join(root, sub)
		files, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Debug(ctx, "skipping external directory", "path", dir, "reason", err.Error())
			continue
		}

		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			if !f.Type().IsRegular() || !engine.IsTemplateFile(f.Name()) {
				continue
			}

			file := filepath.Join(dir, f.Name())
			md, err := s.loader.Load(file)
			if err != nil {
				s.logger.Warn(ctx, err, "failed to load external report", "path", file)
				continue
			}

			if _, exists := entries[md.ID]; exists {
				s.logger.Debug(ctx, "overwriting report with later external file", "report", md.ID, "path", file)
			} else {
				s.logger.Debug(ctx, "loaded external report", "report", md.ID, "path", file)
			}
			entries[md.ID] = Entry{Metadata: md, Source: types.SourceExternal, Path: file}
		}
	}
}

type bundleIndex struct {
	Reports []struct {
		ID string `json:"id"`
	} `json:"reports"`
}

func (s *Service) scanEmbedded(ctx context.Context, entries map[string]Entry) {
	data, err := fs.ReadFile(s.opts.Embedded, IndexFile)
	if err != nil {
		s.logger.Warn(ctx, err, "embedded reports index not found")
		return
	}

	var index bundleIndex
	if err := json.Unmarshal(data, &index); err != nil {
		s.logger.Error(ctx, err, "failed to parse embedded reports index")
		return
	}

	for _, r := range index.Reports {
		if ctx.Err() != nil {
			return
		}
		if r.ID == "" {
			continue
		}
		if _, exists := entries[r.ID]; exists {
			s.logger.Debug(ctx, "skipping embedded report, external version exists", "report", r.ID)
			continue
		}

		md, err := s.loader.LoadFS(s.opts.Embedded, r.ID+".json")
		if err != nil {
			s.logger.Warn(ctx, err, "failed to load embedded report", "report", r.ID)
			continue
		}
		if _, exists := entries[md.ID]; exists {
			s.logger.Debug(ctx, "skipping embedded report, external version exists", "report", md.ID)
			continue
		}

		entries[md.ID] = Entry{
			Metadata: md,
			Source:   types.SourceEmbedded,
			Path:     path.Clean(md.Files.Template),
		}
		s.logger.Debug(ctx, "loaded embedded report", "report", md.ID)
	}
}
