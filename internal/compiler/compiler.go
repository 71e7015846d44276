// Package compiler turns template sources into executable templates and
// caches the results in memory and on disk.
//
// A memory entry is keyed by the source path and remembers the source
// modification time observed when it was compiled. When recompile-on-change
// is enabled an entry is served only while the source still exists and has
// not been modified since; otherwise a precompiled artifact on disk is tried
// and, failing that, the source is compiled again.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/reports/internal/engine"
	reporterrors "github.com/conneroisu/reports/internal/errors"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metrics"
)

// Options configures the compilation cache.
type Options struct {
	CacheEnabled      bool
	CacheDirectory    string
	RecompileOnChange bool
}

// CacheStats reports cache activity.
type CacheStats struct {
	MemoryHits int64
	DiskHits   int64
	Compiles   int64
	Entries    int
}

// Compiler compiles and caches templates. It is safe for concurrent use.
type Compiler struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics.Metrics

	entries map[string]*cacheEntry
	mutex   sync.RWMutex
	group   singleflight.Group

	memoryHits int64
	diskHits   int64
	compiles   int64
}

type cacheEntry struct {
	template *engine.Template
	// sourceModTime is the source modification time seen at compile time.
	sourceModTime time.Time
	recorded      bool
}

// New creates a compiler. The cache directory is created when disk caching
// is enabled; failure to create it is logged and disk writes will fail
// softly later.
func New(opts Options, logger logging.Logger, m *metrics.Metrics) *Compiler {
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Compiler{
		opts:    opts,
		logger:  logger.WithComponent("compiler"),
		metrics: m,
		entries: make(map[string]*cacheEntry),
	}

	if opts.CacheEnabled && opts.CacheDirectory != "" {
		if err := os.MkdirAll(opts.CacheDirectory, 0o755); err != nil {
			c.logger.Error(context.Background(), err, "failed to create cache directory", "dir", opts.CacheDirectory)
		}
	}

	return c
}

// Compile returns the executable template for the source at path.
func (c *Compiler) Compile(path string) (*engine.Template, error) {
	if t, ok := c.fromMemory(path); ok {
		return t, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if t, ok := c.fromMemory(path); ok {
			return t, nil
		}

		return c.load(path)
	})
	if err != nil {
		return nil, err
	}

	return v.(*engine.Template), nil
}

func (c *Compiler) fromMemory(path string) (*engine.Template, bool) {
	c.mutex.RLock()
	entry, ok := c.entries[path]
	c.mutex.RUnlock()

	if !ok || c.NeedsRecompilation(path) {
		return nil, false
	}

	atomic.AddInt64(&c.memoryHits, 1)
	c.metrics.ObserveCacheLookup(metrics.CacheMemory)

	return entry.template, true
}

func (c *Compiler) load(path string) (*engine.Template, error) {
	ctx := context.Background()

	if _, err := os.Stat(path); err != nil {
		c.metrics.ObserveCacheLookup(metrics.CacheMiss)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, reporterrors.NewNotFoundError(reporterrors.CodeTemplateNotFound, "template not found").WithFile(path)
		}
		return nil, reporterrors.NewIOError(reporterrors.CodeTemplateRead, "failed to stat template", err).WithFile(path)
	}

	if engine.IsCompiled(path) {
		return c.loadArtifact(path)
	}

	compiledPath := c.CompiledPath(path)
	if c.diskArtifactUsable(path, compiledPath) {
		if t, err := c.readArtifact(compiledPath); err != nil {
			c.logger.Warn(ctx, err, "failed to load precompiled template, recompiling", "path", compiledPath)
		} else {
			c.store(path, t)
			atomic.AddInt64(&c.diskHits, 1)
			c.metrics.ObserveCacheLookup(metrics.CacheDisk)
			c.logger.Debug(ctx, "loaded precompiled template", "path", compiledPath)
			return t, nil
		}
	}

	c.metrics.ObserveCacheLookup(metrics.CacheMiss)

	t, err := c.compileSource(path)
	if err != nil {
		return nil, err
	}

	c.store(path, t)

	if c.opts.CacheEnabled {
		c.save(compiledPath, t)
	}

	return t, nil
}

// loadArtifact serves a template whose only form is a precompiled file.
func (c *Compiler) loadArtifact(path string) (*engine.Template, error) {
	c.metrics.ObserveCacheLookup(metrics.CacheDisk)

	t, err := c.readArtifact(path)
	if err != nil {
		return nil, reporterrors.Wrap(err, reporterrors.ErrorTypeCompile, reporterrors.CodeTemplateSyntax,
			"failed to load precompiled template").WithFile(path)
	}

	c.store(path, t)
	atomic.AddInt64(&c.diskHits, 1)

	return t, nil
}

func (c *Compiler) compileSource(path string) (*engine.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reporterrors.NewIOError(reporterrors.CodeTemplateRead, "failed to read template", err).WithFile(path)
	}

	start := time.Now()
	t, err := engine.Compile(data)
	c.metrics.ObserveCompile(time.Since(start), err)
	atomic.AddInt64(&c.compiles, 1)

	if err != nil {
		var re *reporterrors.ReportError
		if errors.As(err, &re) {
			return nil, re.WithFile(path)
		}
		return nil, reporterrors.NewCompileError(reporterrors.CodeTemplateSyntax, "failed to compile template", err).WithFile(path)
	}

	c.logger.Info(context.Background(), "compiled template", "path", path, "name", t.Name(), "duration", time.Since(start))

	return t, nil
}

func (c *Compiler) readArtifact(path string) (*engine.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return engine.Decode(data)
}

// save persists t to path. Failures are logged and swallowed.
func (c *Compiler) save(path string, t *engine.Template) {
	ctx := context.Background()

	data, err := engine.Encode(t)
	if err != nil {
		c.logger.Warn(ctx, err, "failed to encode compiled template", "path", path)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.logger.Warn(ctx, err, "failed to create cache directory", "path", path)
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn(ctx, err, "failed to save compiled template to cache", "path", path)
		return
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		c.logger.Warn(ctx, err, "failed to save compiled template to cache", "path", path)
		return
	}

	c.logger.Debug(ctx, "saved compiled template to cache", "path", path)
}

// store records t under path together with the current source mtime.
func (c *Compiler) store(path string, t *engine.Template) {
	entry := &cacheEntry{template: t}
	if info, err := os.Stat(path); err == nil {
		entry.sourceModTime = info.ModTime()
		entry.recorded = true
	}

	c.mutex.Lock()
	c.entries[path] = entry
	c.mutex.Unlock()
}

// CompiledPath returns where the precompiled artifact of a source lives. In
// the shared cache directory the name carries a checksum of the absolute
// source path, so sources with the same base name in different directories
// get distinct artifacts. Without a cache directory the artifact sits next to
// the source.
func (c *Compiler) CompiledPath(path string) string {
	base := engine.BaseName(path)
	if c.opts.CacheEnabled && c.opts.CacheDirectory != "" {
		return filepath.Join(c.opts.CacheDirectory, base+"-"+sourceKey(path)+engine.CompiledExt)
	}

	return filepath.Join(filepath.Dir(path), base+engine.CompiledExt)
}

func sourceKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(filepath.Clean(path))))
}

// NeedsRecompilation reports whether the memory entry for path is stale.
func (c *Compiler) NeedsRecompilation(path string) bool {
	if !c.opts.RecompileOnChange {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	c.mutex.RLock()
	entry, ok := c.entries[path]
	c.mutex.RUnlock()

	if !ok || !entry.recorded {
		return true
	}

	return info.ModTime().After(entry.sourceModTime)
}

// diskArtifactUsable reports whether the artifact exists and is not older
// than its source.
func (c *Compiler) diskArtifactUsable(source, artifact string) bool {
	artifactInfo, err := os.Stat(artifact)
	if err != nil {
		return false
	}

	if !c.opts.RecompileOnChange {
		return true
	}

	sourceInfo, err := os.Stat(source)
	if err != nil {
		return false
	}

	return !sourceInfo.ModTime().After(artifactInfo.ModTime())
}

// Clear drops the memory entry for path.
func (c *Compiler) Clear(path string) {
	c.mutex.Lock()
	delete(c.entries, path)
	c.mutex.Unlock()

	c.logger.Debug(context.Background(), "cleared cache", "path", path)
}

// ClearAll drops every memory entry.
func (c *Compiler) ClearAll() {
	c.mutex.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mutex.Unlock()

	c.logger.Info(context.Background(), "cleared all compiled templates")
}

// Size returns the number of memory entries.
func (c *Compiler) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Compiler) Stats() CacheStats {
	return CacheStats{
		MemoryHits: atomic.LoadInt64(&c.memoryHits),
		DiskHits:   atomic.LoadInt64(&c.diskHits),
		Compiles:   atomic.LoadInt64(&c.compiles),
		Entries:    c.Size(),
	}
}
