// Package di wires the report pipeline from configuration. Services are
// registered as factories and created lazily on first use, so a command that
// only lists reports never opens a database.
package di

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/reports/internal/compiler"
	"github.com/conneroisu/reports/internal/config"
	"github.com/conneroisu/reports/internal/datasource"
	"github.com/conneroisu/reports/internal/discovery"
	"github.com/conneroisu/reports/internal/embedded"
	"github.com/conneroisu/reports/internal/generation"
	"github.com/conneroisu/reports/internal/logging"
	"github.com/conneroisu/reports/internal/metadata"
	"github.com/conneroisu/reports/internal/metrics"
)

// Service names.
const (
	ServiceLogger     = "logger"
	ServiceMetrics    = "metrics"
	ServiceLoader     = "loader"
	ServiceCompiler   = "compiler"
	ServiceDataSource = "datasource"
	ServiceDiscovery  = "discovery"
	ServiceGeneration = "generation"
)

// openTimeout bounds the initial database ping.
const openTimeout = 10 * time.Second

// FactoryFunc creates a service, resolving its dependencies through r.
type FactoryFunc func(r Resolver) (interface{}, error)

// Resolver resolves dependencies from inside a factory.
type Resolver interface {
	Get(name string) (interface{}, error)
}

// Definition describes a registered service.
type Definition struct {
	Name         string
	Singleton    bool
	Dependencies []string
}

// Registration configures a service after Register.
type Registration struct {
	name      string
	container *Container
}

// Container manages the pipeline services.
type Container struct {
	config   *config.Config
	embedded fs.FS
	logger   logging.Logger

	definitions map[string]Definition
	factories   map[string]FactoryFunc
	singletons  map[string]interface{}
	creating    map[string]*sync.WaitGroup
	mu          sync.RWMutex
	initialized bool
}

// Option customises a Container.
type Option func(*Container)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger logging.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithEmbedded replaces the embedded bundle selected by the configuration.
func WithEmbedded(fsys fs.FS) Option {
	return func(c *Container) {
		c.embedded = fsys
	}
}

// NewContainer creates an empty container for cfg.
func NewContainer(cfg *config.Config, opts ...Option) *Container {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Container{
		config:      cfg,
		definitions: make(map[string]Definition),
		factories:   make(map[string]FactoryFunc),
		singletons:  make(map[string]interface{}),
		creating:    make(map[string]*sync.WaitGroup),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register adds a service created anew on every Get.
func (c *Container) Register(name string, factory FactoryFunc) *Registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.definitions[name] = Definition{Name: name}
	c.factories[name] = factory

	return &Registration{name: name, container: c}
}

// RegisterSingleton adds a service created once on first Get.
func (c *Container) RegisterSingleton(name string, factory FactoryFunc) *Registration {
	r := c.Register(name, factory)

	c.mu.Lock()
	def := c.definitions[name]
	def.Singleton = true
	c.definitions[name] = def
	c.mu.Unlock()

	return r
}

// RegisterInstance adds an already created singleton.
func (c *Container) RegisterInstance(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.definitions[name] = Definition{Name: name, Singleton: true}
	c.singletons[name] = instance
}

// DependsOn records the services name needs. It is informational; the
// factory resolves them.
func (r *Registration) DependsOn(names ...string) *Registration {
	r.container.mu.Lock()
	defer r.container.mu.Unlock()

	def := r.container.definitions[r.name]
	def.Dependencies = append(def.Dependencies, names...)
	r.container.definitions[r.name] = def

	return r
}

// Get returns the named service.
func (c *Container) Get(name string) (interface{}, error) {
	return c.get(name, make(map[string]bool))
}

// MustGet is Get that panics on failure.
func (c *Container) MustGet(name string) interface{} {
	v, err := c.Get(name)
	if err != nil {
		panic(fmt.Sprintf("failed to get service '%s': %v", name, err))
	}

	return v
}

// Has reports whether name is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.definitions[name]
	return ok
}

// Definition returns the registration of name.
func (c *Container) Definition(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.definitions[name]
	return def, ok
}

// ListServices returns the registered names in order.
func (c *Container) ListServices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.definitions))
	for name := range c.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

type resolver struct {
	container *Container
	resolving map[string]bool
}

func (r *resolver) Get(name string) (interface{}, error) {
	return r.container.get(name, r.resolving)
}

func (c *Container) get(name string, resolving map[string]bool) (interface{}, error) {
	if resolving[name] {
		return nil, fmt.Errorf("circular dependency detected for service '%s'", name)
	}

	c.mu.RLock()
	def, ok := c.definitions[name]
	factory := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("service '%s' not registered", name)
	}

	if !def.Singleton {
		return c.create(name, factory, resolving)
	}

	for {
		c.mu.Lock()
		if v, ok := c.singletons[name]; ok {
			c.mu.Unlock()
			return v, nil
		}
		wg, busy := c.creating[name]
		if !busy {
			break
		}
		c.mu.Unlock()
		// Another goroutine is creating it; wait and look again, which
		// also covers a failed creation.
		wg.Wait()
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.creating[name] = wg
	c.mu.Unlock()

	v, err := c.create(name, factory, resolving)

	c.mu.Lock()
	delete(c.creating, name)
	if err == nil {
		c.singletons[name] = v
	}
	c.mu.Unlock()
	wg.Done()

	if err != nil {
		return nil, err
	}

	return v, nil
}

func (c *Container) create(name string, factory FactoryFunc, resolving map[string]bool) (interface{}, error) {
	if factory == nil {
		return nil, fmt.Errorf("service '%s' has no factory", name)
	}

	resolving[name] = true
	defer delete(resolving, name)

	v, err := factory(&resolver{container: c, resolving: resolving})
	if err != nil {
		return nil, fmt.Errorf("failed to create service '%s': %w", name, err)
	}

	return v, nil
}

// Initialize registers the pipeline services.
func (c *Container) Initialize() error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.mu.Unlock()

	cfg := c.config

	c.RegisterSingleton(ServiceLogger, func(Resolver) (interface{}, error) {
		if c.logger != nil {
			return c.logger, nil
		}
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		return logging.NewLogger(&logging.LoggerConfig{Level: level, Format: cfg.Logging.Format}), nil
	})

	c.RegisterSingleton(ServiceMetrics, func(Resolver) (interface{}, error) {
		if !cfg.Metrics.Enabled {
			return (*metrics.Metrics)(nil), nil
		}
		return metrics.New(), nil
	})

	c.RegisterSingleton(ServiceLoader, func(r Resolver) (interface{}, error) {
		logger, err := resolveLogger(r)
		if err != nil {
			return nil, err
		}
		return metadata.NewLoader(logger), nil
	}).DependsOn(ServiceLogger)

	c.RegisterSingleton(ServiceCompiler, func(r Resolver) (interface{}, error) {
		logger, err := resolveLogger(r)
		if err != nil {
			return nil, err
		}
		m, err := resolveMetrics(r)
		if err != nil {
			return nil, err
		}
		return compiler.New(compiler.Options{
			CacheEnabled:      cfg.Compilation.CacheEnabled,
			CacheDirectory:    cfg.Compilation.CacheDirectory,
			RecompileOnChange: cfg.Compilation.RecompileOnChange,
		}, logger, m), nil
	}).DependsOn(ServiceLogger, ServiceMetrics)

	c.RegisterSingleton(ServiceDataSource, func(r Resolver) (interface{}, error) {
		if !cfg.Database.Configured() {
			return (*datasource.Provider)(nil), nil
		}
		logger, err := resolveLogger(r)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		return datasource.Open(ctx, datasource.Options{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			Schema:          cfg.Database.Schema,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			Breaker: datasource.BreakerOptions{
				MaxRequests:      cfg.Database.Breaker.MaxRequests,
				Interval:         cfg.Database.Breaker.Interval,
				Timeout:          cfg.Database.Breaker.Timeout,
				FailureThreshold: cfg.Database.Breaker.FailureThreshold,
			},
		}, logger)
	}).DependsOn(ServiceLogger)

	c.RegisterSingleton(ServiceDiscovery, func(r Resolver) (interface{}, error) {
		logger, err := resolveLogger(r)
		if err != nil {
			return nil, err
		}
		m, err := resolveMetrics(r)
		if err != nil {
			return nil, err
		}
		loader, err := r.Get(ServiceLoader)
		if err != nil {
			return nil, err
		}
		return discovery.New(discovery.Options{
			ExternalEnabled: cfg.External.Enabled,
			ExternalPath:    cfg.External.Path,
			ScanInterval:    cfg.External.ScanInterval,
			Watch:           cfg.External.Watch,
			EmbeddedEnabled: cfg.Embedded.Enabled,
			Embedded:        c.bundle(),
		}, loader.(*metadata.Loader), logger, m), nil
	}).DependsOn(ServiceLogger, ServiceMetrics, ServiceLoader)

	c.RegisterSingleton(ServiceGeneration, func(r Resolver) (interface{}, error) {
		logger, err := resolveLogger(r)
		if err != nil {
			return nil, err
		}
		m, err := resolveMetrics(r)
		if err != nil {
			return nil, err
		}
		loader, err := r.Get(ServiceLoader)
		if err != nil {
			return nil, err
		}
		comp, err := r.Get(ServiceCompiler)
		if err != nil {
			return nil, err
		}
		disc, err := r.Get(ServiceDiscovery)
		if err != nil {
			return nil, err
		}
		ds, err := r.Get(ServiceDataSource)
		if err != nil {
			return nil, err
		}

		deps := generation.Dependencies{
			Catalog:     disc.(*discovery.Service),
			Compiler:    comp.(*compiler.Compiler),
			Connections: datasource.Unconfigured{},
			Schema:      datasource.Static(cfg.Database.Schema),
			Loader:      loader.(*metadata.Loader),
			Logger:      logger,
			Metrics:     m,
		}
		if provider := ds.(*datasource.Provider); provider != nil {
			deps.Connections = provider
			deps.Schema = provider
		}

		opts := generation.Options{
			MaxConcurrent: cfg.Generation.MaxConcurrent,
			Timeout:       cfg.Generation.Timeout,
			TempDirectory: cfg.Generation.TempDirectory,
		}
		if cfg.External.Enabled {
			opts.ExternalPath = cfg.External.Path
		}
		if cfg.Embedded.Enabled {
			opts.Embedded = c.bundle()
		}

		return generation.New(opts, deps)
	}).DependsOn(ServiceLogger, ServiceMetrics, ServiceLoader, ServiceCompiler, ServiceDiscovery, ServiceDataSource)

	return nil
}

func (c *Container) bundle() fs.FS {
	if c.embedded != nil {
		return c.embedded
	}

	return embedded.Open(c.config.Embedded.Path)
}

func resolveLogger(r Resolver) (logging.Logger, error) {
	v, err := r.Get(ServiceLogger)
	if err != nil {
		return nil, err
	}

	return v.(logging.Logger), nil
}

func resolveMetrics(r Resolver) (*metrics.Metrics, error) {
	v, err := r.Get(ServiceMetrics)
	if err != nil {
		return nil, err
	}

	return v.(*metrics.Metrics), nil
}

// Config returns the configuration the container was built with.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger.
func (c *Container) Logger() (logging.Logger, error) {
	return resolveLogger(c)
}

// Metrics returns the collectors, nil when metrics are disabled.
func (c *Container) Metrics() (*metrics.Metrics, error) {
	return resolveMetrics(c)
}

// Compiler returns the template compiler.
func (c *Container) Compiler() (*compiler.Compiler, error) {
	v, err := c.Get(ServiceCompiler)
	if err != nil {
		return nil, err
	}

	return v.(*compiler.Compiler), nil
}

// Discovery returns the discovery service. It has not scanned yet.
func (c *Container) Discovery() (*discovery.Service, error) {
	v, err := c.Get(ServiceDiscovery)
	if err != nil {
		return nil, err
	}

	return v.(*discovery.Service), nil
}

// Generation returns the generation service.
func (c *Container) Generation() (*generation.Service, error) {
	v, err := c.Get(ServiceGeneration)
	if err != nil {
		return nil, err
	}

	return v.(*generation.Service), nil
}

// Shutdown stops the created services in reverse dependency order.
func (c *Container) Shutdown() error {
	c.mu.Lock()
	created := c.singletons
	c.singletons = make(map[string]interface{})
	c.mu.Unlock()

	var errs []error

	if v, ok := created[ServiceGeneration]; ok {
		if err := v.(*generation.Service).Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", ServiceGeneration, err))
		}
	}
	if v, ok := created[ServiceDiscovery]; ok {
		v.(*discovery.Service).Stop()
	}
	if v, ok := created[ServiceDataSource]; ok {
		if provider := v.(*datasource.Provider); provider != nil {
			if err := provider.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", ServiceDataSource, err))
			}
		}
	}
	if v, ok := created[ServiceLogger]; ok {
		if s, ok := v.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}
