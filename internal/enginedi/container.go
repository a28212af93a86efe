// Package enginedi hand-wires the memory engine's dependency graph:
// configuration, structured logging, metrics, optional tracing, the
// injected StorageProvider/Embedder/Chat, and the composed
// facade.MemoryManager. Grounded on the teacher's internal/di package —
// its ConfigProviders / InfrastructureProviders / DomainProviders /
// ApplicationProviders grouping from providers.go and wire_sets.go — but
// hand-wired with plain constructor calls instead of generated Wire code,
// since the engine has a single concrete wiring (no per-environment
// provider swapping at build time beyond the StorageProvider the caller
// passes in).
package enginedi

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"agentmem/internal/capability"
	"agentmem/internal/facade"
	"agentmem/internal/memconfig"
	"agentmem/internal/obslog"
	"agentmem/internal/obsmetrics"
	"agentmem/internal/obstrace"
)

// Options configures one Container build. Store is the only required
// field; Embedder/Chat/Metrics registry/tracing endpoint are all optional
// and degrade gracefully when omitted (the façade and its components
// already handle a nil Embedder/Chat per capability.Resolve's design).
type Options struct {
	Config             *memconfig.Config
	Store              capability.StorageProvider
	Embedder           capability.Embedder
	Chat               capability.Chat
	Dev                bool
	ServiceName        string
	TracingEndpoint    string               // empty disables tracing
	PrometheusRegistry *prometheus.Registry // nil disables metrics
}

// Container holds every top-level component an entrypoint (cmd/api,
// cmd/lambda, cmd/worker) needs, wired and ready to use.
type Container struct {
	Facade  *facade.MemoryManager
	Logger  *obslog.Logger
	Metrics *obsmetrics.Metrics
	Tracer  *obstrace.Provider
}

// Build assembles a Container from Options. It never starts goroutines
// itself beyond what facade.New already starts (connection discovery,
// decay batch runner) — tracing/metrics are passive collectors.
func Build(ctx context.Context, opts Options) (*Container, error) {
	if opts.Config == nil {
		cfg, err := memconfig.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		opts.Config = cfg
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("enginedi: a StorageProvider is required")
	}
	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "agentmem"
	}

	logger, err := obslog.New(opts.Dev)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	var metrics *obsmetrics.Metrics
	if opts.PrometheusRegistry != nil {
		metrics = obsmetrics.New(opts.PrometheusRegistry)
	}

	var tracer *obstrace.Provider
	if opts.TracingEndpoint != "" {
		tracer, err = obstrace.Init(ctx, serviceName, opts.Config.Environment, opts.TracingEndpoint)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	mgr := facade.New(opts.Store, opts.Embedder, opts.Chat, opts.Config)

	return &Container{
		Facade:  mgr,
		Logger:  logger.For(serviceName),
		Metrics: metrics,
		Tracer:  tracer,
	}, nil
}

// Close shuts down the façade (stopping its background workers and
// flushing pending decay writes), then the tracer, mirroring the
// teacher's container shutdown ordering (application layer first,
// cross-cutting infrastructure last).
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	if c.Facade != nil {
		if err := c.Facade.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return firstErr
}
