package app

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/catalog"
	"holmes/internal/infra/coretools"
	"holmes/internal/infra/prereq"
	"holmes/internal/infra/process"
	"holmes/internal/infra/remote"
	"holmes/internal/infra/sessions"
	"holmes/internal/infra/statuscache"
	"holmes/internal/infra/telemetry"
	"holmes/internal/infra/toolsets"
	"holmes/internal/infra/ttlcache"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewRunner() process.Runner {
	return process.Shell{Env: process.LoginPATHEnv(os.Environ())}
}

func NewEvaluator(cfg domain.AppConfig, logger *zap.Logger, runner process.Runner, metrics domain.Metrics) *prereq.Evaluator {
	return prereq.NewEvaluator(prereq.Options{
		Logger:  logger,
		Runner:  runner,
		Timeout: cfg.Prerequisites.Timeout,
		Metrics: metrics,
	})
}

func NewSweeper(logger *zap.Logger) (*ttlcache.Sweeper, func()) {
	sweeper := ttlcache.NewSweeper(logger)
	return sweeper, sweeper.Stop
}

// NewRemoteToolCache returns nil when remote tool caching is disabled.
func NewRemoteToolCache(cfg domain.AppConfig, logger *zap.Logger, sweeper *ttlcache.Sweeper) (*ttlcache.Cache[[]domain.RemoteTool], func(), error) {
	if cfg.Remote.ToolCacheTTL <= 0 {
		return nil, func() {}, nil
	}
	cache, err := ttlcache.New[[]domain.RemoteTool](ttlcache.Options{
		TTL:     cfg.Remote.ToolCacheTTL,
		Sweeper: sweeper,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}

func NewMCPOpener(cfg domain.AppConfig) *remote.MCPOpener {
	return remote.NewMCPOpener(remote.MCPOpenerOptions{
		Version:    Version,
		MaxRetries: cfg.Remote.MaxRetries,
	})
}

func NewBridge(logger *zap.Logger, opener remote.SessionOpener, metrics domain.Metrics, cache *ttlcache.Cache[[]domain.RemoteTool]) (*remote.Bridge, func(), error) {
	bridge, err := remote.NewBridge(remote.Options{
		Logger:    logger,
		Opener:    opener,
		Metrics:   metrics,
		ToolCache: cache,
	})
	if err != nil {
		return nil, nil, err
	}
	return bridge, func() {
		if err := bridge.Close(); err != nil {
			logger.Warn("remote bridge close failed", zap.Error(err))
		}
	}, nil
}

// NewTaskArchive returns nil when no archive path is configured.
func NewTaskArchive(cfg domain.AppConfig, logger *zap.Logger) (*sessions.Archive, func(), error) {
	if cfg.Sessions.ArchivePath == "" {
		return nil, func() {}, nil
	}
	archive, err := sessions.OpenArchive(cfg.Sessions.ArchivePath)
	if err != nil {
		return nil, nil, err
	}
	return archive, func() {
		if err := archive.Close(); err != nil {
			logger.Warn("task archive close failed", zap.Error(err))
		}
	}, nil
}

func NewTaskStore(logger *zap.Logger, archive *sessions.Archive) *sessions.TaskStore {
	opts := sessions.TaskStoreOptions{Logger: logger}
	if archive != nil {
		opts.Archive = archive
	}
	return sessions.NewTaskStore(opts)
}

func NewHypothesisStore() *sessions.HypothesisStore {
	return sessions.NewHypothesisStore(nil)
}

func NewRegistry(tasks *sessions.TaskStore, hypotheses *sessions.HypothesisStore) (*catalog.Registry, error) {
	registry := catalog.NewRegistry()
	if err := coretools.Register(registry, coretools.Options{Tasks: tasks, Hypotheses: hypotheses}); err != nil {
		return nil, err
	}
	return registry, nil
}

func NewDefinitionLoader(cfg domain.AppConfig, logger *zap.Logger, registry *catalog.Registry, runner process.Runner, bridge *remote.Bridge) *catalog.Loader {
	return catalog.NewLoader(catalog.Options{
		Logger:         logger,
		Registry:       registry,
		Runner:         runner,
		CommandTimeout: cfg.Tools.CommandTimeout,
		Remote:         bridge,
	})
}

func NewStatusStore(cfg domain.AppConfig, logger *zap.Logger) *statuscache.Store {
	return statuscache.NewStore(statuscache.Options{
		Path:   cfg.StatusCache.Path,
		Logger: logger,
	})
}

func NewManager(cfg domain.AppConfig, logger *zap.Logger, loader *catalog.Loader, evaluator *prereq.Evaluator, store *statuscache.Store, metrics domain.Metrics) (*toolsets.Manager, error) {
	return toolsets.NewManager(toolsets.Options{
		Logger:     logger,
		Loader:     loader,
		Evaluator:  evaluator,
		Store:      store,
		Metrics:    metrics,
		Source:     sourceFromConfig(cfg),
		HashConfig: hashConfigFrom(cfg),
		Version:    Version,
		MaxAge:     cfg.StatusCache.MaxAge,
	})
}

func sourceFromConfig(cfg domain.AppConfig) catalog.Source {
	return catalog.Source{
		BuiltinDir:  cfg.BuiltinDir,
		CustomPaths: cfg.CustomToolsetPaths,
		Overrides:   cfg.Toolsets,
	}
}

// hashConfigFrom selects the configuration that can change a prerequisite
// outcome.
func hashConfigFrom(cfg domain.AppConfig) map[string]any {
	overrides := make(map[string]any, len(cfg.Toolsets))
	for name, definition := range cfg.Toolsets {
		overrides[name] = definition
	}
	return map[string]any{"toolsets": overrides}
}
