package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/catalog"
	"holmes/internal/infra/telemetry"
	"holmes/internal/infra/toolsets"
)

// Application ties configuration to the toolset manager.
type Application struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	manager  *toolsets.Manager
	loader   *catalog.Loader

	mu  sync.RWMutex
	cfg domain.AppConfig
}

func NewApplication(cfg domain.AppConfig, logger *zap.Logger, registry *prometheus.Registry, manager *toolsets.Manager, loader *catalog.Loader) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		logger:   logger.Named("app"),
		registry: registry,
		manager:  manager,
		loader:   loader,
		cfg:      cfg,
	}
}

func (a *Application) Config() domain.AppConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Load reads every definition and settles toolset statuses.
func (a *Application) Load(ctx context.Context) (toolsets.RefreshReport, error) {
	return a.manager.Load(ctx)
}

// Refresh re-evaluates statuses, loading definitions first when needed.
func (a *Application) Refresh(ctx context.Context, force bool) (toolsets.RefreshReport, error) {
	if !a.manager.Loaded() {
		report, err := a.manager.Load(ctx)
		if err != nil || !force || report.Outcome != domain.StatusCacheHit {
			return report, err
		}
	}
	return a.manager.RefreshStatuses(ctx, force)
}

// Validate loads definitions without evaluating prerequisites or touching
// the status cache.
func (a *Application) Validate(ctx context.Context) (catalog.Result, error) {
	return a.loader.Load(ctx, a.manager.Source())
}

func (a *Application) Toolsets() []domain.Toolset {
	return a.manager.Toolsets()
}

func (a *Application) Issues() []catalog.Issue {
	return a.manager.Issues()
}

func (a *Application) Invoke(ctx context.Context, toolset, tool string, params map[string]any) domain.ToolResult {
	return a.manager.Invoke(ctx, toolset, tool, params)
}

func (a *Application) Health() telemetry.HealthReport {
	if !a.manager.Loaded() {
		return telemetry.HealthReport{Status: "starting"}
	}
	counts := a.manager.StatusCounts()
	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return telemetry.HealthReport{Status: "ok", Toolsets: out}
}

// Reconfigure swaps in a new configuration for the next load. Only the
// toolset inputs take effect; other settings need a restart.
func (a *Application) Reconfigure(cfg domain.AppConfig) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.manager.Reconfigure(sourceFromConfig(cfg), hashConfigFrom(cfg))
}

// Serve loads toolsets, then watches definitions and serves metrics until
// ctx is done. configPath may be empty, in which case only definition files
// are watched.
func (a *Application) Serve(ctx context.Context, configPath string) error {
	if _, err := a.Load(ctx); err != nil {
		return err
	}

	if configPath != "" {
		resolved, err := expandHome(configPath)
		if err != nil {
			return err
		}
		if configPath, err = filepath.Abs(resolved); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.Config()
	serverErr := make(chan error, 1)
	if cfg.Observability.Enabled {
		go func() {
			serverErr <- telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
				Addr:          cfg.Observability.ListenAddress,
				EnableMetrics: true,
				EnableHealthz: true,
				Health:        a.Health,
				Registry:      a.registry,
			}, a.logger)
		}()
	}

	watcher, err := NewWatcher(WatcherOptions{
		Logger:  a.logger,
		Targets: func() WatchTargets { return a.watchTargets(configPath) },
		Reload: func(ctx context.Context, configChanged bool) error {
			return a.reload(ctx, configPath, configChanged)
		},
	})
	if err != nil {
		return err
	}
	a.logger.Info("watching toolset definitions",
		zap.String("config", configPath),
		zap.Bool("observability", cfg.Observability.Enabled),
	)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Run(ctx)
	}()

	select {
	case err := <-serverErr:
		cancel()
		<-watchErr
		if err != nil {
			return fmt.Errorf("serve observability: %w", err)
		}
		return nil
	case err := <-watchErr:
		cancel()
		if cfg.Observability.Enabled {
			<-serverErr
		}
		return err
	}
}

func (a *Application) reload(ctx context.Context, configPath string, configChanged bool) error {
	if configChanged && configPath != "" {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		a.Reconfigure(cfg)
	}
	report, err := a.Load(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("toolsets reloaded",
		zap.Bool("config_changed", configChanged),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("evaluated", len(report.Evaluated)),
	)
	return nil
}

func (a *Application) watchTargets(configPath string) WatchTargets {
	cfg := a.Config()
	targets := WatchTargets{
		ConfigPath: configPath,
		Files:      append([]string(nil), cfg.CustomToolsetPaths...),
	}
	if cfg.BuiltinDir != "" {
		targets.Dirs = []string{cfg.BuiltinDir}
	}
	return targets
}
