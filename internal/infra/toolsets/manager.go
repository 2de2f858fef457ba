// Package toolsets owns the loaded toolsets and decides which are usable.
package toolsets

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/catalog"
	"holmes/internal/infra/statuscache"
	"holmes/internal/infra/telemetry"
)

// DefinitionLoader builds toolsets from their definitions.
type DefinitionLoader interface {
	Load(ctx context.Context, src catalog.Source) (catalog.Result, error)
}

// PrerequisiteEvaluator sets a toolset's status from its prerequisites.
type PrerequisiteEvaluator interface {
	Evaluate(ctx context.Context, toolset *domain.Toolset)
}

// StatusStore persists toolset statuses between runs.
type StatusStore interface {
	Read() statuscache.Snapshot
	Write(toolsets []*domain.Toolset, contentHash string) error
}

// Options configures a Manager.
type Options struct {
	Logger    *zap.Logger
	Loader    DefinitionLoader
	Evaluator PrerequisiteEvaluator
	Store     StatusStore
	Metrics   domain.Metrics
	Source    catalog.Source
	// HashConfig is the configuration folded into the content hash.
	HashConfig map[string]any
	Version    string
	MaxAge     time.Duration
	Now        func() time.Time
}

// RefreshReport summarizes one status refresh.
type RefreshReport struct {
	Outcome   domain.StatusCacheOutcome `json:"outcome"`
	Evaluated []string                  `json:"evaluated,omitempty"`
	Adopted   []string                  `json:"adopted,omitempty"`
}

// Manager loads toolsets and drives prerequisite evaluation through the status cache.
type Manager struct {
	logger     *zap.Logger
	loader     DefinitionLoader
	evaluator  PrerequisiteEvaluator
	store      StatusStore
	metrics    domain.Metrics
	source     catalog.Source
	hashConfig map[string]any
	version    string
	maxAge     time.Duration
	now        func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	toolsets    []*domain.Toolset
	byName      map[string]*domain.Toolset
	issues      []catalog.Issue
	contentHash string
	loaded      bool
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("toolset loader is required")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("prerequisite evaluator is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = domain.DefaultStatusCacheMaxAge
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		logger:     logger.Named("toolsets"),
		loader:     opts.Loader,
		evaluator:  opts.Evaluator,
		store:      opts.Store,
		metrics:    opts.Metrics,
		source:     opts.Source,
		hashConfig: opts.HashConfig,
		version:    opts.Version,
		maxAge:     maxAge,
		now:        now,
		byName:     make(map[string]*domain.Toolset),
	}, nil
}

// Load reads every definition, computes the content hash and refreshes
// statuses, reusing the status cache when it is still valid.
func (m *Manager) Load(ctx context.Context) (RefreshReport, error) {
	m.mu.RLock()
	source := m.source
	hashConfig := m.hashConfig
	m.mu.RUnlock()

	result, err := m.loader.Load(ctx, source)
	if err != nil {
		return RefreshReport{}, domain.Wrap(domain.CodeLoadFailed, "load toolsets", err)
	}
	hash, err := statuscache.ComputeContentHash(statuscache.HashInput{
		Version:     m.version,
		Config:      hashConfig,
		CustomPaths: source.CustomPaths,
		BuiltinDir:  source.BuiltinDir,
	})
	if err != nil {
		return RefreshReport{}, domain.Wrap(domain.CodeInternal, "compute content hash", err)
	}

	byName := make(map[string]*domain.Toolset, len(result.Toolsets))
	for _, toolset := range result.Toolsets {
		byName[toolset.Name] = toolset
	}

	m.refreshMu.Lock()
	m.mu.Lock()
	m.toolsets = result.Toolsets
	m.byName = byName
	m.issues = result.Issues
	m.contentHash = hash
	m.loaded = true
	m.mu.Unlock()
	m.refreshMu.Unlock()

	m.logger.Info("toolsets loaded",
		zap.Int("toolsets", len(result.Toolsets)),
		zap.Int("issues", len(result.Issues)),
		zap.String("content_hash", hash),
	)
	return m.RefreshStatuses(ctx, false)
}

// RefreshStatuses settles the status of every in-scope toolset. Prerequisites
// are re-evaluated only when forced or when the status cache is stale for the
// current content hash; otherwise cached statuses are adopted unchanged.
// Toolsets absent from a valid cache are evaluated individually.
func (m *Manager) RefreshStatuses(ctx context.Context, force bool) (RefreshReport, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	hash := m.contentHash
	work := make([]*domain.Toolset, 0, len(m.toolsets))
	for _, toolset := range m.toolsets {
		copied := *toolset
		work = append(work, &copied)
	}
	m.mu.RUnlock()

	report := RefreshReport{Outcome: domain.StatusCacheForced}
	var snapshot statuscache.Snapshot
	if !force {
		snapshot = m.store.Read()
		if snapshot.Stale(hash, m.maxAge, m.now()) {
			report.Outcome = domain.StatusCacheStale
		} else {
			report.Outcome = domain.StatusCacheHit
		}
	}
	m.observeCache(report.Outcome)

	inScope := make([]*domain.Toolset, 0, len(work))
	for _, toolset := range work {
		if !toolset.Enabled {
			toolset.ResetStatus()
			continue
		}
		if err := ctx.Err(); err != nil {
			return RefreshReport{}, err
		}
		inScope = append(inScope, toolset)
		if report.Outcome == domain.StatusCacheHit {
			if entry, ok := snapshot.Toolsets[toolset.Name]; ok {
				toolset.SetStatus(entry.Status, entry.Error)
				report.Adopted = append(report.Adopted, toolset.Name)
				continue
			}
		}
		m.evaluator.Evaluate(ctx, toolset)
		report.Evaluated = append(report.Evaluated, toolset.Name)
		if toolset.Status == domain.ToolsetStatusFailed {
			m.logger.Warn("toolset disabled by failed prerequisite",
				telemetry.ToolsetField(toolset.Name),
				zap.String("reason", toolset.Error),
			)
			continue
		}
		m.discoverTools(ctx, toolset)
	}

	m.mu.Lock()
	for _, toolset := range work {
		if live, ok := m.byName[toolset.Name]; ok {
			live.SetStatus(toolset.Status, toolset.Error)
			live.Tools = toolset.Tools
			live.DiscoverTools = toolset.DiscoverTools
		}
	}
	m.mu.Unlock()

	if report.Outcome != domain.StatusCacheHit || len(report.Evaluated) > 0 {
		if err := m.store.Write(inScope, hash); err != nil {
			m.logger.Warn("status cache write failed",
				telemetry.EventField(telemetry.EventStatusCacheWrite),
				zap.Error(err),
			)
		}
	}
	m.publishCounts(inScope)

	event := telemetry.EventStatusCacheStale
	if report.Outcome == domain.StatusCacheHit {
		event = telemetry.EventStatusCacheHit
	}
	m.logger.Debug("toolset statuses refreshed",
		telemetry.EventField(event),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("evaluated", len(report.Evaluated)),
		zap.Int("adopted", len(report.Adopted)),
	)
	return report, nil
}

// discoverTools attaches advertised tools to a usable toolset. A failed
// discovery is logged and retried on the next attempt.
func (m *Manager) discoverTools(ctx context.Context, toolset *domain.Toolset) {
	if toolset.DiscoverTools == nil || !toolset.Usable() {
		return
	}
	tools, err := toolset.DiscoverTools(ctx)
	if err != nil {
		m.logger.Warn("tool discovery failed",
			telemetry.ToolsetField(toolset.Name),
			zap.Error(err),
		)
		return
	}
	toolset.Tools = append(append([]domain.Tool(nil), toolset.Tools...), tools...)
	toolset.DiscoverTools = nil
}

// ensureTools runs pending discovery for a usable toolset whose status was
// adopted from the cache.
func (m *Manager) ensureTools(ctx context.Context, name string) {
	m.mu.RLock()
	live, ok := m.byName[name]
	pending := ok && live.DiscoverTools != nil && live.Usable()
	m.mu.RUnlock()
	if !pending {
		return
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.mu.RLock()
	current, ok := m.byName[name]
	if !ok || current != live {
		m.mu.RUnlock()
		return
	}
	copied := *live
	m.mu.RUnlock()

	m.discoverTools(ctx, &copied)
	if copied.DiscoverTools != nil {
		return
	}
	m.mu.Lock()
	live.Tools = copied.Tools
	live.DiscoverTools = nil
	m.mu.Unlock()
}

// Reconfigure replaces the definition inputs used by the next Load.
func (m *Manager) Reconfigure(source catalog.Source, hashConfig map[string]any) {
	m.mu.Lock()
	m.source = source
	m.hashConfig = hashConfig
	m.mu.Unlock()
}

// Source returns the definition inputs of the next Load.
func (m *Manager) Source() catalog.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// Toolsets returns every loaded toolset sorted by name.
func (m *Manager) Toolsets() []domain.Toolset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Toolset, 0, len(m.toolsets))
	for _, toolset := range m.toolsets {
		out = append(out, domain.CloneToolsetSummary(toolset))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns the toolsets that are requested and passing their prerequisites.
func (m *Manager) Enabled() []domain.Toolset {
	all := m.Toolsets()
	out := all[:0]
	for i := range all {
		if all[i].Usable() {
			out = append(out, all[i])
		}
	}
	return out
}

// Get returns the named toolset.
func (m *Manager) Get(name string) (domain.Toolset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	toolset, ok := m.byName[name]
	if !ok {
		return domain.Toolset{}, fmt.Errorf("%w: %s", domain.ErrToolsetNotFound, name)
	}
	return domain.CloneToolsetSummary(toolset), nil
}

// Issues returns the definitions skipped during the last load.
func (m *Manager) Issues() []catalog.Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]catalog.Issue(nil), m.issues...)
}

// ContentHash returns the hash computed by the last load.
func (m *Manager) ContentHash() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentHash
}

// Loaded reports whether Load has completed at least once.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// StatusCounts tallies in-scope toolsets by status.
func (m *Manager) StatusCounts() map[domain.ToolsetStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.ToolsetStatus]int)
	for _, toolset := range m.toolsets {
		if toolset.Enabled {
			counts[toolset.Status]++
		}
	}
	return counts
}

func (m *Manager) observeCache(outcome domain.StatusCacheOutcome) {
	if m.metrics == nil {
		return
	}
	m.metrics.ObserveStatusCache(outcome)
}

func (m *Manager) publishCounts(inScope []*domain.Toolset) {
	if m.metrics == nil {
		return
	}
	counts := make(map[domain.ToolsetStatus]int)
	for _, toolset := range inScope {
		counts[toolset.Status]++
	}
	m.metrics.SetToolsetsByStatus(counts)
}
