package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holmes/internal/domain"
	"holmes/internal/infra/coretools"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func fixtureConfig(t *testing.T) domain.AppConfig {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "builtin", "kubernetes.yaml"), `
toolsets:
  kubernetes/core:
    enabled: true
    prerequisites:
      - enabled: true
    tools:
      - name: kubectl_version
        command: echo v1
`)
	writeFile(t, filepath.Join(dir, "custom.yaml"), `
toolsets:
  grafana:
    enabled: false
    prerequisites:
      - env: [HOLMES_TEST_GRAFANA_URL_UNSET]
    tools:
      - name: dashboards
        command: echo dashboards
`)
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
builtinDir: builtin
customToolsetPaths: [custom.yaml]
toolsets:
  grafana:
    enabled: true
statusCache:
  path: cache/status.json
sessions:
  archivePath: state/tasks.db
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func statuses(toolsets []domain.Toolset) map[string]domain.ToolsetStatus {
	out := make(map[string]domain.ToolsetStatus, len(toolsets))
	for _, toolset := range toolsets {
		out[toolset.Name] = toolset.Status
	}
	return out
}

func TestInitializeApplication_LoadAndReuseCache(t *testing.T) {
	cfg := fixtureConfig(t)
	ctx := context.Background()

	application, cleanup, err := InitializeApplication(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "starting", application.Health().Status)

	report, err := application.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCacheStale, report.Outcome)
	assert.ElementsMatch(t, []string{coretools.ToolsetName, "grafana", "kubernetes/core"}, report.Evaluated)
	assert.Empty(t, application.Issues())

	assert.Equal(t, map[string]domain.ToolsetStatus{
		coretools.ToolsetName: domain.ToolsetStatusEnabled,
		"grafana":             domain.ToolsetStatusFailed,
		"kubernetes/core":     domain.ToolsetStatusEnabled,
	}, statuses(application.Toolsets()))
	assert.FileExists(t, cfg.StatusCache.Path)

	health := application.Health()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Toolsets[string(domain.ToolsetStatusFailed)])

	result := application.Invoke(ctx, coretools.ToolsetName, "todo_write", map[string]any{
		"session_id": "incident-1",
		"tasks":      []any{map[string]any{"content": "check pods"}},
	})
	require.Equal(t, domain.ToolResultSuccess, result.Status, result.Error)
	cleanup()

	restarted, cleanup, err := InitializeApplication(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	report, err = restarted.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCacheHit, report.Outcome)
	assert.Empty(t, report.Evaluated)
	assert.Equal(t, domain.ToolsetStatusFailed, statuses(restarted.Toolsets())["grafana"])

	read := restarted.Invoke(ctx, coretools.ToolsetName, "todo_read", map[string]any{"session_id": "incident-1"})
	require.Equal(t, domain.ToolResultSuccess, read.Status, read.Error)
	assert.Contains(t, read.Data, "check pods")
}

func TestApplication_RefreshAndValidate(t *testing.T) {
	cfg := fixtureConfig(t)
	ctx := context.Background()

	application, cleanup, err := InitializeApplication(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	report, err := application.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Evaluated, 3)

	report, err = application.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCacheForced, report.Outcome)
	assert.Len(t, report.Evaluated, 3)

	result, err := application.Validate(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
	assert.Len(t, result.Toolsets, 3)
	for _, toolset := range result.Toolsets {
		assert.Equal(t, domain.ToolsetStatusUnknown, toolset.Status)
	}
}

func TestApplication_Reconfigure(t *testing.T) {
	cfg := fixtureConfig(t)
	ctx := context.Background()

	application, cleanup, err := InitializeApplication(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	_, err = application.Load(ctx)
	require.NoError(t, err)

	next := cfg
	next.Toolsets = map[string]map[string]any{"grafana": {"enabled": false}}
	application.Reconfigure(next)
	assert.Equal(t, next.Toolsets, application.Config().Toolsets)

	report, err := application.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCacheStale, report.Outcome)
	assert.Equal(t, domain.ToolsetStatusUnknown, statuses(application.Toolsets())["grafana"])
}
