package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holmes/internal/domain"
)

func envLookup(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type fakeRemote struct {
	mu       sync.Mutex
	pingErr  error
	tools    []domain.RemoteTool
	listErr  error
	calls    []string
	lists    int
	endpoint domain.RemoteEndpoint
}

func (f *fakeRemote) Call(_ context.Context, endpoint domain.RemoteEndpoint, tool string, params map[string]any) domain.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tool)
	f.endpoint = endpoint
	return domain.SuccessResult("called " + tool)
}

func (f *fakeRemote) Ping(context.Context, domain.RemoteEndpoint) error {
	return f.pingErr
}

func (f *fakeRemote) ListTools(context.Context, domain.RemoteEndpoint) ([]domain.RemoteTool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.tools, f.listErr
}

func findToolset(t *testing.T, result Result, name string) *domain.Toolset {
	t.Helper()
	for _, toolset := range result.Toolsets {
		if toolset.Name == name {
			return toolset
		}
	}
	t.Fatalf("toolset %q not loaded; issues: %+v", name, result.Issues)
	return nil
}

func kubernetesBuiltin(seen *map[string]any) Builtin {
	return Builtin{
		Name:        "kubernetes/core",
		Description: "Read cluster state",
		Tags:        []string{"core"},
		Config: map[string]any{
			"context":    "default",
			"namespaces": []any{"default"},
			"auth":       map[string]any{"user": "viewer", "token": "none"},
		},
		Prerequisites: []domain.Prerequisite{domain.CommandPrerequisite("kubectl version --client", "")},
		Tools: func(config map[string]any) []domain.Tool {
			if seen != nil {
				*seen = config
			}
			return []domain.Tool{{Name: "kubectl_get", Invoke: func(context.Context, map[string]any) domain.ToolResult {
				return domain.SuccessResult("pods")
			}}}
		},
	}
}

func TestLoader_LayersBuiltinWithCustomDefinitions(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
toolsets:
  kubernetes/core:
    enabled: true
    config:
      namespaces: [payments]
      auth:
        token: "{{ env.KUBE_TOKEN }}"
`)
	var seen map[string]any
	registry := NewRegistry()
	registry.MustRegister(kubernetesBuiltin(&seen))

	loader := NewLoader(Options{Registry: registry, LookupEnv: envLookup(map[string]string{"KUBE_TOKEN": "t0k3n"})})
	result, err := loader.Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "kubernetes/core")
	wantConfig := map[string]any{
		"context":    "default",
		"namespaces": []any{"payments"},
		"auth":       map[string]any{"user": "viewer", "token": "t0k3n"},
	}
	if diff := cmp.Diff(wantConfig, toolset.Config); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantConfig, seen); diff != "" {
		t.Fatalf("builtin tools saw wrong config (-want +got):\n%s", diff)
	}
	assert.True(t, toolset.Enabled)
	assert.Equal(t, domain.ToolsetTypeBuiltin, toolset.Type)
	assert.Equal(t, domain.ToolsetStatusUnknown, toolset.Status)
	assert.Equal(t, custom, toolset.Path)
	assert.Equal(t, []string{"core"}, toolset.Tags)
	require.Len(t, toolset.Prerequisites, 1)
	require.Len(t, toolset.Tools, 1)
	assert.Equal(t, "kubectl_get", toolset.Tools[0].Name)
}

func TestLoader_BuiltinDefaultsToDisabled(t *testing.T) {
	builtinDir := t.TempDir()
	writeFile(t, builtinDir, "prometheus.yaml", `
toolsets:
  prometheus/metrics:
    description: Query Prometheus
    prerequisites:
      - env: [PROMETHEUS_URL]
    tools:
      - name: prom_query
        command: "curl -s {{ url }}"
        parameters:
          url:
            type: string
`)
	writeFile(t, builtinDir, "notes.txt", "ignored")

	result, err := NewLoader(Options{}).Load(context.Background(), Source{BuiltinDir: builtinDir})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "prometheus/metrics")
	assert.False(t, toolset.Enabled)
	assert.Equal(t, domain.ToolsetTypeBuiltin, toolset.Type)
	require.Len(t, toolset.Prerequisites, 1)
	assert.Equal(t, domain.PrerequisiteEnv, toolset.Prerequisites[0].Kind)
	tool, ok := toolset.Tool("prom_query")
	require.True(t, ok)
	assert.Equal(t, map[string]domain.ToolParameter{"url": {Type: "string", Required: true}}, tool.Parameters)
}

func TestLoader_InvalidDefinitionSkipped(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
toolsets:
  broken:
    tools:
      - name: no_command
  bad_prereq:
    prerequisites:
      - command: "true"
        env: [A]
    tools:
      - name: ok
        command: "true"
  scalar: 42
  healthy:
    tools:
      - name: uptime
        command: uptime
`)

	result, err := NewLoader(Options{}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)

	require.Len(t, result.Toolsets, 1)
	assert.Equal(t, "healthy", result.Toolsets[0].Name)
	assert.True(t, result.Toolsets[0].Enabled)
	assert.Equal(t, domain.ToolsetTypeCustom, result.Toolsets[0].Type)

	skipped := map[string]domain.ErrorCode{}
	for _, issue := range result.Issues {
		skipped[issue.Toolset] = issue.Code
		assert.Equal(t, custom, issue.Path)
	}
	assert.Equal(t, map[string]domain.ErrorCode{
		"bad_prereq": domain.CodeLoadFailed,
		"broken":     domain.CodeLoadFailed,
		"scalar":     domain.CodeLoadFailed,
	}, skipped)
}

func TestLoader_UnresolvedEnvSkipsOnlyThatToolset(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
toolsets:
  grafana:
    config:
      url: "{{ env.GRAFANA_URL }}"
    tools:
      - name: dashboards
        command: "curl {{ url }}"
  loki:
    config:
      url: "{{ env.LOKI_URL }}"
    tools:
      - name: logs
        command: "logcli query"
`)

	loader := NewLoader(Options{LookupEnv: envLookup(map[string]string{"LOKI_URL": "http://loki"})})
	result, err := loader.Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)

	require.Len(t, result.Toolsets, 1)
	assert.Equal(t, "loki", result.Toolsets[0].Name)
	assert.Equal(t, "http://loki", result.Toolsets[0].Config["url"])
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "grafana", result.Issues[0].Toolset)
	assert.Equal(t, domain.CodeConfigResolution, result.Issues[0].Code)
	assert.Contains(t, result.Issues[0].Message, "GRAFANA_URL")
}

func TestLoader_TOMLDefinitions(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.toml", `
[toolsets.disk]
description = "Disk usage"
tags = ["host"]

[toolsets.disk.config]
mount = "/var"

[[toolsets.disk.tools]]
name = "df"
command = "df -h {{ mount }}"

[toolsets.disk.tools.parameters.mount]
type = "string"
required = false
`)

	result, err := NewLoader(Options{}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "disk")
	assert.Equal(t, "Disk usage", toolset.Description)
	assert.Equal(t, map[string]any{"mount": "/var"}, toolset.Config)
	tool, ok := toolset.Tool("df")
	require.True(t, ok)
	assert.Equal(t, domain.ToolParameter{Type: "string", Required: false}, tool.Parameters["mount"])
}

func TestLoader_ConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
toolsets:
  datadog:
    config:
      site: datadoghq.com
      labels:
        team: sre
    tools:
      - name: dd_logs
        command: "dd logs"
`)

	result, err := NewLoader(Options{}).Load(context.Background(), Source{
		CustomPaths: []string{custom},
		Overrides: map[string]map[string]any{
			"datadog": {"enabled": false, "config": map[string]any{"labels": nil}},
		},
	})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "datadog")
	assert.False(t, toolset.Enabled)
	assert.Equal(t, map[string]any{"site": "datadoghq.com", "labels": nil}, toolset.Config)
	assert.Equal(t, custom, toolset.Path)
}

func TestLoader_OverrideWithoutDefinitionIsSkipped(t *testing.T) {
	result, err := NewLoader(Options{}).Load(context.Background(), Source{
		Overrides: map[string]map[string]any{"ghost": {"enabled": true}},
	})
	require.NoError(t, err)
	require.Empty(t, result.Toolsets)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "ghost", result.Issues[0].Toolset)
	assert.Contains(t, result.Issues[0].Message, "toolset defines no tools")
}

func TestLoader_UnreadableCustomFile(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "toolsets:\n  ok:\n    tools:\n      - name: t\n        command: \"true\"\n")
	missing := filepath.Join(dir, "missing.yaml")
	garbled := writeFile(t, dir, "garbled.yaml", "toolsets: [unclosed")

	result, err := NewLoader(Options{}).Load(context.Background(), Source{CustomPaths: []string{missing, garbled, good}})
	require.NoError(t, err)

	require.Len(t, result.Toolsets, 1)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, missing, result.Issues[0].Path)
	assert.Equal(t, garbled, result.Issues[1].Path)
}

func TestLoader_MCPServers(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
mcp_servers:
  remote_k8s:
    description: Remote cluster tools
    config:
      url: "http://mcp.internal:8080/mcp"
      headers:
        x-api-key: "{{ env.MCP_KEY }}"
`)
	remote := &fakeRemote{
		pingErr: errors.New("connection refused"),
		tools: []domain.RemoteTool{
			{Name: "list_pods", Description: "List pods", Parameters: map[string]domain.ToolParameter{"namespace": {Type: "string", Required: true}}},
		},
	}

	loader := NewLoader(Options{Remote: remote, LookupEnv: envLookup(map[string]string{"MCP_KEY": "k"})})
	result, err := loader.Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "remote_k8s")
	assert.Equal(t, domain.ToolsetTypeMCP, toolset.Type)
	assert.True(t, toolset.Enabled)
	require.NotNil(t, toolset.Remote)
	assert.Equal(t, domain.RemoteEndpoint{URL: "http://mcp.internal:8080/mcp", Headers: map[string]string{"X-Api-Key": "k"}}, *toolset.Remote)

	require.Len(t, toolset.Prerequisites, 1)
	passed, reason := toolset.Prerequisites[0].Callable(context.Background(), toolset.Config)
	assert.False(t, passed)
	assert.Equal(t, "failed to reach mcp server http://mcp.internal:8080/mcp: connection refused", reason)

	assert.Empty(t, toolset.Tools)
	assert.Zero(t, remote.lists)
	require.NotNil(t, toolset.DiscoverTools)
	toolset.Tools, err = toolset.DiscoverTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, remote.lists)

	tool, ok := toolset.Tool("list_pods")
	require.True(t, ok)
	got := tool.Invoke(context.Background(), map[string]any{"namespace": "default"})
	assert.Equal(t, domain.ToolResultSuccess, got.Status)
	assert.Equal(t, "called list_pods", got.Data)
	assert.Equal(t, map[string]any{"namespace": "default"}, got.Params)
	assert.Equal(t, []string{"list_pods"}, remote.calls)
}

func TestLoader_MCPDeclaredToolsSkipDiscovery(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
toolsets:
  runbooks:
    type: mcp
    config:
      url: "https://runbooks.example.com/mcp"
    tools:
      - name: search_runbooks
        parameters:
          query: {type: string}
`)
	remote := &fakeRemote{listErr: errors.New("discovery must not run")}

	result, err := NewLoader(Options{Remote: remote}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Issues)

	toolset := findToolset(t, result, "runbooks")
	require.Len(t, toolset.Tools, 1)
	assert.Equal(t, "search_runbooks", toolset.Tools[0].Name)
	assert.Nil(t, toolset.DiscoverTools)
	assert.Zero(t, remote.lists)
}

func TestLoader_MCPLoadDoesNotReachEndpoint(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
mcp_servers:
  remote_k8s:
    enabled: false
    config:
      url: "http://mcp.internal:8080/mcp"
  remote_logs:
    config:
      url: "http://logs.internal:8080/mcp"
`)
	remote := &fakeRemote{listErr: errors.New("unreachable")}

	result, err := NewLoader(Options{Remote: remote}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Issues)
	assert.False(t, findToolset(t, result, "remote_k8s").Enabled)
	assert.True(t, findToolset(t, result, "remote_logs").Enabled)
	assert.Zero(t, remote.lists)
	assert.Empty(t, remote.calls)

	_, err = findToolset(t, result, "remote_logs").DiscoverTools(context.Background())
	require.ErrorContains(t, err, "list tools of http://logs.internal:8080/mcp: unreachable")
}

func TestLoader_MCPValidation(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", `
mcp_servers:
  no_url:
    config: {}
  bad_url:
    config:
      url: "ftp://files"
`)

	result, err := NewLoader(Options{Remote: &fakeRemote{}}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Toolsets)
	require.Len(t, result.Issues, 2)
	assert.Contains(t, result.Issues[0].Message, "config.url must be a valid http(s) URL")
	assert.Contains(t, result.Issues[1].Message, "config.url is required")
}

func TestLoader_MCPRequiresRemoteExecutor(t *testing.T) {
	dir := t.TempDir()
	custom := writeFile(t, dir, "custom.yaml", "mcp_servers:\n  x:\n    config:\n      url: http://localhost:1/mcp\n")

	result, err := NewLoader(Options{}).Load(context.Background(), Source{CustomPaths: []string{custom}})
	require.NoError(t, err)
	require.Empty(t, result.Toolsets)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0].Message, "require a remote executor")
}

func TestLoader_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoader(Options{}).Load(ctx, Source{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(kubernetesBuiltin(nil)))
	require.ErrorIs(t, registry.Register(kubernetesBuiltin(nil)), domain.ErrInvalidDefinition)
	require.ErrorIs(t, registry.Register(Builtin{Name: " "}), domain.ErrInvalidDefinition)
	require.ErrorIs(t, registry.Register(Builtin{Name: "no-tools"}), domain.ErrInvalidDefinition)
	require.Error(t, registry.Register(Builtin{
		Name:          "bad-prereq",
		Tools:         func(map[string]any) []domain.Tool { return nil },
		Prerequisites: []domain.Prerequisite{{Kind: domain.PrerequisiteCommand}},
	}))

	list := registry.List()
	require.Len(t, list, 1)
	require.Equal(t, "kubernetes/core", list[0].Name)
}
