// Package catalog loads toolset definitions from Go builtins, definition files
// and configuration overrides.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/overlay"
	"holmes/internal/infra/process"
	"holmes/internal/infra/statuscache"
)

// Options configures a Loader.
type Options struct {
	Logger         *zap.Logger
	Registry       *Registry
	Runner         process.Runner
	CommandTimeout time.Duration
	Remote         domain.RemoteExecutor
	LookupEnv      func(string) (string, bool)
}

// Source names every input of one load.
type Source struct {
	BuiltinDir  string
	CustomPaths []string
	Overrides   map[string]map[string]any
}

// Issue records a definition that was skipped.
type Issue struct {
	Toolset string           `json:"toolset,omitempty"`
	Path    string           `json:"path,omitempty"`
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Result is the outcome of a load.
type Result struct {
	Toolsets []*domain.Toolset
	Issues   []Issue
}

type Loader struct {
	logger         *zap.Logger
	registry       *Registry
	runner         process.Runner
	commandTimeout time.Duration
	remote         domain.RemoteExecutor
	lookupEnv      func(string) (string, bool)
}

func NewLoader(opts Options) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = process.Shell{}
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = domain.DefaultToolCommandTimeout
	}
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Loader{
		logger:         logger.Named("catalog"),
		registry:       registry,
		runner:         runner,
		commandTimeout: timeout,
		remote:         opts.Remote,
		lookupEnv:      lookupEnv,
	}
}

type layered struct {
	name    string
	def     map[string]any
	typ     domain.ToolsetType
	path    string
	builtin *Builtin
}

// Load builds toolsets from every layer in src. A definition that cannot be
// loaded is skipped and reported in Result.Issues; only context cancellation
// fails the whole load.
func (l *Loader) Load(ctx context.Context, src Source) (Result, error) {
	var result Result
	layers := make(map[string]*layered)

	for _, builtin := range l.registry.List() {
		layers[builtin.Name] = &layered{
			name:    builtin.Name,
			def:     builtin.definition(),
			typ:     domain.ToolsetTypeBuiltin,
			builtin: &builtin,
		}
	}

	builtinFiles, err := listDefinitionFiles(src.BuiltinDir)
	if err != nil {
		result.Issues = append(result.Issues, l.issue("", src.BuiltinDir, domain.CodeLoadFailed, err))
	}
	for _, path := range builtinFiles {
		l.layerFile(layers, &result, path, domain.ToolsetTypeBuiltin)
	}
	for _, path := range src.CustomPaths {
		l.layerFile(layers, &result, path, domain.ToolsetTypeCustom)
	}

	overrideNames := make([]string, 0, len(src.Overrides))
	for name := range src.Overrides {
		overrideNames = append(overrideNames, name)
	}
	sort.Strings(overrideNames)
	for _, name := range overrideNames {
		l.layerDefinition(layers, name, src.Overrides[name], domain.ToolsetTypeCustom, "")
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		layer := layers[name]
		toolset, err := l.build(layer)
		if err != nil {
			code, ok := domain.CodeFrom(err)
			if !ok {
				code = domain.CodeLoadFailed
			}
			result.Issues = append(result.Issues, l.issue(name, layer.path, code, err))
			continue
		}
		result.Toolsets = append(result.Toolsets, toolset)
	}
	return result, nil
}

func (l *Loader) layerFile(layers map[string]*layered, result *Result, path string, typ domain.ToolsetType) {
	file, err := readDefinitionFile(path)
	if err != nil {
		result.Issues = append(result.Issues, l.issue("", path, domain.CodeLoadFailed, err))
		return
	}
	for _, name := range sortedKeys(file.Toolsets) {
		def, ok := file.Toolsets[name].(map[string]any)
		if !ok {
			err := fmt.Errorf("%w: definition must be a mapping", domain.ErrInvalidDefinition)
			result.Issues = append(result.Issues, l.issue(name, path, domain.CodeLoadFailed, err))
			continue
		}
		l.layerDefinition(layers, name, def, typ, path)
	}
	for _, name := range sortedKeys(file.MCPServers) {
		def, ok := file.MCPServers[name].(map[string]any)
		if !ok {
			err := fmt.Errorf("%w: mcp server definition must be a mapping", domain.ErrInvalidDefinition)
			result.Issues = append(result.Issues, l.issue(name, path, domain.CodeLoadFailed, err))
			continue
		}
		def = overlay.Merge(def, map[string]any{"type": string(domain.ToolsetTypeMCP)})
		l.layerDefinition(layers, name, def, domain.ToolsetTypeMCP, path)
	}
}

func (l *Loader) layerDefinition(layers map[string]*layered, name string, def map[string]any, typ domain.ToolsetType, path string) {
	if existing, ok := layers[name]; ok {
		existing.def = overlay.Merge(existing.def, def)
		if path != "" {
			existing.path = path
		}
		return
	}
	layers[name] = &layered{name: name, def: overlay.CloneMap(def), typ: typ, path: path}
}

func (l *Loader) build(layer *layered) (*domain.Toolset, error) {
	def := layer.def
	if def == nil {
		def = map[string]any{}
	}
	resolved, err := expandDefinitionEnv(def, l.lookupEnv)
	if err != nil {
		return nil, err
	}
	raw, err := decodeToolset(resolved)
	if err != nil {
		return nil, err
	}

	typ := layer.typ
	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "":
	case string(domain.ToolsetTypeMCP):
		typ = domain.ToolsetTypeMCP
	case string(domain.ToolsetTypeBuiltin), string(domain.ToolsetTypeCustom):
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidDefinition, raw.Type)
	}

	config := overlay.CloneMap(raw.Config)
	if config == nil {
		config = map[string]any{}
	}
	toolset := &domain.Toolset{
		Name:        layer.name,
		Description: raw.Description,
		Tags:        append([]string(nil), raw.Tags...),
		Enabled:     defaultEnabled(raw.Enabled, typ),
		Type:        typ,
		Status:      domain.ToolsetStatusUnknown,
		Config:      config,
		Path:        layer.path,
	}

	var errs []string
	if layer.builtin != nil {
		toolset.Prerequisites = append(toolset.Prerequisites, layer.builtin.Prerequisites...)
		toolset.Tools = append(toolset.Tools, layer.builtin.Tools(overlay.CloneMap(config))...)
	}
	prerequisites, prereqErrs := normalizePrerequisites(raw.Prerequisites)
	errs = append(errs, prereqErrs...)
	toolset.Prerequisites = append(toolset.Prerequisites, prerequisites...)

	if typ == domain.ToolsetTypeMCP {
		mcpErrs := l.buildRemote(toolset, raw.Tools)
		errs = append(errs, mcpErrs...)
	} else {
		tools, toolErrs := l.buildCommandTools(raw.Tools)
		errs = append(errs, toolErrs...)
		toolset.Tools = append(toolset.Tools, tools...)
		if len(toolset.Tools) == 0 && len(errs) == 0 {
			errs = append(errs, "toolset defines no tools")
		}
	}
	errs = append(errs, duplicateTools(toolset.Tools)...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidDefinition, strings.Join(errs, "; "))
	}
	return toolset, nil
}

func defaultEnabled(enabled *bool, typ domain.ToolsetType) bool {
	if enabled != nil {
		return *enabled
	}
	return typ != domain.ToolsetTypeBuiltin
}

func (l *Loader) buildCommandTools(raw []rawTool) ([]domain.Tool, []string) {
	var errs []string
	tools := make([]domain.Tool, 0, len(raw))
	for i, item := range raw {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("tools[%d]: name is required", i))
			continue
		}
		if strings.TrimSpace(item.Command) == "" {
			errs = append(errs, fmt.Sprintf("tools[%d]: command is required", i))
			continue
		}
		params, paramErrs := normalizeParameters(item.Parameters, i)
		if len(paramErrs) > 0 {
			errs = append(errs, paramErrs...)
			continue
		}
		tools = append(tools, domain.Tool{
			Name:        name,
			Description: item.Description,
			Parameters:  params,
			Invoke:      commandInvoker(l.logger, l.runner, l.commandTimeout, name, item.Command),
		})
	}
	return tools, errs
}

// buildRemote wires an mcp toolset to the remote executor: a ping prerequisite
// plus one tool per declared remote tool. Without declared tools the toolset
// gets a discovery hook instead, so loading never reaches the endpoint.
func (l *Loader) buildRemote(toolset *domain.Toolset, raw []rawTool) []string {
	endpoint, errs := remoteEndpoint(toolset.Config)
	if len(errs) > 0 {
		return errs
	}
	if l.remote == nil {
		return []string{"mcp toolsets require a remote executor"}
	}
	toolset.Remote = &endpoint

	remote := l.remote
	toolset.Prerequisites = append(toolset.Prerequisites, domain.CallablePrerequisite("mcp ping",
		func(ctx context.Context, _ map[string]any) (bool, string) {
			if err := remote.Ping(ctx, endpoint); err != nil {
				return false, fmt.Sprintf("failed to reach mcp server %s: %v", endpoint.URL, err)
			}
			return true, ""
		}))

	for i, item := range raw {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("tools[%d]: name is required", i))
			continue
		}
		params, paramErrs := normalizeParameters(item.Parameters, i)
		if len(paramErrs) > 0 {
			errs = append(errs, paramErrs...)
			continue
		}
		toolset.Tools = append(toolset.Tools, remoteTool(remote, endpoint, domain.RemoteTool{
			Name:        name,
			Description: item.Description,
			Parameters:  params,
		}))
	}
	if len(raw) == 0 {
		toolset.DiscoverTools = func(ctx context.Context) ([]domain.Tool, error) {
			discovered, err := remote.ListTools(ctx, endpoint)
			if err != nil {
				return nil, fmt.Errorf("list tools of %s: %w", endpoint.URL, err)
			}
			tools := make([]domain.Tool, 0, len(discovered))
			for _, item := range discovered {
				tools = append(tools, remoteTool(remote, endpoint, item))
			}
			return tools, nil
		}
	}
	return errs
}

func remoteTool(remote domain.RemoteExecutor, endpoint domain.RemoteEndpoint, item domain.RemoteTool) domain.Tool {
	name := item.Name
	return domain.Tool{
		Name:        name,
		Description: item.Description,
		Parameters:  item.Parameters,
		Invoke: func(ctx context.Context, params map[string]any) domain.ToolResult {
			result := remote.Call(ctx, endpoint, name, params)
			if result.Params == nil {
				result.Params = params
			}
			return result
		},
	}
}

func duplicateTools(tools []domain.Tool) []string {
	var errs []string
	seen := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if _, ok := seen[tool.Name]; ok {
			errs = append(errs, fmt.Sprintf("duplicate tool name %q", tool.Name))
			continue
		}
		seen[tool.Name] = struct{}{}
	}
	return errs
}

func (l *Loader) issue(toolset, path string, code domain.ErrorCode, err error) Issue {
	l.logger.Warn("skipping toolset definition",
		zap.String("toolset", toolset),
		zap.String("path", path),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	return Issue{Toolset: toolset, Path: path, Code: code, Message: err.Error()}
}

// listDefinitionFiles returns definition files directly under dir, sorted.
func listDefinitionFiles(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read builtin dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !statuscache.IsDefinitionFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
