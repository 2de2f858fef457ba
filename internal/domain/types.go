package domain

import (
	"context"
	"errors"
	"slices"
)

// ToolsetStatus is the outcome of prerequisite evaluation for a toolset.
type ToolsetStatus string

const (
	// ToolsetStatusUnknown means prerequisites have not been evaluated yet.
	ToolsetStatusUnknown ToolsetStatus = "unknown"
	// ToolsetStatusEnabled means every prerequisite passed.
	ToolsetStatusEnabled ToolsetStatus = "enabled"
	// ToolsetStatusFailed means a prerequisite failed; Toolset.Error carries the reason.
	ToolsetStatusFailed ToolsetStatus = "failed"
)

// ToolsetType records where a toolset definition came from.
type ToolsetType string

const (
	ToolsetTypeBuiltin ToolsetType = "built-in"
	ToolsetTypeCustom  ToolsetType = "custom"
	ToolsetTypeMCP     ToolsetType = "mcp"
)

// ToolInvoker is the entrypoint of a single tool.
type ToolInvoker func(ctx context.Context, params map[string]any) ToolResult

// ToolParameter describes one named input of a tool.
type ToolParameter struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Tool is a single invokable capability owned by exactly one toolset.
type Tool struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Parameters  map[string]ToolParameter `json:"parameters,omitempty"`
	Invoke      ToolInvoker              `json:"-"`
}

// RemoteEndpoint addresses a stateful remote capability session.
type RemoteEndpoint struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Toolset is a named, independently enableable bundle of tools.
type Toolset struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Enabled       bool            `json:"enabled"`
	Type          ToolsetType     `json:"type"`
	Status        ToolsetStatus   `json:"status"`
	Error         string          `json:"error,omitempty"`
	Config        map[string]any  `json:"config,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	Prerequisites []Prerequisite  `json:"-"`
	Path          string          `json:"path,omitempty"`
	Remote        *RemoteEndpoint `json:"remote,omitempty"`
	// DiscoverTools lists tools the definition left undeclared. It is only
	// run once the toolset is usable, and cleared after it succeeds.
	DiscoverTools func(ctx context.Context) ([]Tool, error) `json:"-"`
}

// ResetStatus returns the toolset to the unknown state before re-evaluation.
func (t *Toolset) ResetStatus() {
	t.Status = ToolsetStatusUnknown
	t.Error = ""
}

// SetStatus records an evaluation outcome.
func (t *Toolset) SetStatus(status ToolsetStatus, reason string) {
	t.Status = status
	t.Error = reason
}

// Usable reports whether the toolset is both requested and passing its prerequisites.
func (t *Toolset) Usable() bool {
	return t.Enabled && t.Status == ToolsetStatusEnabled
}

// Tool returns the named tool.
func (t *Toolset) Tool(name string) (Tool, bool) {
	for _, tool := range t.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// HasTag reports whether the toolset carries the tag.
func (t *Toolset) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// CloneToolsetSummary copies the identity and status fields of a toolset.
// Tools and prerequisites are shared; callers must not mutate them.
func CloneToolsetSummary(t *Toolset) Toolset {
	out := *t
	out.Tags = append([]string(nil), t.Tags...)
	return out
}

var (
	ErrToolsetNotFound   = errors.New("toolset not found")
	ErrToolsetDisabled   = errors.New("toolset is not enabled")
	ErrToolNotFound      = errors.New("tool not found")
	ErrInvalidDefinition = errors.New("invalid toolset definition")
	ErrUnresolvedEnv     = errors.New("unresolved environment variable")
	ErrInvalidParams     = errors.New("invalid tool parameters")
)
