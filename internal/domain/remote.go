package domain

import "context"

// RemoteExecutor runs tools inside stateful remote capability sessions.
// Failures surface as error results, never as panics.
type RemoteExecutor interface {
	Call(ctx context.Context, endpoint RemoteEndpoint, tool string, params map[string]any) ToolResult
	Ping(ctx context.Context, endpoint RemoteEndpoint) error
	ListTools(ctx context.Context, endpoint RemoteEndpoint) ([]RemoteTool, error)
}

// RemoteTool is a tool advertised by a remote endpoint.
type RemoteTool struct {
	Name        string
	Description string
	Parameters  map[string]ToolParameter
}
