package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"holmes/internal/domain"
)

func startMCPServer(t *testing.T) (*httptest.Server, *atomic.Bool) {
	t.Helper()
	server := mcp.NewServer(&mcp.Implementation{Name: "kubernetes", Version: "0.1.0"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "Echo a message",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "Text to echo"},
			},
			"required": []any{"message"},
		},
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		return textResult(fmt.Sprint(args["message"])), nil
	})
	server.AddTool(&mcp.Tool{
		Name:        "fail",
		InputSchema: map[string]any{"type": "object"},
	}, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := textResult("namespace is forbidden")
		result.IsError = true
		return result, nil
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})

	var sawAuth atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token" {
			sawAuth.Store(true)
		}
		streamable.ServeHTTP(w, r)
	})
	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return httpServer, &sawAuth
}

func TestMCPOpener_BridgeRoundTrip(t *testing.T) {
	httpServer, sawAuth := startMCPServer(t)
	bridge := newTestBridge(t, NewMCPOpener(MCPOpenerOptions{Version: "test"}))
	endpoint := domain.RemoteEndpoint{
		URL:     httpServer.URL,
		Headers: map[string]string{"authorization": "Bearer token"},
	}
	ctx := context.Background()

	require.NoError(t, bridge.Ping(ctx, endpoint))

	tools, err := bridge.ListTools(ctx, endpoint)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	byName := map[string]domain.RemoteTool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}
	require.Equal(t, domain.ToolParameter{Type: "string", Required: true, Description: "Text to echo"},
		byName["echo"].Parameters["message"])

	result := bridge.Call(ctx, endpoint, "echo", map[string]any{"message": "hello"})
	require.Equal(t, domain.ToolResultSuccess, result.Status, result.Error)
	require.Equal(t, "hello", result.Data)

	result = bridge.Call(ctx, endpoint, "fail", nil)
	require.Equal(t, domain.ToolResultError, result.Status)
	require.Equal(t, "namespace is forbidden", result.Error)

	require.True(t, sawAuth.Load())
}

func TestMCPOpener_UnreachableEndpoint(t *testing.T) {
	httpServer, _ := startMCPServer(t)
	url := httpServer.URL
	httpServer.Close()

	bridge := newTestBridge(t, NewMCPOpener(MCPOpenerOptions{MaxRetries: -1}))
	err := bridge.Ping(context.Background(), domain.RemoteEndpoint{URL: url})
	require.Error(t, err)
}

func TestMCPOpener_RejectsInvalidEndpoint(t *testing.T) {
	opener := NewMCPOpener(MCPOpenerOptions{})

	_, err := opener.Open(context.Background(), domain.RemoteEndpoint{URL: "  "})
	require.ErrorContains(t, err, "url is required")

	_, err = opener.Open(context.Background(), domain.RemoteEndpoint{
		URL:     "http://127.0.0.1:1",
		Headers: map[string]string{" ": "x"},
	})
	require.ErrorContains(t, err, "empty key")
}
