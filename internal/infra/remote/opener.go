package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"holmes/internal/domain"
)

type MCPOpenerOptions struct {
	Name       string
	Version    string
	MaxRetries int
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// MCPOpener opens streamable HTTP MCP sessions.
type MCPOpener struct {
	client     *mcp.Client
	maxRetries int
	base       http.RoundTripper
}

func NewMCPOpener(opts MCPOpenerOptions) *MCPOpener {
	name := opts.Name
	if name == "" {
		name = "holmes"
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = domain.DefaultRemoteMaxRetries
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &MCPOpener{
		client:     mcp.NewClient(&mcp.Implementation{Name: name, Version: opts.Version}, nil),
		maxRetries: maxRetries,
		base:       base,
	}
}

func (o *MCPOpener) Open(ctx context.Context, endpoint domain.RemoteEndpoint) (Session, error) {
	url := strings.TrimSpace(endpoint.URL)
	if url == "" {
		return nil, errors.New("remote endpoint url is required")
	}
	roundTripper, err := newHeaderRoundTripper(o.base, endpoint.Headers)
	if err != nil {
		return nil, err
	}
	transport := &mcp.StreamableClientTransport{
		Endpoint:   url,
		HTTPClient: &http.Client{Transport: roundTripper},
		MaxRetries: o.maxRetries,
	}
	session, err := o.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &mcpSession{session: session}, nil
}

type mcpSession struct {
	session *mcp.ClientSession
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return s.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func (s *mcpSession) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var tools []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := s.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

func (s *mcpSession) Ping(ctx context.Context) error {
	return s.session.Ping(ctx, &mcp.PingParams{})
}

func (s *mcpSession) Close() error {
	return s.session.Close()
}

func newHeaderRoundTripper(base http.RoundTripper, headers map[string]string) (http.RoundTripper, error) {
	if len(headers) == 0 {
		return base, nil
	}
	set := http.Header{}
	for key, value := range headers {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			return nil, errors.New("remote headers contain empty key")
		}
		set.Set(name, value)
	}
	return &headerRoundTripper{base: base, headers: set}, nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}
