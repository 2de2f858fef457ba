package remote

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holmes/internal/domain"
)

func TestConvertResult_Text(t *testing.T) {
	result, err := convertResult(&mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "pod api-7f9"},
		&mcp.TextContent{Text: "pod web-1c2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolResultSuccess, result.Status)
	assert.Equal(t, "pod api-7f9\npod web-1c2", result.Data)
}

func TestConvertResult_KeepsNonTextContent(t *testing.T) {
	result, err := convertResult(&mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "latency panel"},
		&mcp.ImageContent{MIMEType: "image/png", Data: []byte{0x89, 0x50}},
	}})
	require.NoError(t, err)
	require.Equal(t, domain.ToolResultSuccess, result.Status)

	items, ok := result.Data.([]any)
	require.True(t, ok, "data is %T", result.Data)
	require.Len(t, items, 2)
	assert.Equal(t, "latency panel", items[0])
	image, ok := items[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, "image/png", image["mimeType"])
	assert.NotEmpty(t, image["data"])
}

func TestConvertResult_ErrorPayloadUsesText(t *testing.T) {
	result, err := convertResult(&mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.ImageContent{MIMEType: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolResultError, result.Status)
	assert.Equal(t, "remote tool reported an error", result.Error)
}

func TestConvertResult_Malformed(t *testing.T) {
	_, err := convertResult(&mcp.CallToolResult{Content: []mcp.Content{nil}})
	require.EqualError(t, err, "malformed content: nil item 0")

	var image *mcp.ImageContent
	_, err = convertResult(&mcp.CallToolResult{Content: []mcp.Content{image}})
	require.Error(t, err)
}

func TestConvertTool_SchemaTypes(t *testing.T) {
	tool := convertTool(&mcp.Tool{
		Name: "query_logs",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": []any{"null", "integer"}},
				"since": map[string]any{"type": []any{"null"}},
				"extra": map[string]any{},
			},
			"required": []any{"query"},
		},
	})

	assert.Equal(t, map[string]domain.ToolParameter{
		"query": {Type: "string", Required: true},
		"limit": {Type: "integer"},
		"since": {},
		"extra": {},
	}, tool.Parameters)
}
