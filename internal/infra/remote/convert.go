package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"holmes/internal/domain"
)

// convertResult maps a call result onto a ToolResult. Text content is joined
// into a string; when the server also returns images, audio or resources the
// data becomes the ordered list of items, non-text ones as their wire objects.
func convertResult(res *mcp.CallToolResult) (domain.ToolResult, error) {
	if res == nil {
		return domain.ToolResult{}, errors.New("empty response")
	}
	text, items, err := contentItems(res.Content)
	if err != nil {
		return domain.ToolResult{}, err
	}
	if res.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return domain.ErrorResult("%s", text), nil
	}
	if res.StructuredContent != nil {
		return domain.SuccessResult(res.StructuredContent), nil
	}
	if items != nil {
		return domain.SuccessResult(items), nil
	}
	return domain.SuccessResult(text), nil
}

// contentItems returns the joined text and, only when non-text content is
// present, every item in order.
func contentItems(content []mcp.Content) (string, []any, error) {
	parts := make([]string, 0, len(content))
	ordered := make([]any, 0, len(content))
	mixed := false
	for i, item := range content {
		switch c := item.(type) {
		case nil:
			return "", nil, fmt.Errorf("malformed content: nil item %d", i)
		case *mcp.TextContent:
			if c == nil {
				return "", nil, fmt.Errorf("malformed content: nil item %d", i)
			}
			parts = append(parts, c.Text)
			ordered = append(ordered, c.Text)
		default:
			raw, err := json.Marshal(item)
			if err != nil {
				return "", nil, fmt.Errorf("malformed content item %d: %w", i, err)
			}
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
				return "", nil, fmt.Errorf("malformed content item %d: %T", i, item)
			}
			ordered = append(ordered, decoded)
			mixed = true
		}
	}
	text := strings.Join(parts, "\n")
	if !mixed {
		return text, nil, nil
	}
	return text, ordered, nil
}

type remoteSchema struct {
	Properties map[string]struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
	} `json:"properties"`
	Required []string `json:"required"`
}

func convertTool(tool *mcp.Tool) domain.RemoteTool {
	out := domain.RemoteTool{
		Name:        tool.Name,
		Description: tool.Description,
	}
	if tool.InputSchema == nil {
		return out
	}
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return out
	}
	var schema remoteSchema
	if err := json.Unmarshal(raw, &schema); err != nil || len(schema.Properties) == 0 {
		return out
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	out.Parameters = make(map[string]domain.ToolParameter, len(schema.Properties))
	for name, prop := range schema.Properties {
		out.Parameters[name] = domain.ToolParameter{
			Type:        schemaType(prop.Type),
			Required:    required[name],
			Description: prop.Description,
		}
	}
	return out
}

// schemaType reads a JSON Schema "type", which may be a single name or a
// union. For a union the first non-null member wins; anything else is "".
func schemaType(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		for _, member := range v {
			if name, ok := member.(string); ok && name != "null" {
				return name
			}
		}
	}
	return ""
}
