package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolResultStatus labels the outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultNoData  ToolResultStatus = "no_data"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResult is the contract every tool invocation returns.
type ToolResult struct {
	Status ToolResultStatus `json:"status"`
	Data   any              `json:"data,omitempty"`
	Error  string           `json:"error,omitempty"`
	Params map[string]any   `json:"params,omitempty"`
}

// OK reports whether the invocation succeeded, with or without data.
func (r ToolResult) OK() bool {
	return r.Status == ToolResultSuccess || r.Status == ToolResultNoData
}

// SuccessResult wraps data, downgrading empty payloads to no_data.
func SuccessResult(data any) ToolResult {
	if isEmptyData(data) {
		return ToolResult{Status: ToolResultNoData}
	}
	return ToolResult{Status: ToolResultSuccess, Data: data}
}

// ErrorResult builds an error result from a message.
func ErrorResult(format string, args ...any) ToolResult {
	return ToolResult{Status: ToolResultError, Error: fmt.Sprintf(format, args...)}
}

func isEmptyData(data any) bool {
	switch v := data.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// InputSchema renders the tool parameters as a JSON object schema.
func (t Tool) InputSchema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(t.Parameters)),
	}
	names := make([]string, 0, len(t.Parameters))
	for name := range t.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		param := t.Parameters[name]
		paramType := param.Type
		if paramType == "" {
			paramType = "string"
		}
		schema.Properties[name] = &jsonschema.Schema{
			Type:        paramType,
			Description: param.Description,
		}
		if param.Required {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

// ValidateParams checks params against the tool's input schema.
func (t Tool) ValidateParams(params map[string]any) error {
	resolved, err := t.InputSchema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema for %s: %w", t.Name, err)
	}
	// Round-trip through JSON so numeric and nested values match schema validation types.
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	if err := resolved.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// ValidParameterType reports whether a declared parameter type is a JSON Schema type.
func ValidParameterType(kind string) bool {
	switch kind {
	case "", "string", "integer", "number", "boolean", "object", "array":
		return true
	default:
		return false
	}
}
