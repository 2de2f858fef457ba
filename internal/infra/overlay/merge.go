// Package overlay deep-merges partial user configuration over defaults.
package overlay

import "fmt"

// Merge returns base with override layered on top.
// Mappings merge key by key; any other override value (list, scalar, explicit nil)
// replaces the base value wholesale. Neither input is modified or aliased.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		out[key] = Clone(value)
	}
	for key, value := range override {
		current, exists := out[key]
		baseMap, baseIsMap := asMap(current)
		overrideMap, overrideIsMap := asMap(value)
		if exists && baseIsMap && overrideIsMap {
			out[key] = Merge(baseMap, overrideMap)
			continue
		}
		out[key] = Clone(value)
	}
	return out
}

// MergeAll folds layers left to right; later layers win.
func MergeAll(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		out = Merge(out, layer)
	}
	return out
}

// Clone deep-copies maps and slices; other values are returned as is.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return value
	}
}

// CloneMap deep-copies a configuration mapping.
func CloneMap(value map[string]any) map[string]any {
	if value == nil {
		return nil
	}
	return Clone(value).(map[string]any)
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		return Clone(v).(map[string]any), true
	default:
		return nil, false
	}
}
