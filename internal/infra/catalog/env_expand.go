package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"holmes/internal/domain"
)

var envPlaceholder = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// expandDefinitionEnv resolves {{ env.NAME }} in every string leaf of def.
// Any undefined variable fails the whole definition.
func expandDefinitionEnv(def map[string]any, lookup func(string) (string, bool)) (map[string]any, error) {
	missing := make(map[string]struct{})
	expanded, _ := expandNode(def, lookup, missing).(map[string]any)
	if names := missingList(missing); len(names) > 0 {
		err := fmt.Errorf("%w: %s", domain.ErrUnresolvedEnv, strings.Join(names, ", "))
		return nil, domain.E(domain.CodeConfigResolution, "resolve env placeholders", "", err)
	}
	return expanded, nil
}

func expandNode(node any, lookup func(string) (string, bool), missing map[string]struct{}) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = expandNode(child, lookup, missing)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = expandNode(child, lookup, missing)
		}
		return out
	case string:
		return expandScalar(v, lookup, missing)
	default:
		return node
	}
}

func expandScalar(value string, lookup func(string) (string, bool), missing map[string]struct{}) string {
	if !strings.Contains(value, "{{") {
		return value
	}
	return envPlaceholder.ReplaceAllStringFunc(value, func(match string) string {
		name := envPlaceholder.FindStringSubmatch(match)[1]
		if resolved, ok := lookup(name); ok {
			return resolved
		}
		missing[name] = struct{}{}
		return match
	})
}

func missingList(missing map[string]struct{}) []string {
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
