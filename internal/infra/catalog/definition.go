package catalog

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"holmes/internal/domain"
	"holmes/internal/infra/overlay"
)

type rawToolset struct {
	Enabled       *bool             `mapstructure:"enabled"`
	Type          string            `mapstructure:"type"`
	Description   string            `mapstructure:"description"`
	Tags          []string          `mapstructure:"tags"`
	Config        map[string]any    `mapstructure:"config"`
	Tools         []rawTool         `mapstructure:"tools"`
	Prerequisites []rawPrerequisite `mapstructure:"prerequisites"`
}

type rawTool struct {
	Name        string                  `mapstructure:"name"`
	Description string                  `mapstructure:"description"`
	Command     string                  `mapstructure:"command"`
	Parameters  map[string]rawParameter `mapstructure:"parameters"`
}

type rawParameter struct {
	Type        string `mapstructure:"type"`
	Required    *bool  `mapstructure:"required"`
	Description string `mapstructure:"description"`
}

type rawPrerequisite struct {
	Command        string   `mapstructure:"command"`
	ExpectedOutput string   `mapstructure:"expected_output"`
	Env            []string `mapstructure:"env"`
	Enabled        *bool    `mapstructure:"enabled"`
	Reason         string   `mapstructure:"reason"`
}

// definitionFile is one parsed YAML or TOML definition file.
type definitionFile struct {
	Path       string
	Toolsets   map[string]any
	MCPServers map[string]any
}

func readDefinitionFile(path string) (definitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return definitionFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDefinitionFile(path, data)
}

func parseDefinitionFile(path string, data []byte) (definitionFile, error) {
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return definitionFile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if len(bytes.TrimSpace(data)) > 0 {
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return definitionFile{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	file := definitionFile{Path: path}
	var err error
	if file.Toolsets, err = sectionOf(doc, "toolsets"); err != nil {
		return definitionFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if file.MCPServers, err = sectionOf(doc, "mcp_servers"); err != nil {
		return definitionFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return file, nil
}

func sectionOf(doc map[string]any, key string) (map[string]any, error) {
	value, ok := doc[key]
	if !ok || value == nil {
		return nil, nil
	}
	section, ok := overlay.Clone(value).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping of name to definition", key)
	}
	return section, nil
}

func decodeToolset(def map[string]any) (rawToolset, error) {
	var raw rawToolset
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return rawToolset{}, err
	}
	if err := decoder.Decode(def); err != nil {
		return rawToolset{}, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}
	return raw, nil
}

func normalizePrerequisites(raw []rawPrerequisite) ([]domain.Prerequisite, []string) {
	var errs []string
	out := make([]domain.Prerequisite, 0, len(raw))
	for i, item := range raw {
		kinds := 0
		var prerequisite domain.Prerequisite
		if strings.TrimSpace(item.Command) != "" {
			kinds++
			prerequisite = domain.CommandPrerequisite(item.Command, item.ExpectedOutput)
		}
		if len(item.Env) > 0 {
			kinds++
			prerequisite = domain.EnvPrerequisite(item.Env...)
		}
		if item.Enabled != nil {
			kinds++
			prerequisite = domain.StaticPrerequisite(*item.Enabled, item.Reason)
		}
		if kinds != 1 {
			errs = append(errs, fmt.Sprintf("prerequisites[%d]: exactly one of command, env or enabled is required", i))
			continue
		}
		if err := prerequisite.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("prerequisites[%d]: %v", i, err))
			continue
		}
		out = append(out, prerequisite)
	}
	return out, errs
}

func normalizeParameters(raw map[string]rawParameter, index int) (map[string]domain.ToolParameter, []string) {
	if len(raw) == 0 {
		return nil, nil
	}
	var errs []string
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]domain.ToolParameter, len(raw))
	for _, name := range names {
		param := raw[name]
		kind := strings.ToLower(strings.TrimSpace(param.Type))
		if !domain.ValidParameterType(kind) {
			errs = append(errs, fmt.Sprintf("tools[%d].parameters.%s: unsupported type %q", index, name, param.Type))
			continue
		}
		if kind == "" {
			kind = "string"
		}
		required := true
		if param.Required != nil {
			required = *param.Required
		}
		out[name] = domain.ToolParameter{Type: kind, Required: required, Description: param.Description}
	}
	return out, errs
}

// remoteEndpoint reads url and headers from an mcp toolset config.
func remoteEndpoint(config map[string]any) (domain.RemoteEndpoint, []string) {
	var errs []string
	rawURL, _ := config["url"].(string)
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		errs = append(errs, "config.url is required for mcp toolsets")
	} else if parsed, err := url.ParseRequestURI(rawURL); err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errs = append(errs, "config.url must be a valid http(s) URL")
	}

	var headers map[string]string
	switch value := config["headers"].(type) {
	case nil:
	case map[string]any:
		headers = make(map[string]string, len(value))
		for key, item := range value {
			name := strings.TrimSpace(key)
			if name == "" {
				errs = append(errs, "config.headers contains empty header name")
				continue
			}
			headers[http.CanonicalHeaderKey(name)] = strings.TrimSpace(fmt.Sprint(item))
		}
	default:
		errs = append(errs, "config.headers must be a mapping")
	}
	return domain.RemoteEndpoint{URL: rawURL, Headers: headers}, errs
}
