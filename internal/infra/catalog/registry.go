package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"holmes/internal/domain"
	"holmes/internal/infra/overlay"
)

// Builtin is a toolset implemented in Go. Its Config holds defaults that
// user definitions are layered over; Tools is called with the merged config.
type Builtin struct {
	Name          string
	Description   string
	Tags          []string
	Enabled       bool
	Config        map[string]any
	Prerequisites []domain.Prerequisite
	Tools         func(config map[string]any) []domain.Tool
}

// Registry holds Go-implemented toolsets.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Builtin
}

func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Builtin)}
}

// Register adds a builtin; names must be unique.
func (r *Registry) Register(builtin Builtin) error {
	name := strings.TrimSpace(builtin.Name)
	if name == "" {
		return fmt.Errorf("%w: builtin name is required", domain.ErrInvalidDefinition)
	}
	if builtin.Tools == nil {
		return fmt.Errorf("%w: builtin %s has no tools", domain.ErrInvalidDefinition, name)
	}
	for i, prerequisite := range builtin.Prerequisites {
		if err := prerequisite.Validate(); err != nil {
			return fmt.Errorf("builtin %s prerequisites[%d]: %w", name, i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[name]; exists {
		return fmt.Errorf("%w: builtin %s registered twice", domain.ErrInvalidDefinition, name)
	}
	builtin.Name = name
	r.builtins[name] = builtin
	return nil
}

// MustRegister panics if Register fails.
func (r *Registry) MustRegister(builtin Builtin) {
	if err := r.Register(builtin); err != nil {
		panic(err)
	}
}

// List returns registered builtins sorted by name.
func (r *Registry) List() []Builtin {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Builtin, 0, len(r.builtins))
	for _, builtin := range r.builtins {
		out = append(out, builtin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// definition renders the builtin's user-overridable fields as a raw definition.
func (b Builtin) definition() map[string]any {
	def := map[string]any{
		"enabled":     b.Enabled,
		"description": b.Description,
		"config":      overlay.CloneMap(b.Config),
	}
	if len(b.Tags) > 0 {
		tags := make([]any, len(b.Tags))
		for i, tag := range b.Tags {
			tags[i] = tag
		}
		def["tags"] = tags
	}
	if def["config"] == nil {
		def["config"] = map[string]any{}
	}
	return def
}
