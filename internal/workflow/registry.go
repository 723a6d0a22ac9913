package workflow

import (
	"sort"
	"sync"

	"github.com/wendlabs/wend/pkg/schema"
)

// Registry resolves workflow definitions by name. Sub-workflow execution and
// the CLI/MCP surfaces all look up through one Registry, so a delegating state
// and the operator see the same set of definitions.
// Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*schema.WorkflowDefinition
}

// NewRegistry creates a Registry holding the given definitions.
// Duplicate names are rejected.
func NewRegistry(defs ...*schema.WorkflowDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*schema.WorkflowDefinition, len(defs))}
	for _, def := range defs {
		if err := r.Add(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a definition under its name.
func (r *Registry) Add(def *schema.WorkflowDefinition) error {
	if def == nil || def.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"duplicate workflow name %q", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get resolves a definition by name.
func (r *Registry) Get(name string) (*schema.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %q not found", name).
			WithDetails(map[string]any{"name": name})
	}
	return def, nil
}

// Names returns the registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
