package toolset

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExternalToolConflict is returned by Register when a builtin and an
// externally-registered tool share a name (spec §4.5, §4.10 error -32001).
type ExternalToolConflict struct {
	Name string
}

func (e *ExternalToolConflict) Error() string {
	return fmt.Sprintf("external tool %q conflicts with built-in", e.Name)
}

type registeredTool struct {
	tool     Tool
	schema   *jsonschema.Schema
	external bool
}

// Registry maps tool name to a compiled, normalized tool handle.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register compiles and normalizes tool's schema and adds it under its name.
// external marks it as an externally-registered tool (spec §4.10
// `initialize`). Two tools may not share a name, full stop: a builtin
// colliding with an external registration fails with ExternalToolConflict,
// and so does any other name collision (two externals from a re-issued
// `initialize`, or two builtins).
func (r *Registry) Register(tool Tool, external bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[tool.Name()]; ok {
		return &ExternalToolConflict{Name: tool.Name()}
	}

	normalized, err := normalizeSchema(tool.Schema())
	if err != nil {
		return fmt.Errorf("toolset: normalize schema for %q: %w", tool.Name(), err)
	}
	compiled, err := jsonschema.CompileString(tool.Name()+".json", string(normalized))
	if err != nil {
		return fmt.Errorf("toolset: compile schema for %q: %w", tool.Name(), err)
	}

	r.tools[tool.Name()] = &registeredTool{tool: tool, schema: compiled, external: external}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

func (r *Registry) schemaFor(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.schema, true
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
