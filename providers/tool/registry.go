package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
)

// nameRE constrains tool names to identifier characters so every provider
// wire format accepts them verbatim.
var nameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// entry is one registered tool plus its compiled input schema.
type entry struct {
	tool      Tool
	def       ai.ToolDefinition
	schema    *jsonschema.Schema
	available bool
}

// Registry maps tool names to definitions and handlers. Registration compiles
// the input schema once; the router validates every call against the compiled
// form. Reads vastly outnumber writes, so the registry is guarded by a
// read-write mutex.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// Register validates and adds a tool. The name must match
// [a-zA-Z_][a-zA-Z0-9_]* and the input schema must compile as a structural
// JSON schema. A duplicate name is a validation error, not an overwrite: two
// tools competing for one name is a wiring bug.
func (r *Registry) Register(ctx context.Context, t Tool) error {
	def := t.Definition()
	if !nameRE.MatchString(def.Name) {
		return errdefs.Newf(errdefs.KindValidation, "invalid tool name %q", def.Name).
			WithCode(errdefs.CodeRegistrationFailed)
	}
	if def.InputSchema == nil {
		return errdefs.Newf(errdefs.KindValidation, "tool %q has no input schema", def.Name).
			WithCode(errdefs.CodeRegistrationFailed)
	}
	compiled, err := compileSchema(def.Name, def.InputSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return errdefs.Newf(errdefs.KindValidation, "tool %q is already registered", def.Name).
			WithCode(errdefs.CodeRegistrationFailed)
	}
	r.entries[def.Name] = &entry{tool: t, def: def, schema: compiled, available: true}

	if observer := observability.ObserverFromContext(ctx); observer != nil {
		observer.Debug(ctx, "tool registered", observability.String(observability.AttrToolName, def.Name))
	}
	return nil
}

// Unregister removes a tool. It reports whether the tool was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		return false
	}
	delete(r.entries, name)
	return true
}

// MarkUnavailable keeps the tool registered but stops advertising and routing
// to it. Used by the mark_unavailable failure strategy for remote tools.
func (r *Registry) MarkUnavailable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.entries[name]
	if !exists {
		return false
	}
	e.available = false
	return true
}

// Has reports whether an available tool with the name exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[name]
	return exists && e.available
}

// lookup returns the entry for the router.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[name]
	return e, exists
}

// Definitions returns the definitions of all available tools, sorted by name.
// This is the set advertised to the model.
func (r *Registry) Definitions() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ai.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		if e.available {
			defs = append(defs, e.def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the names of all available tools, sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// compileSchema compiles a structural input schema for call-time validation.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "encoding input schema", err).
			WithCode(errdefs.CodeRegistrationFailed)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + "-input.json"
	if err := compiler.AddResource(resource, bytes.NewReader(encoded)); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "input schema is not structural", err).
			WithCode(errdefs.CodeRegistrationFailed).
			WithContext("tool", name)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "input schema is not structural", err).
			WithCode(errdefs.CodeRegistrationFailed).
			WithContext("tool", name)
	}
	return compiled, nil
}
