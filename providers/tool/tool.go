package tool

import (
	"context"
	"encoding/json"

	invopop "github.com/invopop/jsonschema"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
)

// Tool binds a definition to an executable handler. Handlers receive the
// structured parameters of a tool call and return a structured result; the
// router turns both failure and success into an [ai.ToolOutcome].
type Tool interface {
	Definition() ai.ToolDefinition
	Call(ctx context.Context, input map[string]any) (any, error)
}

// HandlerFunc is the untyped handler shape accepted by [NewHandler].
type HandlerFunc func(ctx context.Context, input map[string]any) (any, error)

// handlerTool adapts a raw definition and handler into a Tool.
type handlerTool struct {
	def     ai.ToolDefinition
	handler HandlerFunc
}

// NewHandler wraps a definition and an untyped handler. Prefer [New] for Go
// functions with typed inputs; NewHandler exists for tools whose schema comes
// from elsewhere, such as remote tool sources.
func NewHandler(def ai.ToolDefinition, handler HandlerFunc) Tool {
	return &handlerTool{def: def, handler: handler}
}

func (t *handlerTool) Definition() ai.ToolDefinition { return t.def }

func (t *handlerTool) Call(ctx context.Context, input map[string]any) (any, error) {
	return t.handler(ctx, input)
}

// Func is a tool whose handler takes a typed input. Input and output schemas
// are derived from the Go types by reflection.
type Func[I, O any] struct {
	def ai.ToolDefinition
	fn  func(ctx context.Context, input I) (O, error)
}

// Option configures a tool built by [New].
type Option func(*ai.ToolDefinition)

// WithDescription sets the description surfaced to the model.
func WithDescription(description string) Option {
	return func(def *ai.ToolDefinition) {
		def.Description = description
	}
}

// WithHints attaches per-provider overrides to the definition.
func WithHints(hints map[string]map[string]any) Option {
	return func(def *ai.ToolDefinition) {
		def.Hints = hints
	}
}

// New builds a typed tool from a Go function. The input schema advertised to
// the model is reflected from I; jsonschema struct tags refine descriptions
// and constraints.
//
//	add := tool.New("add", func(ctx context.Context, in AddInput) (AddOutput, error) {
//	    return AddOutput{Sum: in.A + in.B}, nil
//	}, tool.WithDescription("Adds two numbers."))
func New[I, O any](name string, fn func(ctx context.Context, input I) (O, error), options ...Option) *Func[I, O] {
	def := ai.ToolDefinition{
		Name:         name,
		InputSchema:  reflectSchema[I](),
		OutputSchema: reflectSchema[O](),
	}
	for _, option := range options {
		option(&def)
	}
	return &Func[I, O]{def: def, fn: fn}
}

func (t *Func[I, O]) Definition() ai.ToolDefinition { return t.def }

// Call decodes the structured input into I, runs the function, and returns
// its output. The router has already validated input against the schema, so
// decoding failures indicate a schema/type mismatch in the tool itself.
func (t *Func[I, O]) Call(ctx context.Context, input map[string]any) (any, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "encoding tool input", err)
	}
	var typed I
	if err := json.Unmarshal(encoded, &typed); err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "decoding tool input", err)
	}
	return t.fn(ctx, typed)
}

// reflectSchema derives an inline JSON schema for T.
func reflectSchema[T any]() map[string]any {
	reflector := &invopop.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""

	encoded, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	return out
}
