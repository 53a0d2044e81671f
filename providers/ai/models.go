package ai

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"    // System instructions/configuration
	RoleUser      Role = "user"      // End-user message
	RoleAssistant Role = "assistant" // Model response
	RoleTool      Role = "tool"      // Tool execution output
)

// knownRoles is the closed set accepted by message validation.
var knownRoles = map[Role]bool{
	RoleSystem: true, RoleUser: true, RoleAssistant: true, RoleTool: true,
}

// Message is a single conversation turn. Content is an ordered sequence of
// typed parts; an assistant message that requests tools carries ToolUse parts
// and must eventually be followed by tool messages whose ToolResult parts
// cover every requested call id.
type Message struct {
	Role     Role           `json:"role"`
	Content  []ContentPart  `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewTextMessage builds a message with a single text part.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentPart{TextPart{Text: text}}}
}

// Text concatenates the text content of all Text and Code parts, in order.
func (m Message) Text() string {
	var out string
	for _, part := range m.Content {
		switch p := part.(type) {
		case TextPart:
			out += p.Text
		case CodePart:
			out += p.Text
		}
	}
	return out
}

// ToolUses returns the ToolUse parts of the message, in order.
func (m Message) ToolUses() []ToolUsePart {
	var uses []ToolUsePart
	for _, part := range m.Content {
		if p, ok := part.(ToolUsePart); ok {
			uses = append(uses, p)
		}
	}
	return uses
}

// MultiTurnOptions controls the agent loop when a request enables tools.
type MultiTurnOptions struct {
	// Enabled turns on tool-aware conversation continuation. When false the
	// assistant message is returned as-is even if it requests tools.
	Enabled bool `json:"enabled"`

	// MaxIterations bounds the number of request/response rounds. Must be in
	// [1, 1000]; zero takes the default of 10.
	MaxIterations int `json:"maxIterations,omitempty"`

	// TimeoutMs bounds the whole conversation, in milliseconds. At most 24h;
	// zero takes the default of 10 minutes.
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// IterationTimeoutMs bounds a single iteration. Must be below TimeoutMs;
	// zero takes the default of 60 seconds.
	IterationTimeoutMs int `json:"iterationTimeoutMs,omitempty"`
}

// ChatRequest is the unified request accepted by the client façade. The model
// id must be qualified as "provider:modelName". Sampling fields are pointers
// so "unset" stays distinguishable from an explicit zero.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"maxTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`

	Tools     []ToolDefinition  `json:"tools,omitempty"`
	Stream    bool              `json:"stream,omitempty"`
	MultiTurn *MultiTurnOptions `json:"multiTurn,omitempty"`

	// ProviderConfig selects one of the named per-provider configurations.
	// Empty means "default".
	ProviderConfig string `json:"providerConfig,omitempty"`

	// Options carries provider-specific extras that have no unified field.
	Options map[string]any `json:"options,omitempty"`
}

// ConfigName returns the named provider configuration the request selects.
func (r ChatRequest) ConfigName() string {
	if r.ProviderConfig == "" {
		return "default"
	}
	return r.ProviderConfig
}

// ToolDefinition describes a callable tool advertised to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`

	// OutputSchema is advisory; no provider wire format consumes it today.
	OutputSchema map[string]any `json:"outputSchema,omitempty"`

	// Hints carries per-provider overrides keyed by plugin id.
	Hints    map[string]map[string]any `json:"hints,omitempty"`
	Metadata map[string]any            `json:"metadata,omitempty"`
}

// Usage reports token consumption for one response.
type Usage struct {
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
	TotalTokens      int `json:"totalTokens,omitempty"`
}

// Metadata keys set by plugins on responses and terminal deltas.
const (
	// MetaFinishReason holds the raw vendor finish reason.
	MetaFinishReason = "finishReason"
	// MetaEventType holds the vendor SSE event type that produced a delta.
	MetaEventType = "eventType"
	// MetaToolCalls holds an OpenAI-style raw tool_calls array when the
	// vendor reports calls outside the content parts.
	MetaToolCalls = "tool_calls"
	// MetaStopSequence holds the matched stop sequence (Anthropic).
	MetaStopSequence = "stopSequence"
	// MetaSafetyRatings holds vendor safety annotations (Gemini).
	MetaSafetyRatings = "safetyRatings"
)

// ChatResponse is the final parsed outcome of one model call.
type ChatResponse struct {
	// ID is the vendor response id, or a synthesized stream id.
	ID string `json:"id"`
	// Model is the vendor-reported model name, when present.
	Model string `json:"model,omitempty"`
	// Message is the assistant message.
	Message Message `json:"message"`
	// FinishReason is the raw vendor finish reason.
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	// Metadata carries vendor extras (stop sequences, safety ratings).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolCall is a normalized tool invocation extracted from an assistant
// message, ready for dispatch through the tool router.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolOutcome is the execution result fed back to the model as a ToolResult
// content part.
type ToolOutcome struct {
	CallID  string     `json:"callId"`
	Success bool       `json:"success"`
	Output  any        `json:"output,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

// ProviderConfig holds the per-provider credentials and connection settings a
// plugin is initialized with. Vendor-specific knobs live in Options.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`

	// Organization and Project map to the OpenAI-Organization and
	// OpenAI-Project headers.
	Organization string `json:"organization,omitempty"`
	Project      string `json:"project,omitempty"`

	// APIVersion overrides the plugin's default wire version header
	// (anthropic-version).
	APIVersion string `json:"apiVersion,omitempty"`

	// TimeoutMs overrides the client default per-call timeout.
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// Headers are extra headers injected into every request.
	Headers map[string]string `json:"headers,omitempty"`

	Options map[string]any `json:"options,omitempty"`
}
