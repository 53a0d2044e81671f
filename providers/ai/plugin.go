package ai

import (
	"context"
	"strings"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/transport"
)

// Capabilities describes what a model supports. Plugins use it to gate
// request translation: a model with Temperature=false never receives a
// temperature field, whatever the request says.
type Capabilities struct {
	Temperature      bool `json:"temperature"`
	Streaming        bool `json:"streaming"`
	Tools            bool `json:"tools"`
	SupportsImages   bool `json:"supportsImages"`
	MaxContextTokens int  `json:"maxContextTokens,omitempty"`
}

// ModelInfo is one catalog entry: a qualified model id, the provider that
// serves it, its capabilities, and the plugin string that routes to it.
type ModelInfo struct {
	// ID is the qualified "provider:modelName" identifier.
	ID string `json:"id"`
	// Provider is the provider prefix of ID.
	Provider     string       `json:"provider"`
	Capabilities Capabilities `json:"capabilities"`
	// Metadata must contain MetadataProviderPlugin with a canonical plugin
	// string such as "openai-responses-v1".
	Metadata map[string]string `json:"metadata"`
}

// MetadataProviderPlugin is the ModelInfo metadata key holding the canonical
// plugin string.
const MetadataProviderPlugin = "providerPlugin"

// PluginRef returns the canonical plugin string the model routes to.
func (m ModelInfo) PluginRef() string {
	return m.Metadata[MetadataProviderPlugin]
}

// Plugin adapts the unified chat model to one vendor wire protocol. Plugins
// hold no transport or client back-references; everything they need for a
// call arrives as a parameter. Initialize is idempotent and the client
// memoizes it per (id, version).
type Plugin interface {
	// ID is the stable provider identifier, e.g. "openai".
	ID() string
	// Version is the wire protocol version, e.g. "responses-v1".
	Version() string

	// Initialize validates the provider configuration against the plugin's
	// schema and stores it. Calling it again with the same configuration is
	// a no-op; plugins must tolerate repeated calls.
	Initialize(cfg ProviderConfig) error

	// SupportsModel reports whether the plugin can serve the model. The id
	// may be qualified or bare.
	SupportsModel(model string) bool

	// TranslateRequest deterministically shapes the vendor HTTP request.
	// When caps.Temperature is false the vendor body omits temperature
	// regardless of the request value; when req.Stream is true the vendor
	// streaming toggle is set.
	TranslateRequest(req ChatRequest, caps *Capabilities) (transport.Request, error)

	// ParseResponse decodes a buffered, non-streaming vendor response.
	ParseResponse(resp *transport.Response) (*ChatResponse, error)

	// ParseStream decodes a streaming vendor response into a lazy delta
	// sequence. The plugin owns resp.Stream and closes it when iteration
	// finishes or is abandoned.
	ParseStream(ctx context.Context, resp *transport.Response) *DeltaStream

	// NormalizeError maps a vendor error response and/or a host-level error
	// onto the shared taxonomy. Either argument may be nil.
	NormalizeError(resp *transport.Response, err error) error

	// DetectTermination classifies the vendor finish reason. msg, when
	// non-nil, lets plugins inspect content (Gemini reports tool calls as
	// STOP plus functionCall parts).
	DetectTermination(finishReason string, finished bool, msg *Message) TerminationSignal
}

// ParsePluginRef resolves a canonical plugin string to its registry key.
// The id is everything before the first dash, the version everything after:
// "openai-responses-v1" is (openai, responses-v1), "anthropic-2023-06-01" is
// (anthropic, 2023-06-01), "google-gemini-v1" is (google, gemini-v1),
// "xai-v1" is (xai, v1).
func ParsePluginRef(ref string) (id, version string, err error) {
	id, version, ok := strings.Cut(ref, "-")
	if !ok || id == "" || version == "" {
		return "", "", errdefs.Newf(errdefs.KindValidation,
			"plugin reference %q must have the form <id>-<version>", ref).
			WithCode(errdefs.CodeProviderPluginUnmapped)
	}
	return id, version, nil
}

// PluginRefString builds the canonical plugin string for a registry key.
func PluginRefString(id, version string) string {
	return id + "-" + version
}
