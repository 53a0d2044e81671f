// Package anthropic implements the provider plugin for the Anthropic Messages
// API (version 2023-06-01): request translation to POST {baseUrl}/messages,
// response and SSE stream parsing, error normalization, and stop-reason
// classification.
package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

const (
	// PluginID and PluginVersion form the registry key; the canonical plugin
	// string is "anthropic-2023-06-01".
	PluginID      = "anthropic"
	PluginVersion = "2023-06-01"

	defaultBaseURL   = "https://api.anthropic.com/v1"
	messagesEndpoint = "/messages"

	// defaultMaxTokens applies when the request does not set a limit; the
	// Messages API requires max_tokens on every call.
	defaultMaxTokens = 4096
)

var configSchema = ai.MustCompileConfigSchema("anthropic-config.json", []byte(`{
  "type": "object",
  "required": ["apiKey"],
  "properties": {
    "apiKey": { "type": "string", "minLength": 1 },
    "baseUrl": { "type": "string", "pattern": "^https?://" },
    "apiVersion": { "type": "string" },
    "timeoutMs": { "type": "integer", "minimum": 1000, "maximum": 300000 }
  }
}`))

var modelPrefixes = []string{"claude-"}

// terminationVocabulary maps Messages API stop reasons onto the unified set.
var terminationVocabulary = map[string]ai.TerminationReason{
	"end_turn":      ai.TerminationNaturalCompletion,
	"stop_sequence": ai.TerminationNaturalCompletion,
	"max_tokens":    ai.TerminationTokenLimit,
	"tool_use":      ai.TerminationToolUse,
	"refusal":       ai.TerminationContentFiltered,
}

// Plugin is the Anthropic Messages provider plugin.
type Plugin struct {
	mu          sync.Mutex
	cfg         ai.ProviderConfig
	initialized bool
}

func New() *Plugin {
	return &Plugin{}
}

var _ ai.Plugin = (*Plugin)(nil)

// ID implements [ai.Plugin].
func (p *Plugin) ID() string { return PluginID }

// Version implements [ai.Plugin].
func (p *Plugin) Version() string { return PluginVersion }

// Initialize validates and stores the provider configuration. Repeated calls
// are tolerated; the last configuration wins.
func (p *Plugin) Initialize(cfg ai.ProviderConfig) error {
	if err := ai.ValidateProviderConfig(configSchema, cfg); err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = PluginVersion
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.initialized = true
	return nil
}

func (p *Plugin) config() (ai.ProviderConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return ai.ProviderConfig{}, errdefs.Newf(errdefs.KindBridge, "plugin %s/%s is not initialized", PluginID, PluginVersion).
			WithCode(errdefs.CodeNotInitialized)
	}
	return p.cfg, nil
}

// SupportsModel reports whether the model belongs to a Claude family.
func (p *Plugin) SupportsModel(model string) bool {
	if provider, bare, err := ai.SplitModelID(model); err == nil {
		if provider != PluginID {
			return false
		}
		model = bare
	}
	for _, prefix := range modelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// TranslateRequest shapes the vendor HTTP request. System messages move into
// the top-level system field; max_tokens falls back to the API-required
// default when the request omits it.
func (p *Plugin) TranslateRequest(req ai.ChatRequest, caps *ai.Capabilities) (transport.Request, error) {
	cfg, err := p.config()
	if err != nil {
		return transport.Request{}, err
	}

	body, err := translateBody(req, caps)
	if err != nil {
		return transport.Request{}, err
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return transport.Request{}, errdefs.Wrap(errdefs.KindValidation, "encoding request body", err)
	}

	header := http.Header{}
	header.Set("x-api-key", cfg.APIKey)
	header.Set("anthropic-version", cfg.APIVersion)
	header.Set("Content-Type", "application/json")
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	}
	for name, value := range cfg.Headers {
		header.Set(name, value)
	}

	return transport.Request{
		Method: http.MethodPost,
		URL:    cfg.BaseURL + messagesEndpoint,
		Header: header,
		Body:   encoded,
	}, nil
}

// NormalizeError maps the vendor error envelope and host-level failures onto
// the shared taxonomy. The distinctive 529 overloaded status is treated as a
// retryable provider failure.
func (p *Plugin) NormalizeError(resp *transport.Response, err error) error {
	if err != nil {
		return ai.NormalizeHostError(PluginID, PluginVersion, err)
	}
	if resp == nil {
		return nil
	}

	var envelope struct {
		Error *wireError `json:"error"`
	}
	var code, message string
	if decodeErr := json.Unmarshal(resp.Body, &envelope); decodeErr == nil && envelope.Error != nil {
		code = envelope.Error.Type
		message = envelope.Error.Message
	}
	return ai.NormalizeHTTPError(PluginID, PluginVersion, resp, code, message)
}

// DetectTermination classifies a Messages API stop reason.
func (p *Plugin) DetectTermination(finishReason string, finished bool, _ *ai.Message) ai.TerminationSignal {
	return ai.ClassifyTermination(terminationVocabulary, finishReason, finished)
}
