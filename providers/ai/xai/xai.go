// Package xai implements the provider plugin for the xAI v1 API. The API is
// wire-compatible with OpenAI chat completions: POST {baseUrl}/chat/completions
// with bearer auth, choices/finish_reason responses, and chunked SSE deltas
// closed by the [DONE] sentinel.
package xai

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
	// string is "xai-v1".
	PluginID      = "xai"
	PluginVersion = "v1"

	defaultBaseURL      = "https://api.x.ai/v1"
	completionsEndpoint = "/chat/completions"
)

var configSchema = ai.MustCompileConfigSchema("xai-config.json", []byte(`{
  "type": "object",
  "required": ["apiKey"],
  "properties": {
    "apiKey": { "type": "string", "minLength": 1 },
    "baseUrl": { "type": "string", "pattern": "^https?://" },
    "timeoutMs": { "type": "integer", "minimum": 1000, "maximum": 300000 }
  }
}`))

var modelPrefixes = []string{"grok-"}

// terminationVocabulary maps chat-completions finish reasons onto the unified
// set.
var terminationVocabulary = map[string]ai.TerminationReason{
	"stop":           ai.TerminationNaturalCompletion,
	"length":         ai.TerminationTokenLimit,
	"tool_calls":     ai.TerminationToolUse,
	"function_call":  ai.TerminationToolUse,
	"content_filter": ai.TerminationContentFiltered,
}

// Plugin is the xAI provider plugin.
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

// Initialize validates and stores the provider configuration.
func (p *Plugin) Initialize(cfg ai.ProviderConfig) error {
	if err := ai.ValidateProviderConfig(configSchema, cfg); err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
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

// SupportsModel reports whether the model belongs to a Grok family.
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

// TranslateRequest shapes the vendor HTTP request.
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
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("Content-Type", "application/json")
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	}
	for name, value := range cfg.Headers {
		header.Set(name, value)
	}

	return transport.Request{
		Method: http.MethodPost,
		URL:    cfg.BaseURL + completionsEndpoint,
		Header: header,
		Body:   encoded,
	}, nil
}

// NormalizeError maps the vendor error envelope and host-level failures onto
// the shared taxonomy.
func (p *Plugin) NormalizeError(resp *transport.Response, err error) error {
	if err != nil {
		return ai.NormalizeHostError(PluginID, PluginVersion, err)
	}
	if resp == nil {
		return nil
	}

	var envelope struct {
		Error *wireError `json:"error"`
		Code  string     `json:"code,omitempty"`
		Msg   string     `json:"error_message,omitempty"`
	}
	var code, message string
	if decodeErr := json.Unmarshal(resp.Body, &envelope); decodeErr == nil {
		if envelope.Error != nil {
			code = envelope.Error.Code
			if code == "" {
				code = envelope.Error.Type
			}
			message = envelope.Error.Message
		} else {
			code, message = envelope.Code, envelope.Msg
		}
	}
	return ai.NormalizeHTTPError(PluginID, PluginVersion, resp, code, message)
}

// DetectTermination classifies a chat-completions finish reason.
func (p *Plugin) DetectTermination(finishReason string, finished bool, _ *ai.Message) ai.TerminationSignal {
	return ai.ClassifyTermination(terminationVocabulary, finishReason, finished)
}
