// Package openai implements the provider plugin for the OpenAI Responses v1
// API: request translation to POST {baseUrl}/responses, response and SSE
// stream parsing, error normalization, and finish-reason classification.
package openai

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
	// string is "openai-responses-v1".
	PluginID      = "openai"
	PluginVersion = "responses-v1"

	defaultBaseURL    = "https://api.openai.com/v1"
	responsesEndpoint = "/responses"
)

// configSchema constrains the provider configuration accepted by Initialize.
var configSchema = ai.MustCompileConfigSchema("openai-config.json", []byte(`{
  "type": "object",
  "required": ["apiKey"],
  "properties": {
    "apiKey": { "type": "string", "minLength": 1 },
    "baseUrl": { "type": "string", "pattern": "^https?://" },
    "organization": { "type": "string" },
    "project": { "type": "string" },
    "timeoutMs": { "type": "integer", "minimum": 1000, "maximum": 300000 }
  }
}`))

// modelPrefixes enumerates the model families this plugin serves.
var modelPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt-"}

// terminationVocabulary maps Responses API finish reasons onto the unified set.
var terminationVocabulary = map[string]ai.TerminationReason{
	"stop":              ai.TerminationNaturalCompletion,
	"length":            ai.TerminationTokenLimit,
	"max_output_tokens": ai.TerminationTokenLimit,
	"content_filter":    ai.TerminationContentFiltered,
	"tool_calls":        ai.TerminationToolUse,
	"function_call":     ai.TerminationToolUse, // legacy vocabulary
	"cancelled":         ai.TerminationCancelled,
	"error":             ai.TerminationError,
}

// Plugin is the OpenAI Responses v1 provider plugin.
type Plugin struct {
	mu          sync.Mutex
	cfg         ai.ProviderConfig
	initialized bool
}

// New creates an uninitialized plugin. The client initializes it lazily with
// the routed provider configuration.
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

// SupportsModel reports whether the model belongs to an OpenAI family. A
// qualified id must carry the "openai" prefix.
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

// TranslateRequest shapes the vendor HTTP request. Temperature is omitted
// whenever the model capabilities disallow it; req.Stream toggles SSE mode.
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
	if cfg.Organization != "" {
		header.Set("OpenAI-Organization", cfg.Organization)
	}
	if cfg.Project != "" {
		header.Set("OpenAI-Project", cfg.Project)
	}
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	}
	for name, value := range cfg.Headers {
		header.Set(name, value)
	}

	return transport.Request{
		Method: http.MethodPost,
		URL:    cfg.BaseURL + responsesEndpoint,
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
	}
	var code, message string
	if decodeErr := json.Unmarshal(resp.Body, &envelope); decodeErr == nil && envelope.Error != nil {
		code = envelope.Error.Code
		if code == "" {
			code = envelope.Error.Type
		}
		message = envelope.Error.Message
	}
	return ai.NormalizeHTTPError(PluginID, PluginVersion, resp, code, message)
}

// DetectTermination classifies a Responses API finish reason.
func (p *Plugin) DetectTermination(finishReason string, finished bool, _ *ai.Message) ai.TerminationSignal {
	return ai.ClassifyTermination(terminationVocabulary, finishReason, finished)
}
