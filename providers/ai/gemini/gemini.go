// Package gemini implements the provider plugin for the Google Gemini
// generateContent API: request translation, response and SSE stream parsing,
// error normalization against google.rpc status strings, and finish-reason
// classification including the STOP-with-functionCall tool-use case.
package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/transport"
)

const (
	// PluginID and PluginVersion form the registry key; the canonical plugin
	// string is "google-gemini-v1".
	PluginID      = "google"
	PluginVersion = "gemini-v1"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

var configSchema = ai.MustCompileConfigSchema("gemini-config.json", []byte(`{
  "type": "object",
  "required": ["apiKey"],
  "properties": {
    "apiKey": { "type": "string", "minLength": 1 },
    "baseUrl": { "type": "string", "pattern": "^https?://" },
    "timeoutMs": { "type": "integer", "minimum": 1000, "maximum": 300000 }
  }
}`))

var modelPrefixes = []string{"gemini-"}

// terminationVocabulary maps generateContent finish reasons onto the unified
// set. STOP alone is natural completion; DetectTermination upgrades it to
// tool use when the message carries a function call.
var terminationVocabulary = map[string]ai.TerminationReason{
	"STOP":       ai.TerminationNaturalCompletion,
	"MAX_TOKENS": ai.TerminationTokenLimit,
	"SAFETY":     ai.TerminationContentFiltered,
	"RECITATION": ai.TerminationContentFiltered,
}

// Plugin is the Google Gemini provider plugin.
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

// SupportsModel reports whether the model belongs to a Gemini family.
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

// TranslateRequest shapes the vendor HTTP request. The model name is part of
// the URL path; streaming switches the method suffix and requests SSE framing
// through alt=sse.
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

	method := "generateContent"
	suffix := ""
	if req.Stream {
		method = "streamGenerateContent"
		suffix = "?alt=sse"
	}
	url := fmt.Sprintf("%s/models/%s:%s%s", cfg.BaseURL, ai.ModelName(req.Model), method, suffix)

	header := http.Header{}
	header.Set("x-goog-api-key", cfg.APIKey)
	header.Set("Content-Type", "application/json")
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	}
	for name, value := range cfg.Headers {
		header.Set(name, value)
	}

	return transport.Request{
		Method: http.MethodPost,
		URL:    url,
		Header: header,
		Body:   encoded,
	}, nil
}

// NormalizeError maps the google.rpc error envelope onto the taxonomy. The
// status string is more reliable than the HTTP status for quota and auth
// failures, so it takes precedence when recognized.
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
	var status, message string
	if decodeErr := json.Unmarshal(resp.Body, &envelope); decodeErr == nil && envelope.Error != nil {
		status = envelope.Error.Status
		message = envelope.Error.Message
	}

	var e *errdefs.Error
	switch status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		e = errdefs.Newf(errdefs.KindAuth, "provider rejected credentials: %s", message)
	case "RESOURCE_EXHAUSTED":
		e = errdefs.Newf(errdefs.KindRateLimit, "provider throttled the request: %s", message)
	case "DEADLINE_EXCEEDED":
		e = errdefs.Newf(errdefs.KindTimeout, "provider reported a timeout: %s", message)
	default:
		return ai.NormalizeHTTPError(PluginID, PluginVersion, resp, status, message)
	}
	return e.WithProvider(PluginID, PluginVersion).
		WithHTTPStatus(resp.Status).
		WithCode(status).
		WithContext("headers", errdefs.MaskHeaders(resp.Header))
}

// DetectTermination classifies a generateContent finish reason. STOP combined
// with a pending function call means the model expects tool results, not that
// the turn is over.
func (p *Plugin) DetectTermination(finishReason string, finished bool, msg *ai.Message) ai.TerminationSignal {
	if finished && finishReason == "STOP" && msg != nil && len(msg.ToolUses()) > 0 {
		return ai.TerminationSignal{
			ShouldTerminate: true,
			Source:          ai.SourceFinishReason,
			RawValue:        finishReason,
			Reason:          ai.TerminationToolUse,
			Confidence:      ai.ConfidenceHigh,
			Message:         "STOP with a pending function call",
		}
	}
	return ai.ClassifyTermination(terminationVocabulary, finishReason, finished)
}
