// Package config defines the client configuration surface and its validation
// rules. A zero Config is usable after [Config.WithDefaults]; [Config.Validate]
// rejects every malformed combination before the client accepts it.
package config

import (
	"net/url"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/tool"
	"github.com/llmbridge/bridge/transport/retry"
)

// Per-call timeout bounds, in milliseconds.
const (
	MinTimeoutMs     = 1000
	MaxTimeoutMs     = 300000
	DefaultTimeoutMs = 30000
)

// DefaultConfigName selects the provider configuration used when a request
// does not name one.
const DefaultConfigName = "default"

// Model seed modes.
const (
	SeedNone    = "none"
	SeedBuiltin = "builtin"
	SeedData    = "data"
)

// Rate limit scopes, from coarsest to finest bucket granularity.
const (
	ScopeGlobal           = "global"
	ScopeProvider         = "provider"
	ScopeProviderModel    = "provider:model"
	ScopeProviderModelKey = "provider:model:key"
)

// Config is the full client configuration.
type Config struct {
	// DefaultProvider is the provider id assumed when a request omits
	// qualification. Unqualified model ids are still rejected; this only
	// drives defaults like DefaultModel resolution.
	DefaultProvider string `json:"defaultProvider,omitempty"`

	// Providers maps provider id to its named configurations. A single
	// unnamed configuration lives under [DefaultConfigName].
	Providers map[string]map[string]ai.ProviderConfig `json:"providers,omitempty"`

	// DefaultModel fills an empty ChatRequest.Model.
	DefaultModel string `json:"defaultModel,omitempty"`

	// TimeoutMs is the default per-call timeout, clamped to
	// [MinTimeoutMs, MaxTimeoutMs].
	TimeoutMs int `json:"timeout,omitempty"`

	// ModelSeed selects how the model catalog is populated.
	ModelSeed ModelSeed `json:"modelSeed,omitempty"`

	Tools     ToolsConfig     `json:"tools,omitempty"`
	RateLimit RateLimitConfig `json:"rateLimitPolicy,omitempty"`
	Retry     *retry.Config   `json:"retryPolicy,omitempty"`
}

// ModelSeed controls catalog population: no seed, the builtin catalog, or
// caller-supplied data.
type ModelSeed struct {
	Mode string         `json:"mode,omitempty"`
	Data []ai.ModelInfo `json:"data,omitempty"`
}

// ToolsConfig gates and tunes the tool subsystem.
type ToolsConfig struct {
	Enabled      bool     `json:"enabled,omitempty"`
	BuiltinTools []string `json:"builtinTools,omitempty"`

	// ExecutionTimeoutMs bounds one tool execution; [1000, 300000].
	ExecutionTimeoutMs int `json:"executionTimeoutMs,omitempty"`
	// MaxConcurrentTools bounds parallel executions; [1, 10].
	MaxConcurrentTools int `json:"maxConcurrentTools,omitempty"`

	MCPServers []MCPServer `json:"mcpServers,omitempty"`
	// MCPToolFailureStrategy applies when a remote tool call fails.
	MCPToolFailureStrategy tool.FailureStrategy `json:"mcpToolFailureStrategy,omitempty"`
}

// MCPServer names one external tool source, reachable either over HTTP(S) or
// by spawning a command. Exactly one of URL and Command must be set.
type MCPServer struct {
	Name    string   `json:"name"`
	URL     string   `json:"url,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

// RateLimitConfig is the client-side token-bucket policy.
type RateLimitConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	// MaxRPS is the sustained request rate. Required when Enabled.
	MaxRPS float64 `json:"maxRps,omitempty"`
	// Burst is the bucket size; zero takes 2×MaxRPS.
	Burst int `json:"burst,omitempty"`
	// Scope selects the bucket key granularity.
	Scope string `json:"scope,omitempty"`
}

// WithDefaults fills zero values: timeout 30s, seed mode none, tool limits at
// their defaults, rate limit scope global, burst 2×maxRps.
func (c Config) WithDefaults() Config {
	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.ModelSeed.Mode == "" {
		if len(c.ModelSeed.Data) > 0 {
			c.ModelSeed.Mode = SeedData
		} else {
			c.ModelSeed.Mode = SeedNone
		}
	}
	if c.Tools.ExecutionTimeoutMs == 0 {
		c.Tools.ExecutionTimeoutMs = int(tool.DefaultExecutionTimeout / time.Millisecond)
	}
	if c.Tools.MaxConcurrentTools == 0 {
		c.Tools.MaxConcurrentTools = tool.DefaultConcurrentTools
	}
	if c.Tools.MCPToolFailureStrategy == "" {
		c.Tools.MCPToolFailureStrategy = tool.FailureMarkUnavailable
	}
	if c.RateLimit.Scope == "" {
		c.RateLimit.Scope = ScopeGlobal
	}
	if c.RateLimit.Enabled && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = int(2 * c.RateLimit.MaxRPS)
	}
	return c
}

// Validate checks every configured value. Call after [Config.WithDefaults].
func (c Config) Validate() error {
	if c.TimeoutMs < MinTimeoutMs || c.TimeoutMs > MaxTimeoutMs {
		return invalid("timeout %dms outside [%d, %d]", c.TimeoutMs, MinTimeoutMs, MaxTimeoutMs)
	}

	for id, named := range c.Providers {
		if id == "" {
			return invalid("provider name must not be empty")
		}
		if len(named) == 0 {
			return invalid("provider %q has no configurations", id)
		}
		for name := range named {
			if name == "" {
				return invalid("provider %q has a configuration with an empty name", id)
			}
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return invalid("defaultProvider %q is not present in providers", c.DefaultProvider)
		}
	}

	if err := c.ModelSeed.validate(); err != nil {
		return err
	}
	if err := c.Tools.validate(); err != nil {
		return err
	}
	if err := c.RateLimit.validate(); err != nil {
		return err
	}
	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s ModelSeed) validate() error {
	switch s.Mode {
	case SeedNone, SeedBuiltin:
		return nil
	case SeedData:
		if len(s.Data) == 0 {
			return invalid("modelSeed mode %q requires data", SeedData)
		}
		for _, info := range s.Data {
			if info.ID == "" {
				return invalid("modelSeed entry has an empty model id")
			}
		}
		return nil
	default:
		return invalid("unknown modelSeed mode %q", s.Mode)
	}
}

func (t ToolsConfig) validate() error {
	for _, name := range t.BuiltinTools {
		if name == "" {
			return invalid("builtinTools contains an empty tool name")
		}
	}
	if t.ExecutionTimeoutMs < MinTimeoutMs || t.ExecutionTimeoutMs > MaxTimeoutMs {
		return invalid("tools.executionTimeoutMs %d outside [%d, %d]",
			t.ExecutionTimeoutMs, MinTimeoutMs, MaxTimeoutMs)
	}
	if t.MaxConcurrentTools < tool.MinConcurrentTools || t.MaxConcurrentTools > tool.MaxConcurrentTools {
		return invalid("tools.maxConcurrentTools %d outside [%d, %d]",
			t.MaxConcurrentTools, tool.MinConcurrentTools, tool.MaxConcurrentTools)
	}
	if !tool.ValidFailureStrategy(t.MCPToolFailureStrategy) {
		return invalid("unknown mcpToolFailureStrategy %q", t.MCPToolFailureStrategy)
	}

	seen := make(map[string]bool, len(t.MCPServers))
	for _, server := range t.MCPServers {
		if server.Name == "" {
			return invalid("mcpServers entry has an empty name")
		}
		if seen[server.Name] {
			return invalid("duplicate MCP server name %q", server.Name)
		}
		seen[server.Name] = true
		if err := server.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s MCPServer) validate() error {
	hasURL := s.URL != ""
	hasCommand := s.Command != ""
	if hasURL == hasCommand {
		return invalid("MCP server %q must set exactly one of url and command", s.Name)
	}
	if hasURL {
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("MCP server %q url %q is not a valid HTTP(S) URL", s.Name, s.URL)
		}
	}
	return nil
}

func (r RateLimitConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxRPS <= 0 {
		return invalid("rateLimitPolicy.maxRps is required when the policy is enabled")
	}
	if r.Burst < 1 {
		return invalid("rateLimitPolicy.burst must be >= 1, got %d", r.Burst)
	}
	switch r.Scope {
	case ScopeGlobal, ScopeProvider, ScopeProviderModel, ScopeProviderModelKey:
		return nil
	default:
		return invalid("unknown rateLimitPolicy.scope %q", r.Scope)
	}
}

// EffectiveTimeout resolves the per-call timeout: the provider override when
// set, else the client default, clamped to the allowed range.
func (c Config) EffectiveTimeout(providerCfg *ai.ProviderConfig) time.Duration {
	ms := c.TimeoutMs
	if providerCfg != nil && providerCfg.TimeoutMs != 0 {
		ms = providerCfg.TimeoutMs
	}
	if ms == 0 {
		ms = DefaultTimeoutMs
	}
	ms = min(max(ms, MinTimeoutMs), MaxTimeoutMs)
	return time.Duration(ms) * time.Millisecond
}

// EffectiveToolTimeout returns the per-tool execution timeout as a duration.
func (c Config) EffectiveToolTimeout() time.Duration {
	ms := c.Tools.ExecutionTimeoutMs
	if ms == 0 {
		ms = int(tool.DefaultExecutionTimeout / time.Millisecond)
	}
	return time.Duration(ms) * time.Millisecond
}

// Provider resolves a named configuration for a provider id. An empty name
// selects [DefaultConfigName].
func (c Config) Provider(id, name string) (ai.ProviderConfig, error) {
	named, ok := c.Providers[id]
	if !ok {
		return ai.ProviderConfig{}, errdefs.Newf(errdefs.KindBridge,
			"no configuration for provider %q", id).
			WithCode(errdefs.CodeProviderConfigMissing)
	}
	if name == "" {
		name = DefaultConfigName
	}
	cfg, ok := named[name]
	if !ok {
		return ai.ProviderConfig{}, errdefs.Newf(errdefs.KindBridge,
			"provider %q has no configuration named %q", id, name).
			WithCode(errdefs.CodeProviderConfigMissing)
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return errdefs.Newf(errdefs.KindValidation, format, args...).
		WithCode(errdefs.CodeInvalidConfig)
}
