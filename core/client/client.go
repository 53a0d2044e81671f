package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/llmbridge/bridge/core/agent"
	"github.com/llmbridge/bridge/core/config"
	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
	"github.com/llmbridge/bridge/providers/observability"
	"github.com/llmbridge/bridge/providers/tool"
	"github.com/llmbridge/bridge/providers/tool/calculator"
	"github.com/llmbridge/bridge/providers/tool/webfetch"
	"github.com/llmbridge/bridge/transport"
	"github.com/llmbridge/bridge/transport/retry"
)

// Client routes unified chat requests to provider plugins.
type Client struct {
	cfg       config.Config
	transport transport.Transport
	registry  *ai.Registry
	catalog   *ai.Catalog
	observer  observability.Provider

	// tools and router are nil unless the tool subsystem is enabled.
	tools  *tool.Registry
	router *tool.Router

	limiter *scopedLimiter

	// initialized memoizes plugin initialization per (id, version) so a
	// plugin's Initialize runs once even under concurrent first use.
	initMu      sync.Mutex
	initialized map[string]bool
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTransport replaces the default retrying HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithObserver installs the observability provider injected into every call's
// context.
func WithObserver(observer observability.Provider) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// New builds a Client from a validated configuration. The model catalog is
// seeded per cfg.ModelSeed and builtin tools named in cfg.Tools.BuiltinTools
// are registered.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         cfg,
		registry:    ai.NewRegistry(),
		catalog:     ai.NewCatalog(),
		initialized: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		t, err := defaultTransport(cfg)
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	ctx := c.withObserver(context.Background())
	if err := c.seedCatalog(ctx); err != nil {
		return nil, err
	}
	if cfg.Tools.Enabled {
		if err := c.initTools(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.RateLimit.Enabled {
		c.limiter = newScopedLimiter(cfg.RateLimit)
	}
	return c, nil
}

func defaultTransport(cfg config.Config) (transport.Transport, error) {
	reqIC, respIC, err := transport.NewRedactionInterceptors(transport.RedactionConfig{})
	if err != nil {
		return nil, err
	}
	chain := transport.NewChain().UseRequest(reqIC).UseResponse(respIC)
	base := transport.New(transport.WithChain(chain))

	var policy *retry.Policy
	if cfg.Retry != nil {
		if policy, err = retry.New(*cfg.Retry); err != nil {
			return nil, err
		}
	}
	return retry.NewTransport(base, policy), nil
}

func (c *Client) seedCatalog(ctx context.Context) error {
	switch c.cfg.ModelSeed.Mode {
	case config.SeedNone:
		return nil
	case config.SeedBuiltin:
		return c.catalog.SeedBuiltin(ctx)
	case config.SeedData:
		data, err := json.Marshal(struct {
			Models []ai.ModelInfo `json:"models"`
		}{Models: c.cfg.ModelSeed.Data})
		if err != nil {
			return errdefs.Wrap(errdefs.KindValidation, "encoding model seed data", err)
		}
		return c.catalog.SeedData(ctx, data)
	default:
		return errdefs.Newf(errdefs.KindValidation, "unknown model seed mode %q", c.cfg.ModelSeed.Mode).
			WithCode(errdefs.CodeInvalidConfig)
	}
}

func (c *Client) initTools(ctx context.Context) error {
	c.tools = tool.NewRegistry()
	c.router = tool.NewRouter(c.tools, tool.RouterConfig{
		ExecutionTimeout: c.cfg.EffectiveToolTimeout(),
		MaxConcurrent:    c.cfg.Tools.MaxConcurrentTools,
	})
	for _, name := range c.cfg.Tools.BuiltinTools {
		builtin, err := builtinTool(name)
		if err != nil {
			return err
		}
		if err := c.tools.Register(ctx, builtin); err != nil {
			return err
		}
	}
	return nil
}

func builtinTool(name string) (tool.Tool, error) {
	switch name {
	case calculator.Name:
		return calculator.New(), nil
	case webfetch.Name:
		return webfetch.New(), nil
	default:
		return nil, errdefs.Newf(errdefs.KindValidation, "unknown builtin tool %q", name).
			WithCode(errdefs.CodeInvalidConfig)
	}
}

// RegisterProvider adds a plugin to the registry.
func (c *Client) RegisterProvider(ctx context.Context, plugin ai.Plugin) error {
	return c.registry.Register(c.withObserver(ctx), plugin)
}

// RegisterModel adds a catalog entry.
func (c *Client) RegisterModel(ctx context.Context, info ai.ModelInfo) error {
	return c.catalog.Register(c.withObserver(ctx), info)
}

// RegisterTool adds a tool to the tool registry. Fails when the tool
// subsystem is disabled.
func (c *Client) RegisterTool(ctx context.Context, t tool.Tool) error {
	if c.tools == nil {
		return errdefs.New(errdefs.KindBridge, "tool subsystem is disabled").
			WithCode(errdefs.CodeToolsNotEnabled)
	}
	return c.tools.Register(c.withObserver(ctx), t)
}

// ListAvailableProviders enumerates registered plugins.
func (c *Client) ListAvailableProviders() []ai.PluginInfo {
	return c.registry.List("")
}

// ListAvailableModels enumerates catalog entries, optionally filtered by
// provider.
func (c *Client) ListAvailableModels(provider string) []ai.ModelInfo {
	return c.catalog.List(provider)
}

// GetModelCapabilities returns the capabilities of a qualified model id.
func (c *Client) GetModelCapabilities(model string) (ai.Capabilities, error) {
	info, err := c.catalog.Get(model)
	if err != nil {
		return ai.Capabilities{}, err
	}
	return info.Capabilities, nil
}

// GetConfig returns a read-only snapshot of the configuration.
func (c *Client) GetConfig() config.Config {
	return c.cfg
}

// route resolves a request to its plugin, capabilities, and provider
// configuration, following the routing steps: default-model fill-in, request
// validation, catalog lookup, plugin resolution, provider configuration, and
// memoized plugin initialization.
type route struct {
	plugin      ai.Plugin
	info        ai.ModelInfo
	providerCfg ai.ProviderConfig
}

func (c *Client) resolve(req *ai.ChatRequest) (*route, error) {
	if req.Model == "" {
		req.Model = c.cfg.DefaultModel
	}
	if err := ai.ValidateChatRequest(*req); err != nil {
		return nil, err
	}

	info, err := c.catalog.Get(req.Model)
	if err != nil {
		return nil, err
	}
	id, version, err := ai.ParsePluginRef(info.PluginRef())
	if err != nil {
		return nil, err
	}
	plugin, err := c.registry.Get(id, version)
	if err != nil {
		return nil, err
	}
	providerCfg, err := c.cfg.Provider(info.Provider, req.ConfigName())
	if err != nil {
		return nil, err
	}
	if err := c.ensureInitialized(plugin, providerCfg, req.ConfigName()); err != nil {
		return nil, err
	}
	return &route{plugin: plugin, info: info, providerCfg: providerCfg}, nil
}

// ensureInitialized runs Initialize once per plugin and named config. Plugins
// keep the config from their most recent Initialize, so the last named config
// used governs translation until the next one first appears.
func (c *Client) ensureInitialized(plugin ai.Plugin, cfg ai.ProviderConfig, configName string) error {
	key := fmt.Sprintf("%s/%s/%s", plugin.ID(), plugin.Version(), configName)
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized[key] {
		return nil
	}
	if err := plugin.Initialize(cfg); err != nil {
		return err
	}
	c.initialized[key] = true
	return nil
}

// Chat performs a synchronous chat call: route, translate, fetch, parse, and
// when the request enables multi-turn with tools, drive the agent loop.
func (c *Client) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	ctx = c.withObserver(ctx)
	rt, err := c.resolve(&req)
	if err != nil {
		return nil, err
	}
	c.attachTools(&req, rt)

	var span observability.Span
	if c.observer != nil {
		ctx, span = c.observer.StartSpan(ctx, observability.SpanClientChat,
			observability.String(observability.AttrLLMProvider, rt.plugin.ID()),
			observability.String(observability.AttrLLMModel, req.Model),
			observability.Bool(observability.AttrClientStreaming, false),
		)
		defer span.End()
	}

	if err := c.limitWait(ctx, rt, req); err != nil {
		return nil, err
	}

	if req.MultiTurn != nil && req.MultiTurn.Enabled && c.router != nil {
		resp, err := c.runLoop(ctx, rt, req)
		return resp, c.stageCancellation(ctx, err, errdefs.StageExecution)
	}

	resp, err := c.callOnce(ctx, rt, req)
	return resp, c.stageCancellation(ctx, err, errdefs.StageExecution)
}

// attachTools advertises the registered tools when the request brings none of
// its own and the model supports tools.
func (c *Client) attachTools(req *ai.ChatRequest, rt *route) {
	if req.Tools != nil || c.tools == nil || !rt.info.Capabilities.Tools {
		return
	}
	if defs := c.tools.Definitions(); len(defs) > 0 {
		req.Tools = defs
	}
}

func (c *Client) runLoop(ctx context.Context, rt *route, req ai.ChatRequest) (*ai.ChatResponse, error) {
	call := func(callCtx context.Context, messages []ai.Message) (*ai.ChatResponse, error) {
		turn := req
		turn.Messages = messages
		return c.callOnce(callCtx, rt, turn)
	}
	loop, err := agent.NewLoop(call, rt.plugin.DetectTermination, c.router, agent.OptionsFromRequest(req.MultiTurn))
	if err != nil {
		return nil, err
	}
	result, err := loop.Run(ctx, req.Messages)
	if err != nil {
		return nil, err
	}
	if result.Response == nil {
		return nil, errdefs.Newf(errdefs.KindBridge, "conversation terminated before any model response (%s)", result.Reason).
			WithCode(errdefs.CodeNotInitialized)
	}
	return result.Response, nil
}

// callOnce performs one model round-trip under the per-call timeout.
func (c *Client) callOnce(ctx context.Context, rt *route, req ai.ChatRequest) (*ai.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout(&rt.providerCfg))
	defer cancel()

	treq, err := rt.plugin.TranslateRequest(req, &rt.info.Capabilities)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Fetch(callCtx, treq)
	if err != nil {
		return nil, c.normalize(rt.plugin, resp, err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, c.normalize(rt.plugin, resp, nil)
	}

	parsed, err := rt.plugin.ParseResponse(resp)
	if err != nil {
		return nil, err
	}
	c.recoverToolCalls(ctx, &parsed.Message)
	c.recordUsage(ctx, parsed)
	return parsed, nil
}

// Stream performs a streaming chat call and returns the delta iterator. When
// the request enables multi-turn with tools, the iterator is wrapped so
// tool-use terminations execute tools and surface their results as deltas.
func (c *Client) Stream(ctx context.Context, req ai.ChatRequest) (*ai.DeltaStream, error) {
	ctx = c.withObserver(ctx)
	req.Stream = true
	rt, err := c.resolve(&req)
	if err != nil {
		return nil, err
	}
	if !rt.info.Capabilities.Streaming {
		return nil, errdefs.Newf(errdefs.KindValidation, "model %q does not support streaming", req.Model)
	}
	c.attachTools(&req, rt)

	var span observability.Span
	if c.observer != nil {
		ctx, span = c.observer.StartSpan(ctx, observability.SpanClientStream,
			observability.String(observability.AttrLLMProvider, rt.plugin.ID()),
			observability.String(observability.AttrLLMModel, req.Model),
			observability.Bool(observability.AttrClientStreaming, true),
		)
	}

	if err := c.limitWait(ctx, rt, req); err != nil {
		if span != nil {
			span.End()
		}
		return nil, err
	}

	// The per-call timer covers the whole stream and is cleared when the
	// caller finishes (or abandons) iteration.
	streamCtx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout(&rt.providerCfg))

	treq, err := rt.plugin.TranslateRequest(req, &rt.info.Capabilities)
	if err != nil {
		cancel()
		if span != nil {
			span.End()
		}
		return nil, err
	}
	resp, err := c.transport.Stream(streamCtx, treq)
	if err != nil {
		cancel()
		if span != nil {
			span.End()
		}
		return nil, c.stageCancellation(ctx, c.normalize(rt.plugin, resp, err), errdefs.StageStreaming)
	}

	stream := rt.plugin.ParseStream(streamCtx, resp)
	if req.MultiTurn != nil && req.MultiTurn.Enabled && c.router != nil {
		stream = agent.InterceptToolUse(streamCtx, stream, rt.plugin.DetectTermination, c.router)
	}
	return c.finalizeStream(ctx, stream, cancel, span), nil
}

// finalizeStream wraps the stream so the per-call timer and span are released
// when iteration ends, and caller cancellations surface with the streaming
// stage.
func (c *Client) finalizeStream(ctx context.Context, stream *ai.DeltaStream, cancel context.CancelFunc, span observability.Span) *ai.DeltaStream {
	return ai.NewDeltaStream(func(yield func(ai.StreamDelta, error) bool) {
		defer cancel()
		if span != nil {
			defer span.End()
		}
		for delta, err := range stream.Iter() {
			if err != nil {
				yield(delta, c.stageCancellation(ctx, err, errdefs.StageStreaming))
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	})
}

// normalize routes an error (and/or a non-2xx response) through the plugin.
// If normalization itself fails or yields nothing, the original error bubbles
// unchanged.
func (c *Client) normalize(plugin ai.Plugin, resp *transport.Response, err error) error {
	normalized := plugin.NormalizeError(resp, err)
	if normalized == nil {
		if err != nil {
			return err
		}
		status := 0
		if resp != nil {
			status = resp.Status
		}
		return errdefs.Newf(errdefs.KindProvider, "provider returned status %d", status)
	}
	return normalized
}

// stageCancellation maps a caller-initiated cancellation onto the taxonomy
// with the lifecycle stage attached. Timer expiry stays a timeout; other
// errors pass through.
func (c *Client) stageCancellation(ctx context.Context, err error, stage string) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errdefs.Wrap(errdefs.KindCancelled, "call cancelled by caller", err).WithStage(stage)
	}
	return err
}

func (c *Client) recordUsage(ctx context.Context, resp *ai.ChatResponse) {
	if c.observer == nil || resp.Usage == nil {
		return
	}
	c.observer.Counter(observability.MetricClientTokensPrompt).Add(ctx, int64(resp.Usage.PromptTokens))
	c.observer.Counter(observability.MetricClientTokensCompletion).Add(ctx, int64(resp.Usage.CompletionTokens))
	c.observer.Counter(observability.MetricClientTokensTotal).Add(ctx, int64(resp.Usage.TotalTokens))
}

func (c *Client) withObserver(ctx context.Context) context.Context {
	if c.observer == nil || observability.ObserverFromContext(ctx) != nil {
		return ctx
	}
	return observability.ContextWithObserver(ctx, c.observer)
}
