package client

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/llmbridge/bridge/core/config"
	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/ai"
)

// scopedLimiter applies one token bucket per scope key. Buckets are created
// lazily on first use and share the configured rate and burst.
type scopedLimiter struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newScopedLimiter(cfg config.RateLimitConfig) *scopedLimiter {
	return &scopedLimiter{cfg: cfg, buckets: make(map[string]*rate.Limiter)}
}

// Wait blocks until the bucket for the scope key admits the call, or the
// context ends.
func (l *scopedLimiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.cfg.MaxRPS), l.cfg.Burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	if err := bucket.Wait(ctx); err != nil {
		return errdefs.Wrap(errdefs.KindCancelled, "cancelled while rate limited", err)
	}
	return nil
}

// key derives the bucket key for the configured scope. API keys never appear
// verbatim; the key scope uses a short FNV digest.
func (l *scopedLimiter) key(provider, model, apiKey string) string {
	switch l.cfg.Scope {
	case config.ScopeProvider:
		return provider
	case config.ScopeProviderModel:
		return provider + ":" + model
	case config.ScopeProviderModelKey:
		return fmt.Sprintf("%s:%s:%s", provider, model, digest(apiKey))
	default:
		return config.ScopeGlobal
	}
}

func digest(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// limitWait applies the rate limit policy before dispatching a call.
func (c *Client) limitWait(ctx context.Context, rt *route, req ai.ChatRequest) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, c.limiter.key(rt.info.Provider, ai.ModelName(req.Model), rt.providerCfg.APIKey))
}
