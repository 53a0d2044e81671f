// Package retry layers a typed retry policy above the transport. The policy
// is a pure decision function over the attempt number, the last response, and
// the last error; the [Transport] decorator applies it around Fetch/Stream.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/transport"
)

// Strategy selects the backoff curve.
type Strategy string

const (
	// StrategyExponential grows the delay as baseDelay * multiplier^attempt.
	StrategyExponential Strategy = "exponential"
	// StrategyLinear grows the delay as baseDelay * (attempt + 1).
	StrategyLinear Strategy = "linear"
)

// Config holds the retry tuning parameters. Zero values are replaced with the
// defaults from [DefaultConfig] by [New].
type Config struct {
	// Attempts is the maximum number of retries after the first call.
	// Must be in [0, 10]; 0 disables retrying.
	Attempts int

	// Backoff selects the delay curve between attempts.
	Backoff Strategy

	// BaseDelay is the first retry delay. Must be >= 0.
	BaseDelay time.Duration

	// MaxDelay caps every computed delay, including Retry-After hints and
	// post-jitter values. Must be >= BaseDelay.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor. Must be > 0. Default 2.
	Multiplier float64

	// Jitter, when true, multiplies each delay by a uniform sample in
	// [0.5, 1.5) before re-capping at MaxDelay.
	Jitter bool

	// RetryableStatusCodes are the HTTP statuses that permit a retry.
	// Each must be in [100, 599].
	RetryableStatusCodes []int
}

// DefaultConfig returns the stock policy: 3 attempts, exponential backoff
// from 1s capped at 30s, jitter on, and the usual transient status set
// (including 529, which Anthropic uses for overload).
func DefaultConfig() Config {
	return Config{
		Attempts:             3,
		Backoff:              StrategyExponential,
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		Multiplier:           2.0,
		Jitter:               true,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504, 529},
	}
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Backoff == "" {
		c.Backoff = StrategyExponential
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.RetryableStatusCodes == nil {
		c.RetryableStatusCodes = DefaultConfig().RetryableStatusCodes
	}
	return c
}

// Validate checks the configured ranges.
func (c Config) Validate() error {
	if c.Attempts < 0 || c.Attempts > 10 {
		return errdefs.Newf(errdefs.KindValidation, "retry attempts must be in [0, 10], got %d", c.Attempts)
	}
	if c.Backoff != StrategyExponential && c.Backoff != StrategyLinear {
		return errdefs.Newf(errdefs.KindValidation, "unknown backoff strategy %q", c.Backoff)
	}
	if c.BaseDelay < 0 {
		return errdefs.Newf(errdefs.KindValidation, "base delay must be >= 0, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return errdefs.Newf(errdefs.KindValidation, "max delay %s must be >= base delay %s", c.MaxDelay, c.BaseDelay)
	}
	if c.Multiplier <= 0 {
		return errdefs.Newf(errdefs.KindValidation, "backoff multiplier must be > 0, got %v", c.Multiplier)
	}
	for _, code := range c.RetryableStatusCodes {
		if code < 100 || code > 599 {
			return errdefs.Newf(errdefs.KindValidation, "retryable status code %d outside [100, 599]", code)
		}
	}
	return nil
}

// Context carries the inputs of one retry decision.
type Context struct {
	// Attempt is the 0-based number of attempts already made.
	Attempt int
	// LastError is the failure from the previous attempt, if any.
	LastError error
	// LastResponse is the previous HTTP response, if one arrived.
	LastResponse *transport.Response
}

// Decision is the outcome of [Policy.Decide].
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// Policy decides whether and when to retry. Safe for concurrent use;
// UpdateConfig never interleaves with an in-flight decision.
type Policy struct {
	mu        sync.RWMutex
	cfg       Config
	randFloat func() float64
}

// New creates a Policy, applying defaults and validating the result.
func New(cfg Config) (*Policy, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg, randFloat: rand.Float64}, nil
}

// Config returns a snapshot of the active configuration.
func (p *Policy) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg := p.cfg
	cfg.RetryableStatusCodes = slices.Clone(cfg.RetryableStatusCodes)
	return cfg
}

// UpdateConfig swaps the configuration after validating it.
func (p *Policy) UpdateConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Decide evaluates one failed attempt. Precedence: cancellation, then
// non-retryable error kinds, then attempt budget, then the response status
// set, then the Retry-After header, then the configured backoff curve.
func (p *Policy) Decide(ctx context.Context, rc Context) Decision {
	p.mu.RLock()
	cfg := p.cfg
	randFloat := p.randFloat
	p.mu.RUnlock()

	if ctx.Err() != nil {
		return Decision{Reason: "cancelled"}
	}

	// Validation, Auth, Cancelled, Interceptor, and Bridge failures are
	// surfaced immediately, never retried.
	if rc.LastError != nil {
		if bridgeErr, ok := errdefs.As(rc.LastError); ok && !errdefs.Retryable(rc.LastError) {
			return Decision{Reason: fmt.Sprintf("error kind %s not retryable", bridgeErr.Kind)}
		}
	}

	if rc.Attempt >= cfg.Attempts {
		return Decision{Reason: fmt.Sprintf("attempt budget exhausted (%d)", cfg.Attempts)}
	}

	if rc.LastResponse != nil {
		if !slices.Contains(cfg.RetryableStatusCodes, rc.LastResponse.Status) {
			return Decision{Reason: fmt.Sprintf("status %d not retryable", rc.LastResponse.Status)}
		}
		if header := rc.LastResponse.Header.Get("Retry-After"); header != "" {
			if delay, ok := parseRetryAfter(header, time.Now()); ok {
				return Decision{
					Retry:  true,
					Delay:  min(delay, cfg.MaxDelay),
					Reason: fmt.Sprintf("retry-after header (%s)", header),
				}
			}
		}
	}

	return Decision{
		Retry:  true,
		Delay:  backoffWithRand(cfg, rc.Attempt, randFloat),
		Reason: fmt.Sprintf("%s backoff", cfg.Backoff),
	}
}

// parseRetryAfter interprets a Retry-After value as nonnegative integer
// seconds or an HTTP-date. Dates in the past yield a zero delay.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if date, err := http.ParseTime(value); err == nil {
		if delay := date.Sub(now); delay > 0 {
			return delay, true
		}
		return 0, true
	}
	return 0, false
}

// Backoff returns the pre-jitter delay for an attempt, capped at MaxDelay.
func Backoff(cfg Config, attempt int) time.Duration {
	// Attempts >= 32 are clamped so the exponential curve cannot overflow.
	if attempt > 31 {
		attempt = 31
	}

	var delay float64
	switch cfg.Backoff {
	case StrategyLinear:
		delay = float64(cfg.BaseDelay) * float64(attempt+1)
	default:
		delay = float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	}

	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}

// backoffWithRand applies jitter with an injectable random source so tests
// can pin the sample.
func backoffWithRand(cfg Config, attempt int, randFloat func() float64) time.Duration {
	delay := Backoff(cfg, attempt)
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + randFloat()))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return delay
}

// Wait sleeps for delay, aborting early on cancellation. The timer is
// released in both paths.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		if err := ctx.Err(); err != nil {
			return errdefs.Wrap(errdefs.KindCancelled, "retry delay interrupted", err)
		}
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errdefs.Wrap(errdefs.KindCancelled, "retry delay interrupted", ctx.Err())
	case <-timer.C:
		return nil
	}
}
