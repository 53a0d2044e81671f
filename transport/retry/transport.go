package retry

import (
	"context"

	"github.com/llmbridge/bridge/providers/observability"
	"github.com/llmbridge/bridge/transport"
)

// Transport decorates another [transport.Transport] with the retry policy.
// Requests are replayable because bodies are byte slices, so every attempt
// reuses the same request. For Stream, only establishing the connection is
// retried; once a stream is handed to the caller it is never reissued.
type Transport struct {
	next   transport.Transport
	policy *Policy
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport wraps next with policy. A nil policy falls back to
// [DefaultConfig].
func NewTransport(next transport.Transport, policy *Policy) *Transport {
	if policy == nil {
		policy, _ = New(DefaultConfig())
	}
	return &Transport{next: next, policy: policy}
}

// Policy exposes the live policy so callers can update its configuration.
func (t *Transport) Policy() *Policy {
	return t.policy
}

// Fetch performs the request with retries, returning the final attempt's
// response or error unchanged once the policy declines to retry.
func (t *Transport) Fetch(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return t.execute(ctx, func(attemptCtx context.Context) (*transport.Response, error) {
		return t.next.Fetch(attemptCtx, req)
	})
}

// Stream opens the stream with retries. A retried attempt first closes the
// previous attempt's stream, if any.
func (t *Transport) Stream(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return t.execute(ctx, func(attemptCtx context.Context) (*transport.Response, error) {
		return t.next.Stream(attemptCtx, req)
	})
}

func (t *Transport) execute(ctx context.Context, call func(context.Context) (*transport.Response, error)) (*transport.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := call(transport.ContextWithAttempt(ctx, attempt))
		if err == nil && resp != nil && resp.Status >= 200 && resp.Status < 300 {
			return resp, nil
		}

		decision := t.policy.Decide(ctx, Context{
			Attempt:      attempt,
			LastError:    err,
			LastResponse: resp,
		})
		if !decision.Retry {
			return resp, err
		}

		t.observeRetry(ctx, attempt, decision)
		if resp != nil && resp.Stream != nil {
			_ = resp.Stream.Close()
		}
		if waitErr := Wait(ctx, decision.Delay); waitErr != nil {
			return nil, waitErr
		}
	}
}

func (t *Transport) observeRetry(ctx context.Context, attempt int, decision Decision) {
	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventRetryScheduled,
			observability.Int(observability.AttrRetryAttempt, attempt),
			observability.Duration(observability.AttrRetryDelay, decision.Delay),
			observability.String(observability.AttrRetryReason, decision.Reason),
		)
	}
	if obs := observability.ObserverFromContext(ctx); obs != nil {
		obs.Counter(observability.MetricRetryCount).Add(ctx, 1,
			observability.String(observability.AttrRetryReason, decision.Reason))
		obs.Debug(ctx, "retry scheduled",
			observability.Int(observability.AttrRetryAttempt, attempt),
			observability.Duration(observability.AttrRetryDelay, decision.Delay),
			observability.String(observability.AttrRetryReason, decision.Reason),
		)
	}
}
