package transport

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/llmbridge/bridge/core/errdefs"
)

// InterceptorContext is threaded through the request interceptor chain. Each
// interceptor receives the latest context and may mutate only its return
// value; the chain passes that result to the next interceptor and finally to
// the transport.
type InterceptorContext struct {
	Request       Request
	AttemptNumber int
	CorrelationID string
	StartedAt     time.Time
	Custom        map[string]any
}

// NewInterceptorContext seeds a context for one exchange. The request is
// cloned so interceptors never alias the caller's value.
func NewInterceptorContext(req Request, attempt int) InterceptorContext {
	return InterceptorContext{
		Request:       req.Clone(),
		AttemptNumber: attempt,
		CorrelationID: uuid.NewString(),
		StartedAt:     time.Now(),
		Custom:        make(map[string]any),
	}
}

// RequestInterceptor transforms the interceptor context before the HTTP call.
type RequestInterceptor func(ctx context.Context, ic InterceptorContext) (InterceptorContext, error)

// ResponseInterceptor transforms the response after the HTTP call. It must
// not consume or buffer a streaming body; Response.Stream is preserved
// verbatim by the built-in interceptors.
type ResponseInterceptor func(ctx context.Context, ic InterceptorContext, resp *Response) (*Response, error)

// Interceptor failure phases.
const (
	PhaseValidation = "validation"
	PhaseExecution  = "execution"
	PhaseThreading  = "context-threading"
)

// Chain holds ordered request and response interceptors. Request interceptors
// run in registration order before the call; response interceptors run in
// registration order after it. A nil *Chain is valid and runs nothing.
type Chain struct {
	request  []RequestInterceptor
	response []ResponseInterceptor
}

// NewChain creates an empty interceptor chain.
func NewChain() *Chain {
	return &Chain{}
}

// UseRequest appends a request interceptor.
func (c *Chain) UseRequest(interceptors ...RequestInterceptor) *Chain {
	c.request = append(c.request, interceptors...)
	return c
}

// UseResponse appends a response interceptor.
func (c *Chain) UseResponse(interceptors ...ResponseInterceptor) *Chain {
	c.response = append(c.response, interceptors...)
	return c
}

// RunRequest threads ic through every request interceptor. On failure the
// remaining interceptors are skipped and an Interceptor-kind error reports
// the direction, index, and phase of the failure.
func (c *Chain) RunRequest(ctx context.Context, ic InterceptorContext) (InterceptorContext, error) {
	if c == nil {
		return ic, nil
	}
	for i, interceptor := range c.request {
		if interceptor == nil {
			return ic, interceptorError("request", i, PhaseValidation, errors.New("interceptor is nil"))
		}
		next, err := interceptor(ctx, ic)
		if err != nil {
			return ic, interceptorError("request", i, PhaseExecution, err)
		}
		if next.Request.Method == "" || next.Request.URL == "" {
			return ic, interceptorError("request", i, PhaseThreading,
				errors.New("interceptor returned a context with an empty method or url"))
		}
		ic = next
	}
	return ic, nil
}

// RunResponse threads resp through every response interceptor.
func (c *Chain) RunResponse(ctx context.Context, ic InterceptorContext, resp *Response) (*Response, error) {
	if c == nil {
		return resp, nil
	}
	for i, interceptor := range c.response {
		if interceptor == nil {
			return resp, interceptorError("response", i, PhaseValidation, errors.New("interceptor is nil"))
		}
		next, err := interceptor(ctx, ic, resp)
		if err != nil {
			return resp, interceptorError("response", i, PhaseExecution, err)
		}
		if next == nil {
			return resp, interceptorError("response", i, PhaseThreading,
				errors.New("interceptor returned a nil response"))
		}
		resp = next
	}
	return resp, nil
}

func interceptorError(direction string, index int, phase string, cause error) error {
	return errdefs.Wrap(errdefs.KindInterceptor, "interceptor failed", cause).
		WithContext("direction", direction).
		WithContext("index", index).
		WithContext("phase", phase)
}

type attemptKey struct{}

// ContextWithAttempt records the zero-based retry attempt so the transport
// can surface it in the interceptor context. Set by the retry layer.
func ContextWithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFromContext returns the attempt recorded by [ContextWithAttempt],
// or 0 for a first (or only) attempt.
func AttemptFromContext(ctx context.Context) int {
	attempt, _ := ctx.Value(attemptKey{}).(int)
	return attempt
}
