// Package transport executes single HTTP round-trips against provider
// endpoints. It exposes a synchronous [Transport.Fetch] that buffers the full
// response body and a [Transport.Stream] that leaves the body open for SSE
// consumption. An interceptor chain (see [Chain]) threads request context
// through pre/post hooks, including the built-in redaction interceptor.
//
// The transport does not interpret status codes and does not retry: non-2xx
// responses are returned to the caller for provider-side normalization, and
// retrying is layered above (see the retry subpackage).
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/observability"
)

// maxBufferedBodySize caps buffered response body reads (10 MB). Enforced via
// io.LimitReader to prevent unbounded memory allocation from rogue responses.
// Streaming bodies are not subject to this cap; they are consumed
// incrementally by the SSE scanner.
const maxBufferedBodySize int64 = 10 * 1024 * 1024

// Request is a fully shaped vendor HTTP request as produced by a provider
// plugin's request translation.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy so interceptors can mutate their return value
// without aliasing the caller's request.
func (r Request) Clone() Request {
	out := Request{Method: r.Method, URL: r.URL}
	if r.Header != nil {
		out.Header = r.Header.Clone()
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Response is the outcome of one HTTP round-trip. Exactly one of Body or
// Stream is populated: Fetch buffers the body, Stream leaves it open and the
// caller must close it.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	Stream     io.ReadCloser
}

// Transport executes one HTTP request/response exchange.
type Transport interface {
	// Fetch performs the request and returns the response with a fully
	// buffered body. Non-2xx responses are returned, not turned into errors.
	Fetch(ctx context.Context, req Request) (*Response, error)
	// Stream performs the request and returns the response with the body
	// left open for incremental reads. The caller owns Response.Stream.
	Stream(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the standard library backed Transport.
type HTTPTransport struct {
	client *http.Client
	chain  *Chain
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient sets the underlying http.Client. The client should not set
// its own Timeout; per-call deadlines arrive via context.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithChain installs the interceptor chain run around every exchange.
func WithChain(chain *Chain) Option {
	return func(t *HTTPTransport) {
		t.chain = chain
	}
}

// New creates an HTTPTransport.
func New(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{client: &http.Client{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Transport = (*HTTPTransport)(nil)

// Fetch implements [Transport].
func (t *HTTPTransport) Fetch(ctx context.Context, req Request) (*Response, error) {
	return t.do(ctx, req, false)
}

// Stream implements [Transport].
func (t *HTTPTransport) Stream(ctx context.Context, req Request) (*Response, error) {
	return t.do(ctx, req, true)
}

func (t *HTTPTransport) do(ctx context.Context, req Request, streaming bool) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ic := NewInterceptorContext(req, AttemptFromContext(ctx))
	ic, err := t.chain.RunRequest(ctx, ic)
	if err != nil {
		return nil, err
	}
	shaped := ic.Request

	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("http.request.prepared",
			observability.String(observability.AttrHTTPMethod, shaped.Method),
			observability.String(observability.AttrHTTPURL, shaped.URL),
			observability.Int(observability.AttrHTTPRequestBodySize, len(shaped.Body)),
		)
	}

	var bodyReader io.Reader
	if len(shaped.Body) > 0 {
		bodyReader = bytes.NewReader(shaped.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, shaped.Method, shaped.URL, bodyReader)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindValidation, "building http request", err)
	}
	for name, values := range shaped.Header {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	requestStart := time.Now()
	httpResp, err := t.client.Do(httpReq)
	requestDuration := time.Since(requestStart)

	if err != nil {
		if span != nil {
			span.AddEvent("http.request.error",
				observability.Error(err),
				observability.Duration("http.request.duration", requestDuration),
			)
		}
		return nil, classifyDialError(ctx, err)
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header,
	}

	if streaming {
		resp.Stream = httpResp.Body
	} else {
		defer closeWithWarn(ctx, httpResp.Body, shaped.URL)
		body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxBufferedBodySize))
		if readErr != nil {
			return nil, classifyDialError(ctx, readErr)
		}
		resp.Body = body
	}

	if span != nil {
		span.AddEvent("http.response.received",
			observability.Int(observability.AttrHTTPStatusCode, resp.Status),
			observability.Int(observability.AttrHTTPResponseBodySize, len(resp.Body)),
			observability.Duration("http.request.duration", requestDuration),
		)
	}

	resp, err = t.chain.RunResponse(ctx, ic, resp)
	if err != nil {
		if streaming && resp != nil && resp.Stream != nil {
			closeWithWarn(ctx, resp.Stream, shaped.URL)
		}
		return nil, err
	}
	return resp, nil
}

// validMethods are the HTTP methods the transport will dispatch.
var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// validateRequest rejects malformed method/URL combinations before dispatch.
func validateRequest(req Request) error {
	if !validMethods[req.Method] {
		return errdefs.Newf(errdefs.KindValidation, "invalid http method %q", req.Method)
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "invalid request url", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errdefs.Newf(errdefs.KindValidation, "request url must be absolute http(s), got %q", req.URL)
	}
	return nil
}

// classifyDialError maps a round-trip failure onto the error taxonomy:
// explicit cancellation, deadline expiry, or a transport-level fault.
func classifyDialError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return errdefs.Wrap(errdefs.KindCancelled, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errdefs.Wrap(errdefs.KindTimeout, "request deadline exceeded", err)
	default:
		return errdefs.Wrap(errdefs.KindTransport, "http round-trip failed", err)
	}
}

func closeWithWarn(ctx context.Context, closer io.Closer, url string) {
	if err := closer.Close(); err != nil {
		if observer := observability.ObserverFromContext(ctx); observer != nil {
			observer.Warn(ctx, "failed to close response body",
				observability.Error(err),
				observability.String(observability.AttrHTTPURL, url),
			)
		}
	}
}
