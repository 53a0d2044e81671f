// Package errdefs defines the error taxonomy shared by every layer of the
// bridge: transport, providers, tool routing, the agent loop, and the client
// façade. Each failure is classified into a [Kind] so callers can decide on
// retry, surface, or abort without string-matching vendor messages.
//
// Errors built through this package carry a redacted context map (provider id,
// HTTP status, masked headers) and never leak credentials: messages and
// context values are passed through [RedactSecrets] at construction time.
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error into the shared cross-provider taxonomy.
type Kind string

const (
	// KindValidation indicates an input violated a schema: a config, request,
	// tool definition, or content part failed structural validation.
	KindValidation Kind = "validation"

	// KindAuth indicates the vendor rejected the credentials (401/403,
	// Anthropic authentication_error, Gemini UNAUTHENTICATED/PERMISSION_DENIED).
	KindAuth Kind = "auth"

	// KindRateLimit indicates the vendor throttled the request (429, Gemini
	// RESOURCE_EXHAUSTED). RetryAfter carries the parsed hint when present.
	KindRateLimit Kind = "rate_limit"

	// KindTimeout indicates a local or vendor-reported deadline was exceeded
	// (408, Gemini DEADLINE_EXCEEDED, or the per-call timer).
	KindTimeout Kind = "timeout"

	// KindTransport indicates a network-level failure: DNS, TLS, connection
	// reset, or an abort while reading the response body.
	KindTransport Kind = "transport"

	// KindStreaming indicates a malformed SSE or JSON chunk, or a stream that
	// was truncated mid-event.
	KindStreaming Kind = "streaming"

	// KindProvider indicates an upstream failure the vendor reported (5xx or
	// an unrecognized vendor status).
	KindProvider Kind = "provider"

	// KindInterceptor indicates an interceptor failed or returned an invalid
	// context; the error carries direction, index, and phase.
	KindInterceptor Kind = "interceptor"

	// KindCancelled indicates an explicit cancellation by the caller or the
	// per-call timer's parent context.
	KindCancelled Kind = "cancelled"

	// KindBridge is the fallback for conditions internal to the bridge, always
	// accompanied by one of the Code* constants.
	KindBridge Kind = "bridge"
)

// Bridge error codes. These identify conditions raised by the bridge itself
// rather than by a vendor; they always pair with [KindBridge].
const (
	CodeModelNotRegistered       = "MODEL_NOT_REGISTERED"
	CodeProviderNotRegistered    = "PROVIDER_NOT_REGISTERED"
	CodeProviderConfigMissing    = "PROVIDER_CONFIG_MISSING"
	CodeProviderPluginUnmapped   = "PROVIDER_PLUGIN_UNMAPPED"
	CodeToolsNotEnabled          = "TOOLS_NOT_ENABLED"
	CodeToolSystemNotInitialized = "TOOL_SYSTEM_NOT_INITIALIZED"
	CodeInvalidConfig            = "INVALID_CONFIG"
	CodeRegistrationFailed       = "REGISTRATION_FAILED"
	CodeNotInitialized           = "NOT_INITIALIZED"
)

// Stages identify where in the request lifecycle an error surfaced. A
// cancellation during a synchronous chat call reports StageExecution; one
// during delta iteration reports StageStreaming.
const (
	StageExecution = "execution"
	StageStreaming = "streaming"
)

// Error is the concrete error type carried across the bridge. Use [New] and
// the With* chain to construct one; use [As] or [IsKind] to inspect one that
// arrived through an error chain.
type Error struct {
	// Kind is the taxonomy bucket. Always set.
	Kind Kind

	// Code is an optional machine-readable condition, e.g. a Code* constant
	// for KindBridge or a vendor error code for provider failures.
	Code string

	// Message is the human-readable description, redacted of credentials.
	Message string

	// Stage identifies the lifecycle phase (StageExecution, StageStreaming).
	// Empty when the phase is not meaningful for the kind.
	Stage string

	// RetryAfter is the server-suggested wait before retrying, when the
	// vendor provided one (rate limit responses). Zero means no hint.
	RetryAfter time.Duration

	// Context carries structured, already-redacted debugging detail:
	// provider id and version, HTTP status, masked headers, vendor codes.
	Context map[string]any

	cause error
}

// New creates an Error of the given kind. The message is redacted before it
// is stored, so it is safe to include vendor response excerpts.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: RedactSecrets(message),
	}
}

// Newf creates an Error with a formatted, redacted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind that wraps cause. The cause remains
// reachable via [errors.Unwrap] / [errors.Is] / [errors.As].
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// WithCode sets the machine-readable code and returns the error for chaining.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithStage sets the lifecycle stage and returns the error for chaining.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithCause attaches the underlying error and returns the error for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithRetryAfter records the server-suggested retry delay.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if d > 0 {
		e.RetryAfter = d
	}
	return e
}

// WithContext adds one key/value pair to the context map. String values are
// redacted; other values are stored as-is.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	if s, ok := value.(string); ok {
		value = RedactSecrets(s)
	}
	e.Context[key] = value
	return e
}

// WithProvider records the provider id and version in the context map, the
// pair every normalized error is required to carry.
func (e *Error) WithProvider(id, version string) *Error {
	return e.WithContext("provider", id).WithContext("providerVersion", version)
}

// WithHTTPStatus records the HTTP status code in the context map.
func (e *Error) WithHTTPStatus(status int) *Error {
	return e.WithContext("httpStatus", status)
}

// Error implements the error interface. The rendered form is
// "kind[/code]: message[: cause]".
func (e *Error) Error() string {
	head := string(e.Kind)
	if e.Code != "" {
		head += "/" + e.Code
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", head, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", head, e.Message)
}

// Unwrap returns the wrapped cause, enabling errors.Is and errors.As to walk
// through bridge errors.
func (e *Error) Unwrap() error {
	return e.cause
}

// As extracts the first *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	if e, ok := As(err); ok {
		return e.Kind == kind
	}
	return false
}

// CodeOf returns the machine-readable code of err, or "" when err is not a
// bridge error or carries no code.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Retryable reports whether the error kind is a candidate for the retry
// policy. Validation, auth, cancellation, interceptor, and bridge conditions
// are never retried; whether a provider failure actually retries depends on
// the retry policy's status-code set.
func Retryable(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindRateLimit, KindTransport, KindTimeout, KindProvider:
		return true
	default:
		return false
	}
}
