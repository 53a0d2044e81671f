package transport

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/llmbridge/bridge/core/errdefs"
)

// RedactionConfig controls the built-in redaction interceptor pair.
type RedactionConfig struct {
	// Enabled gates the whole interceptor. When false both interceptors are
	// no-ops that return their input untouched.
	Enabled bool
	// FieldNames are JSON object keys whose values are replaced with the
	// placeholder, recursively through objects and arrays. Matched
	// case-insensitively. Defaults to DefaultRedactedFields when empty.
	FieldNames []string
	// BodyPatterns are regular expressions applied to non-JSON string bodies;
	// every match is replaced with the placeholder.
	BodyPatterns []string
	// Placeholder replaces redacted values. Defaults to "***".
	Placeholder string
}

// DefaultRedactedFields are the JSON field names redacted when
// RedactionConfig.FieldNames is empty.
var DefaultRedactedFields = []string{"password", "token", "api_key", "apiKey", "secret", "authorization"}

// redactor is the compiled form shared by the request and response sides.
type redactor struct {
	fields      []string
	patterns    []*regexp.Regexp
	placeholder string
}

// NewRedactionInterceptors builds the request/response interceptor pair for
// cfg. Compiling an invalid BodyPatterns entry fails with a Validation error.
func NewRedactionInterceptors(cfg RedactionConfig) (RequestInterceptor, ResponseInterceptor, error) {
	if !cfg.Enabled {
		// Disabled redaction is an identity transform.
		reqNoop := func(_ context.Context, ic InterceptorContext) (InterceptorContext, error) {
			return ic, nil
		}
		respNoop := func(_ context.Context, _ InterceptorContext, resp *Response) (*Response, error) {
			return resp, nil
		}
		return reqNoop, respNoop, nil
	}

	r := &redactor{
		fields:      cfg.FieldNames,
		placeholder: cfg.Placeholder,
	}
	if len(r.fields) == 0 {
		r.fields = DefaultRedactedFields
	}
	if r.placeholder == "" {
		r.placeholder = "***"
	}
	for _, pattern := range cfg.BodyPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, nil, errdefs.Wrap(errdefs.KindValidation, "invalid redaction pattern", err).
				WithContext("pattern", pattern)
		}
		r.patterns = append(r.patterns, compiled)
	}

	return r.interceptRequest, r.interceptResponse, nil
}

func (r *redactor) interceptRequest(_ context.Context, ic InterceptorContext) (InterceptorContext, error) {
	req := ic.Request.Clone()
	maskSensitiveHeaders(req.Header, r.placeholder)
	req.Body = r.redactBody(req.Body)
	ic.Request = req
	return ic, nil
}

// interceptResponse mirrors the header rewriting on the way back. It never
// touches Body or Stream: a streaming body must be preserved verbatim.
func (r *redactor) interceptResponse(_ context.Context, _ InterceptorContext, resp *Response) (*Response, error) {
	out := *resp
	if resp.Header != nil {
		out.Header = resp.Header.Clone()
		maskSensitiveHeaders(out.Header, r.placeholder)
	}
	return &out, nil
}

func maskSensitiveHeaders(h map[string][]string, placeholder string) {
	for name := range h {
		if errdefs.IsSensitiveHeader(name) {
			h[name] = []string{placeholder}
		}
	}
}

// redactBody rewrites a JSON body by replacing configured field values, or
// applies the regex rules to a plain-text body. Binary bodies pass through.
func (r *redactor) redactBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	if !utf8.Valid(body) {
		return body
	}

	if json.Valid(body) {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			redacted := r.redactValue(decoded)
			if encoded, err := json.Marshal(redacted); err == nil {
				return encoded
			}
		}
		return body
	}

	text := string(body)
	for _, pattern := range r.patterns {
		text = pattern.ReplaceAllString(text, r.placeholder)
	}
	return []byte(text)
}

// redactValue walks a decoded JSON value, replacing the value of any
// configured field name at any depth.
func (r *redactor) redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if r.matchField(key) {
				out[key] = r.placeholder
				continue
			}
			out[key] = r.redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = r.redactValue(inner)
		}
		return out
	default:
		return value
	}
}

func (r *redactor) matchField(name string) bool {
	for _, field := range r.fields {
		if strings.EqualFold(field, name) {
			return true
		}
	}
	return false
}
