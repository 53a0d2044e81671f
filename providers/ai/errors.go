package ai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/transport"
)

// NormalizeHTTPError maps a non-2xx vendor response onto the error taxonomy.
// Plugins decode their vendor error envelope first and pass the extracted
// code and message; both may be empty when the body was not decodable.
func NormalizeHTTPError(id, version string, resp *transport.Response, vendorCode, vendorMessage string) error {
	if vendorMessage == "" {
		vendorMessage = http.StatusText(resp.Status)
	}

	var e *errdefs.Error
	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		e = errdefs.Newf(errdefs.KindAuth, "provider rejected credentials: %s", vendorMessage)
	case resp.Status == http.StatusTooManyRequests:
		e = errdefs.Newf(errdefs.KindRateLimit, "provider throttled the request: %s", vendorMessage).
			WithRetryAfter(retryAfterHint(resp))
	case resp.Status == http.StatusRequestTimeout:
		e = errdefs.Newf(errdefs.KindTimeout, "provider reported a timeout: %s", vendorMessage)
	default:
		e = errdefs.Newf(errdefs.KindProvider, "provider request failed: %s", vendorMessage)
	}

	e = e.WithProvider(id, version).WithHTTPStatus(resp.Status)
	if vendorCode != "" {
		e = e.WithCode(vendorCode)
	}
	e = e.WithContext("headers", errdefs.MaskHeaders(resp.Header))
	return e
}

// NormalizeHostError maps a host-level failure (network, cancellation, local
// deadline) onto the taxonomy, preserving errors that are already typed.
func NormalizeHostError(id, version string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errdefs.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return errdefs.Wrap(errdefs.KindCancelled, "request cancelled", err).WithProvider(id, version)
	case errors.Is(err, context.DeadlineExceeded):
		return errdefs.Wrap(errdefs.KindTimeout, "request deadline exceeded", err).WithProvider(id, version)
	default:
		return errdefs.Wrap(errdefs.KindTransport, "request failed", err).WithProvider(id, version)
	}
}

// retryAfterHint parses the Retry-After header as seconds or an HTTP-date.
func retryAfterHint(resp *transport.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if date, err := http.ParseTime(value); err == nil {
		if delay := time.Until(date); delay > 0 {
			return delay
		}
	}
	return 0
}
