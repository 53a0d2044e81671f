// Package webfetch bundles a tool that fetches a web page and converts its
// HTML to Markdown so the content is compact enough to feed back to a model.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/llmbridge/bridge/providers/tool"
)

// Name is the registered tool name.
const Name = "webfetch"

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent when the model does not override it.
	DefaultUserAgent = "llmbridge-webfetch/1.0"
	// MaxBodySize caps the response body (10 MB).
	MaxBodySize = 10 * 1024 * 1024
	// maxRedirects bounds redirect chains.
	maxRedirects = 10
)

// Input holds the parameters the model supplies. Only URL is required.
type Input struct {
	// URL may be partial ("example.com"); https:// is prepended when the
	// scheme is missing.
	URL string `json:"url" jsonschema:"description=URL of the page to fetch; partial URLs like 'example.com' are allowed,required"`

	// TimeoutSeconds overrides the default request timeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds,minimum=1,maximum=300"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `json:"user_agent,omitempty" jsonschema:"description=Custom User-Agent header"`
}

// Output is the fetched page as Markdown. URL reflects the final destination
// after redirects.
type Output struct {
	URL      string `json:"url" jsonschema:"description=Final URL after redirects"`
	Markdown string `json:"markdown" jsonschema:"description=Page content converted to Markdown"`
}

// New returns the webfetch tool.
func New() *tool.Func[Input, Output] {
	return tool.New(Name, Fetch,
		tool.WithDescription("Fetches a web page over HTTP(S) and returns its content converted to Markdown. Follows redirects and accepts partial URLs."),
	)
}

// Fetch retrieves the page at in.URL and converts the HTML body to Markdown.
// The body is capped at [MaxBodySize]; a body that hits the cap is an error
// rather than silently truncated content.
func Fetch(ctx context.Context, in Input) (Output, error) {
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return Output{}, errors.New("url is empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	timeout := DefaultTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Output{}, fmt.Errorf("building request: %w", err)
	}
	userAgent := DefaultUserAgent
	if in.UserAgent != "" {
		userAgent = in.UserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := fetchClient(timeout).Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Output{}, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return Output{}, fmt.Errorf("reading body: %w", err)
	}
	if len(body) == MaxBodySize {
		return Output{}, fmt.Errorf("response body exceeds %d bytes", MaxBodySize)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return Output{}, fmt.Errorf("converting HTML to Markdown: %w", err)
	}

	return Output{
		URL:      resp.Request.URL.String(),
		Markdown: markdown,
	}, nil
}

// fetchClient builds an HTTP client with per-phase timeouts so a stalled
// server cannot hold a tool slot for longer than the overall timeout.
func fetchClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			ForceAttemptHTTP2:     true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (>%d)", maxRedirects)
			}
			return nil
		},
	}
}
