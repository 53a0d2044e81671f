package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/transport"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"attempts too high", func(c *Config) { c.Attempts = 11 }, true},
		{"negative attempts", func(c *Config) { c.Attempts = -1 }, true},
		{"unknown strategy", func(c *Config) { c.Backoff = "quadratic" }, true},
		{"negative base delay", func(c *Config) { c.BaseDelay = -time.Second }, true},
		{"max below base", func(c *Config) { c.MaxDelay = c.BaseDelay / 2 }, true},
		{"status code out of range", func(c *Config) { c.RetryableStatusCodes = []int{42} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func mustPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func responseWithRetryAfter(status int, value string) *transport.Response {
	header := http.Header{}
	if value != "" {
		header.Set("Retry-After", value)
	}
	return &transport.Response{Status: status, Header: header}
}

func TestDecidePrecedence(t *testing.T) {
	cfg := Config{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    false,
	}
	p := mustPolicy(t, cfg)
	ctx := context.Background()

	t.Run("cancellation wins", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		d := p.Decide(cancelled, Context{LastResponse: responseWithRetryAfter(429, "1")})
		if d.Retry || d.Reason != "cancelled" {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("non-retryable error kind", func(t *testing.T) {
		err := errdefs.New(errdefs.KindValidation, "bad request shape")
		d := p.Decide(ctx, Context{LastError: err})
		if d.Retry || !strings.Contains(d.Reason, "not retryable") {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("attempt budget exhausted", func(t *testing.T) {
		d := p.Decide(ctx, Context{Attempt: 3, LastResponse: responseWithRetryAfter(429, "1")})
		if d.Retry || !strings.Contains(d.Reason, "budget exhausted") {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("status not in retryable set", func(t *testing.T) {
		d := p.Decide(ctx, Context{LastResponse: responseWithRetryAfter(400, "")})
		if d.Retry {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("retry-after beats backoff", func(t *testing.T) {
		d := p.Decide(ctx, Context{LastResponse: responseWithRetryAfter(429, "20")})
		if !d.Retry || d.Delay != 20*time.Second || !strings.Contains(d.Reason, "retry-after") {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("retry-after capped at max delay", func(t *testing.T) {
		capped := mustPolicy(t, Config{Attempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second})
		d := capped.Decide(ctx, Context{LastResponse: responseWithRetryAfter(429, "20")})
		if !d.Retry || d.Delay != 10*time.Second {
			t.Errorf("Decide() = %+v", d)
		}
	})

	t.Run("backoff otherwise", func(t *testing.T) {
		d := p.Decide(ctx, Context{Attempt: 1, LastResponse: responseWithRetryAfter(503, "")})
		if !d.Retry || d.Delay != 2*time.Second || !strings.Contains(d.Reason, "backoff") {
			t.Errorf("Decide() = %+v", d)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()
	future := now.Add(25 * time.Second).UTC().Format(http.TimeFormat)
	past := now.Add(-time.Minute).UTC().Format(http.TimeFormat)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"integer seconds", "20", 20 * time.Second, true},
		{"zero seconds", "0", 0, true},
		{"negative seconds", "-5", 0, false},
		{"past http-date", past, 0, true},
		{"garbage", "soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseRetryAfter(%q) = %v, %v, want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	// HTTP-dates carry second precision, so allow the truncation.
	got, ok := parseRetryAfter(future, now)
	if !ok || got <= 23*time.Second || got > 25*time.Second {
		t.Errorf("parseRetryAfter(future) = %v, %v", got, ok)
	}
}

func TestBackoff(t *testing.T) {
	exp := Config{Backoff: StrategyExponential, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if got := Backoff(exp, attempt); got != want {
			t.Errorf("Backoff(exp, %d) = %v, want %v", attempt, got, want)
		}
	}

	// Every attempt is capped, including ones far past the clamp point.
	for _, attempt := range []int{6, 31, 32, 10000} {
		if got := Backoff(exp, attempt); got != 30*time.Second {
			t.Errorf("Backoff(exp, %d) = %v, want the max delay", attempt, got)
		}
	}

	lin := Config{Backoff: StrategyLinear, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		if got := Backoff(lin, attempt); got != want {
			t.Errorf("Backoff(lin, %d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestJitterRecapsAtMaxDelay(t *testing.T) {
	cfg := Config{Attempts: 3, BaseDelay: 4 * time.Second, MaxDelay: 5 * time.Second, Jitter: true}
	p := mustPolicy(t, cfg)
	resp := responseWithRetryAfter(503, "")

	// Sample at the top of the jitter range: 4s * 1.5 = 6s, re-capped to 5s.
	p.randFloat = func() float64 { return 1.0 }
	if d := p.Decide(context.Background(), Context{LastResponse: resp}); d.Delay != 5*time.Second {
		t.Errorf("jittered delay = %v, want re-capped 5s", d.Delay)
	}

	// Sample at the bottom: 4s * 0.5 = 2s.
	p.randFloat = func() float64 { return 0 }
	if d := p.Decide(context.Background(), Context{LastResponse: resp}); d.Delay != 2*time.Second {
		t.Errorf("jittered delay = %v, want 2s", d.Delay)
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := Wait(cancelled, time.Minute)
	if !errdefs.IsKind(err, errdefs.KindCancelled) {
		t.Errorf("Wait() error = %v, want cancelled", err)
	}
	if err := Wait(cancelled, 0); !errdefs.IsKind(err, errdefs.KindCancelled) {
		t.Errorf("Wait(0) on cancelled ctx error = %v, want cancelled", err)
	}
}

// scriptedTransport pops one response (or error) per attempt.
type scriptedTransport struct {
	responses []*transport.Response
	errs      []error
	calls     int
}

func (s *scriptedTransport) next() (*transport.Response, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return nil, errors.New("no scripted response left")
}

func (s *scriptedTransport) Fetch(context.Context, transport.Request) (*transport.Response, error) {
	return s.next()
}

func (s *scriptedTransport) Stream(context.Context, transport.Request) (*transport.Response, error) {
	return s.next()
}

func TestTransportRetriesUntilSuccess(t *testing.T) {
	st := &scriptedTransport{responses: []*transport.Response{
		{Status: 503, Header: http.Header{}},
		{Status: 503, Header: http.Header{}},
		{Status: 200, Header: http.Header{}},
	}}
	p := mustPolicy(t, Config{Attempts: 3, BaseDelay: 0, MaxDelay: 0})
	tr := NewTransport(st, p)

	resp, err := tr.Fetch(context.Background(), transport.Request{Method: "POST", URL: "https://api.test/v1"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Status != 200 || st.calls != 3 {
		t.Errorf("status = %d after %d attempts", resp.Status, st.calls)
	}
}

func TestTransportReturnsFinalFailure(t *testing.T) {
	st := &scriptedTransport{responses: []*transport.Response{
		{Status: 400, Header: http.Header{}},
	}}
	p := mustPolicy(t, Config{Attempts: 3, BaseDelay: 0, MaxDelay: 0})
	tr := NewTransport(st, p)

	resp, err := tr.Fetch(context.Background(), transport.Request{Method: "POST", URL: "https://api.test/v1"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if resp.Status != 400 || st.calls != 1 {
		t.Errorf("status = %d after %d attempts, want the 400 surfaced without retry", resp.Status, st.calls)
	}
}
