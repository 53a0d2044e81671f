package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>Title</h1><p>Hello <strong>world</strong>.</p></body></html>"))
	}))
	defer server.Close()

	out, err := Fetch(context.Background(), Input{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.URL != server.URL {
		t.Errorf("url = %q, want %q", out.URL, server.URL)
	}
	if !strings.Contains(out.Markdown, "# Title") {
		t.Errorf("markdown = %q, want heading", out.Markdown)
	}
	if !strings.Contains(out.Markdown, "**world**") {
		t.Errorf("markdown = %q, want bold conversion", out.Markdown)
	}
}

func TestFetchFollowsRedirect(t *testing.T) {
	var target *httptest.Server
	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("<p>done</p>"))
	}))
	defer target.Close()

	out, err := Fetch(context.Background(), Input{URL: target.URL + "/start"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasSuffix(out.URL, "/final") {
		t.Errorf("url = %q, want final redirect target", out.URL)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	_, err := Fetch(context.Background(), Input{})
	if err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), Input{URL: server.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer server.Close()

	if _, err := Fetch(context.Background(), Input{URL: server.URL}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != DefaultUserAgent {
		t.Errorf("user agent = %q, want default", got)
	}

	if _, err := Fetch(context.Background(), Input{URL: server.URL, UserAgent: "custom/1.0"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != "custom/1.0" {
		t.Errorf("user agent = %q, want override", got)
	}
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	start := time.Now()
	_, err := Fetch(context.Background(), Input{URL: server.URL, TimeoutSeconds: 1})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 1800*time.Millisecond {
		t.Errorf("timeout took %v, want about 1s", elapsed)
	}
}
