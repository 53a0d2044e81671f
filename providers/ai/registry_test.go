package ai

import (
	"context"
	"testing"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/transport"
)

// fakePlugin is a minimal Plugin for registry tests.
type fakePlugin struct {
	id      string
	version string
}

func (p *fakePlugin) ID() string                  { return p.id }
func (p *fakePlugin) Version() string             { return p.version }
func (p *fakePlugin) Initialize(ProviderConfig) error { return nil }
func (p *fakePlugin) SupportsModel(string) bool   { return true }
func (p *fakePlugin) TranslateRequest(ChatRequest, *Capabilities) (transport.Request, error) {
	return transport.Request{}, nil
}
func (p *fakePlugin) ParseResponse(*transport.Response) (*ChatResponse, error) { return nil, nil }
func (p *fakePlugin) ParseStream(context.Context, *transport.Response) *DeltaStream {
	return NewErrorStream(nil)
}
func (p *fakePlugin) NormalizeError(*transport.Response, error) error { return nil }
func (p *fakePlugin) DetectTermination(string, bool, *Message) TerminationSignal {
	return TerminationSignal{}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	p1 := &fakePlugin{id: "openai", version: "responses-v1"}
	if err := r.Register(ctx, p1); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := r.Get("openai", "responses-v1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != Plugin(p1) {
		t.Error("get returned a different plugin")
	}

	if _, err := r.Get("openai", "v99"); !errdefs.IsKind(err, errdefs.KindBridge) {
		t.Errorf("unknown version: got %v, want bridge error", err)
	}
	if code := errdefs.CodeOf(func() error { _, err := r.Get("missing", "v1"); return err }()); code != errdefs.CodeProviderNotRegistered {
		t.Errorf("code = %q, want %q", code, errdefs.CodeProviderNotRegistered)
	}
}

func TestRegistryRejectsInvalidPlugins(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, nil); !errdefs.IsKind(err, errdefs.KindValidation) {
		t.Errorf("nil plugin: got %v, want validation error", err)
	}
	if err := r.Register(ctx, &fakePlugin{id: "", version: "v1"}); !errdefs.IsKind(err, errdefs.KindValidation) {
		t.Errorf("empty id: got %v, want validation error", err)
	}
	if err := r.Register(ctx, &fakePlugin{id: "x", version: ""}); !errdefs.IsKind(err, errdefs.KindValidation) {
		t.Errorf("empty version: got %v, want validation error", err)
	}
}

func TestRegistryDuplicateOverwrites(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	first := &fakePlugin{id: "openai", version: "responses-v1"}
	second := &fakePlugin{id: "openai", version: "responses-v1"}
	if err := r.Register(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ctx, second); err != nil {
		t.Fatalf("duplicate register should overwrite, got %v", err)
	}

	got, _ := r.Get("openai", "responses-v1")
	if got != Plugin(second) {
		t.Error("duplicate registration did not overwrite")
	}
	if infos := r.List("openai"); len(infos) != 1 {
		t.Errorf("list after overwrite = %d entries, want 1", len(infos))
	}
}

func TestRegistryGetLatestByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	v1 := &fakePlugin{id: "anthropic", version: "2023-01-01"}
	v2 := &fakePlugin{id: "anthropic", version: "2023-06-01"}
	if err := r.Register(ctx, v1); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ctx, v2); err != nil {
		t.Fatal(err)
	}

	latest, err := r.GetLatest("anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if latest != Plugin(v2) {
		t.Error("GetLatest should return the most recently registered version")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, &fakePlugin{id: "google", version: "gemini-v1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ctx, &fakePlugin{id: "google", version: "gemini-v2"}); err != nil {
		t.Fatal(err)
	}

	if !r.Unregister("google", "gemini-v1") {
		t.Error("unregister known version should return true")
	}
	if r.Has("google", "gemini-v1") {
		t.Error("gemini-v1 should be gone")
	}
	if !r.Has("google", "") {
		t.Error("google should still have gemini-v2")
	}

	// Removing all versions at once.
	if !r.Unregister("google", "") {
		t.Error("unregister all should return true")
	}
	if r.Has("google", "") {
		t.Error("google should be fully unregistered")
	}
	if r.Unregister("google", "") {
		t.Error("unregister of unknown id should return false")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	for _, p := range []*fakePlugin{
		{id: "xai", version: "v1"},
		{id: "anthropic", version: "2023-06-01"},
		{id: "anthropic", version: "2024-10-22"},
	} {
		if err := r.Register(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	all := r.List("")
	if len(all) != 3 {
		t.Fatalf("list = %d entries, want 3", len(all))
	}
	if all[0].ID != "anthropic" || all[2].ID != "xai" {
		t.Errorf("list not sorted by id: %+v", all)
	}
	for _, info := range all {
		if info.RegisteredAt.IsZero() {
			t.Errorf("%s/%s missing registeredAt", info.ID, info.Version)
		}
	}

	anthropicOnly := r.List("anthropic")
	if len(anthropicOnly) != 2 {
		t.Errorf("filtered list = %d entries, want 2", len(anthropicOnly))
	}
}
