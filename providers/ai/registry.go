package ai

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/observability"
)

// PluginInfo is the registry's metadata about one registered plugin.
type PluginInfo struct {
	ID           string    `json:"id"`
	Version      string    `json:"version"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type registryEntry struct {
	plugin       Plugin
	registeredAt time.Time
}

// Registry holds provider plugins keyed by (id, version). It is populated
// during setup and read-mostly afterwards; all operations are safe for
// concurrent use under a readers-writer discipline.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]registryEntry
	// order remembers registration order per id so GetLatest resolves the
	// most recently registered version.
	order map[string][]string
	now   func() time.Time
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]map[string]registryEntry),
		order:   make(map[string][]string),
		now:     time.Now,
	}
}

// Register validates and stores a plugin under its (id, version) key. A
// duplicate key logs a warning through the context observer and overwrites
// the previous registration.
func (r *Registry) Register(ctx context.Context, plugin Plugin) error {
	if plugin == nil {
		return errdefs.New(errdefs.KindValidation, "plugin must not be nil").
			WithCode(errdefs.CodeRegistrationFailed)
	}
	id, version := plugin.ID(), plugin.Version()
	if id == "" || version == "" {
		return errdefs.New(errdefs.KindValidation, "plugin id and version must not be empty").
			WithCode(errdefs.CodeRegistrationFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.plugins[id]
	if !ok {
		versions = make(map[string]registryEntry)
		r.plugins[id] = versions
	}
	if _, exists := versions[version]; exists {
		if observer := observability.ObserverFromContext(ctx); observer != nil {
			observer.Warn(ctx, "overwriting already registered provider plugin",
				observability.String(observability.AttrLLMProvider, id),
				observability.String(observability.AttrLLMProviderVersion, version),
			)
		}
	} else {
		r.order[id] = append(r.order[id], version)
	}
	versions[version] = registryEntry{plugin: plugin, registeredAt: r.now()}
	return nil
}

// Unregister removes one version, or every version when version is empty.
// Removing an unknown key is a no-op reported by the return value.
func (r *Registry) Unregister(id, version string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.plugins[id]
	if !ok {
		return false
	}
	if version == "" {
		delete(r.plugins, id)
		delete(r.order, id)
		return true
	}
	if _, ok := versions[version]; !ok {
		return false
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(r.plugins, id)
	}
	order := r.order[id]
	for i, v := range order {
		if v == version {
			r.order[id] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	if len(r.order[id]) == 0 {
		delete(r.order, id)
	}
	return true
}

// Get returns the plugin registered under (id, version).
func (r *Registry) Get(id, version string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.plugins[id][version]; ok {
		return entry.plugin, nil
	}
	return nil, errdefs.Newf(errdefs.KindBridge, "provider plugin %s/%s is not registered", id, version).
		WithCode(errdefs.CodeProviderNotRegistered)
}

// GetLatest returns the most recently registered version of id.
func (r *Registry) GetLatest(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := r.order[id]
	if len(order) == 0 {
		return nil, errdefs.Newf(errdefs.KindBridge, "no versions of provider plugin %s are registered", id).
			WithCode(errdefs.CodeProviderNotRegistered)
	}
	return r.plugins[id][order[len(order)-1]].plugin, nil
}

// Has reports whether (id, version) is registered; an empty version matches
// any version of id.
func (r *Registry) Has(id, version string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.plugins[id]
	if !ok {
		return false
	}
	if version == "" {
		return len(versions) > 0
	}
	_, ok = versions[version]
	return ok
}

// List enumerates registered plugins with their metadata, sorted by id then
// registration order. With a non-empty id only that plugin's versions are
// listed.
func (r *Registry) List(id string) []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.plugins))
	if id != "" {
		if _, ok := r.plugins[id]; ok {
			ids = append(ids, id)
		}
	} else {
		for pluginID := range r.plugins {
			ids = append(ids, pluginID)
		}
		sort.Strings(ids)
	}

	var infos []PluginInfo
	for _, pluginID := range ids {
		for _, version := range r.order[pluginID] {
			entry := r.plugins[pluginID][version]
			infos = append(infos, PluginInfo{
				ID:           pluginID,
				Version:      version,
				RegisteredAt: entry.registeredAt,
			})
		}
	}
	return infos
}
