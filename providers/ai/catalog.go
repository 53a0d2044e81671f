package ai

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/llmbridge/bridge/core/errdefs"
	"github.com/llmbridge/bridge/providers/observability"
)

//go:embed catalog.json
var builtinCatalogJSON []byte

//go:embed catalog_schema.json
var catalogSchemaJSON []byte

var (
	catalogSchemaOnce sync.Once
	catalogSchema     *jsonschema.Schema
	catalogSchemaErr  error
)

func compiledCatalogSchema() (*jsonschema.Schema, error) {
	catalogSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("catalog_schema.json", bytes.NewReader(catalogSchemaJSON)); err != nil {
			catalogSchemaErr = err
			return
		}
		catalogSchema, catalogSchemaErr = compiler.Compile("catalog_schema.json")
	})
	return catalogSchema, catalogSchemaErr
}

// Catalog is the model registry: qualified "provider:modelName" ids mapped to
// [ModelInfo]. Like the plugin registry it is populated during setup and
// read-mostly during requests.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
}

// NewCatalog creates an empty model catalog.
func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]ModelInfo)}
}

// Register validates and stores one model entry. A duplicate id logs a
// warning and overwrites.
func (c *Catalog) Register(ctx context.Context, info ModelInfo) error {
	if err := validateModelInfo(info); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.models[info.ID]; exists {
		if observer := observability.ObserverFromContext(ctx); observer != nil {
			observer.Warn(ctx, "overwriting already registered model",
				observability.String(observability.AttrLLMModel, info.ID),
			)
		}
	}
	c.models[info.ID] = info
	return nil
}

// Get returns the entry for a qualified model id.
func (c *Catalog) Get(id string) (ModelInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.models[id]
	if !ok {
		return ModelInfo{}, errdefs.Newf(errdefs.KindBridge, "model %q is not registered", id).
			WithCode(errdefs.CodeModelNotRegistered)
	}
	return info, nil
}

// Has reports whether the model id is registered.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[id]
	return ok
}

// List enumerates registered models sorted by id, optionally filtered by
// provider prefix.
func (c *Catalog) List(provider string) []ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(c.models))
	for _, info := range c.models {
		if provider != "" && info.Provider != provider {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SeedBuiltin loads the embedded model catalog covering the four bundled
// vendors.
func (c *Catalog) SeedBuiltin(ctx context.Context) error {
	return c.SeedData(ctx, builtinCatalogJSON)
}

// SeedData validates raw catalog JSON against the catalog schema and
// registers every entry. Loading from a filesystem path is deliberately not
// supported here; file-backed loaders are external collaborators.
func (c *Catalog) SeedData(ctx context.Context, data []byte) error {
	schema, err := compiledCatalogSchema()
	if err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "compiling model catalog schema", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "model catalog seed is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "model catalog seed failed schema validation", err)
	}

	var seed struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(data, &seed); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "decoding model catalog seed", err)
	}
	for _, info := range seed.Models {
		if err := c.Register(ctx, info); err != nil {
			return err
		}
	}
	return nil
}

// SplitModelID splits a qualified "provider:modelName" id. Unqualified ids
// are rejected.
func SplitModelID(id string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok || provider == "" || model == "" {
		return "", "", errdefs.Newf(errdefs.KindValidation,
			"model id %q must be qualified as provider:modelName", id)
	}
	return provider, model, nil
}

// ModelName strips the provider prefix from a qualified id. Already-bare ids
// pass through unchanged.
func ModelName(id string) string {
	if _, model, ok := strings.Cut(id, ":"); ok {
		return model
	}
	return id
}

func validateModelInfo(info ModelInfo) error {
	provider, _, err := SplitModelID(info.ID)
	if err != nil {
		return err
	}
	if info.Provider == "" {
		return errdefs.Newf(errdefs.KindValidation, "model %q has an empty provider", info.ID)
	}
	if info.Provider != provider {
		return errdefs.Newf(errdefs.KindValidation,
			"model %q provider field %q does not match its id prefix", info.ID, info.Provider)
	}
	if info.PluginRef() == "" {
		return errdefs.Newf(errdefs.KindValidation,
			"model %q is missing the %s metadata entry", info.ID, MetadataProviderPlugin)
	}
	if _, _, err := ParsePluginRef(info.PluginRef()); err != nil {
		return err
	}
	return nil
}
