package ai

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/llmbridge/bridge/core/errdefs"
)

// MustCompileConfigSchema compiles a plugin's provider-config schema at
// package init time. Schemas are compile-time constants, so a failure is a
// programming error.
func MustCompileConfigSchema(name string, schemaJSON []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("ai: invalid config schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("ai: invalid config schema %s: %v", name, err))
	}
	return schema
}

// ValidateProviderConfig checks a provider configuration against the plugin's
// compiled schema. The config is round-tripped through JSON so the schema
// sees the same shape a configuration file would produce.
func ValidateProviderConfig(schema *jsonschema.Schema, cfg ProviderConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "encoding provider config", err)
	}
	var doc any
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "decoding provider config", err)
	}
	if err := schema.Validate(doc); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "provider config failed schema validation", err).
			WithCode(errdefs.CodeInvalidConfig)
	}
	return nil
}
