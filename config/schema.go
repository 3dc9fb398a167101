package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for the core Quarterdeck
// configuration. It reflects the Config struct but excludes the
// Extensions field, whose keys are by definition unknown here.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Extensions land in their own top-level keys; the base schema
		// must still accept them.
		AllowAdditionalProperties: true,
		// Expand struct references instead of using $ref for a cleaner
		// base schema.
		ExpandedStruct: true,
		// Use YAML field names for property names.
		FieldNameTag: "yaml",
	}

	type BaseConfig struct {
		Version  string          `yaml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
		Gateway  *GatewayConfig  `yaml:"gateway,omitempty" jsonschema:"description=Dashboard gateway endpoint"`
		Poll     *PollConfig     `yaml:"poll,omitempty" jsonschema:"description=Snapshot poller settings"`
		Push     *PushConfig     `yaml:"push,omitempty" jsonschema:"description=Push channel reconnect settings"`
		Terminal *TerminalConfig `yaml:"terminal,omitempty" jsonschema:"description=Terminal geometry settings"`
		Sessions *SessionsConfig `yaml:"sessions,omitempty" jsonschema:"description=Session include/exclude filters"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "Quarterdeck Core Configuration"
	schema.Description = "Schema for core quarterdeck.yml properties."
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
