package config

import (
	"gopkg.in/yaml.v3"

	"github.com/quarterdeck/core/errors"
	"github.com/quarterdeck/core/schema"
)

// Validate checks the configuration against the embedded JSON schema.
// The config is round-tripped through YAML first so the validated
// document uses the same field names a config file would.
func (c *Config) Validate() error {
	validator, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to load config schema")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to marshal config for validation")
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to unmarshal config for validation")
	}

	if err := validator.Validate(doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "configuration is invalid")
	}
	return nil
}
