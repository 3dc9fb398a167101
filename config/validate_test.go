package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultConfig(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateFullConfig(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
gateway:
  url: http://localhost:8600
poll:
  interval: 10s
push:
  backoff_base_ms: 500
  max_attempts: 10
terminal:
  font_size: 16
sessions:
  include:
    - prod-*
dashboard:
  theme: dark
`))
	require.NoError(t, err)
	// Extension sections are out of schema scope and must not fail
	// validation.
	assert.NoError(t, cfg.Validate())
}
