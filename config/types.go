package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

//go:generate go run ../tools/schema-generator/

// GatewayConfig points the sync layer at its dashboard gateway.
type GatewayConfig struct {
	URL string `yaml:"url,omitempty" toml:"url,omitempty" jsonschema:"description=Base URL of the dashboard gateway (e.g. http://localhost:8600)" jsonschema_extras:"x-priority=1,x-important=true"`
}

// PollConfig tunes the snapshot poller.
type PollConfig struct {
	Interval string `yaml:"interval,omitempty" toml:"interval,omitempty" jsonschema:"description=Snapshot poll interval as a Go duration (default: 30s)"`
}

// PushConfig tunes the push channel's reconnect policy.
type PushConfig struct {
	BackoffBaseMs int `yaml:"backoff_base_ms,omitempty" toml:"backoff_base_ms,omitempty" jsonschema:"description=Base reconnect delay in milliseconds (default: 1000)"`
	BackoffCapMs  int `yaml:"backoff_cap_ms,omitempty" toml:"backoff_cap_ms,omitempty" jsonschema:"description=Maximum reconnect delay in milliseconds (default: 30000)"`
	JitterMs      int `yaml:"jitter_ms,omitempty" toml:"jitter_ms,omitempty" jsonschema:"description=Upper bound of uniform reconnect jitter in milliseconds (default: 1000)"`
	MaxAttempts   int `yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty" jsonschema:"description=Reconnect attempts before giving up (default: 20)"`
}

// TerminalConfig tunes geometry negotiation.
type TerminalConfig struct {
	Margin   float64 `yaml:"margin,omitempty" toml:"margin,omitempty" jsonschema:"description=Horizontal safety margin in pixels subtracted before computing columns (default: 8)"`
	FontMin  float64 `yaml:"font_min,omitempty" toml:"font_min,omitempty" jsonschema:"description=Minimum terminal font size in points (default: 8)"`
	FontMax  float64 `yaml:"font_max,omitempty" toml:"font_max,omitempty" jsonschema:"description=Maximum terminal font size in points (default: 32)"`
	FontSize float64 `yaml:"font_size,omitempty" toml:"font_size,omitempty" jsonschema:"description=Initial terminal font size in points (default: 14)"`
}

// SessionsConfig filters which sessions the engine tracks.
type SessionsConfig struct {
	Include []string `yaml:"include,omitempty" toml:"include,omitempty" jsonschema:"description=Glob patterns a session id or model must match to be tracked (empty means all)"`
	Exclude []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" jsonschema:"description=Glob patterns that exclude matching sessions (supports ! negation)"`
}

// Config represents the quarterdeck.yml configuration.
type Config struct {
	Version  string          `yaml:"version" toml:"version" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Gateway  *GatewayConfig  `yaml:"gateway,omitempty" toml:"gateway,omitempty" jsonschema:"description=Dashboard gateway endpoint"`
	Poll     *PollConfig     `yaml:"poll,omitempty" toml:"poll,omitempty" jsonschema:"description=Snapshot poller settings"`
	Push     *PushConfig     `yaml:"push,omitempty" toml:"push,omitempty" jsonschema:"description=Push channel reconnect settings"`
	Terminal *TerminalConfig `yaml:"terminal,omitempty" toml:"terminal,omitempty" jsonschema:"description=Terminal geometry settings"`
	Sessions *SessionsConfig `yaml:"sessions,omitempty" toml:"sessions,omitempty" jsonschema:"description=Session include/exclude filters"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// Defaults.
const (
	DefaultGatewayURL   = "http://localhost:8600"
	DefaultPollInterval = 30 * time.Second
)

// SetDefaults fills unset values with production defaults.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Gateway == nil {
		c.Gateway = &GatewayConfig{}
	}
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultGatewayURL
	}
	if c.Poll == nil {
		c.Poll = &PollConfig{}
	}
	if c.Poll.Interval == "" {
		c.Poll.Interval = DefaultPollInterval.String()
	}
	if c.Push == nil {
		c.Push = &PushConfig{}
	}
	if c.Push.BackoffBaseMs == 0 {
		c.Push.BackoffBaseMs = 1000
	}
	if c.Push.BackoffCapMs == 0 {
		c.Push.BackoffCapMs = 30000
	}
	if c.Push.JitterMs == 0 {
		c.Push.JitterMs = 1000
	}
	if c.Push.MaxAttempts == 0 {
		c.Push.MaxAttempts = 20
	}
	if c.Terminal == nil {
		c.Terminal = &TerminalConfig{}
	}
	if c.Terminal.Margin == 0 {
		c.Terminal.Margin = 8
	}
	if c.Terminal.FontMin == 0 {
		c.Terminal.FontMin = 8
	}
	if c.Terminal.FontMax == 0 {
		c.Terminal.FontMax = 32
	}
	if c.Terminal.FontSize == 0 {
		c.Terminal.FontSize = 14
	}
	if c.Sessions == nil {
		c.Sessions = &SessionsConfig{}
	}
}

// PollInterval parses the configured poll interval, falling back to
// the default on a missing or malformed value.
func (c *Config) PollInterval() time.Duration {
	if c.Poll == nil || c.Poll.Interval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

// UnmarshalExtension decodes a specific extension's configuration from
// the loaded quarterdeck.yml into the provided target struct. The
// target must be a pointer. This gives extensions type-safe access to
// their custom top-level sections.
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// Not an error; the target simply stays zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
