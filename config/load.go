// Package config loads quarterdeck.yml with layered merging: global
// config, modular TOML fragments, the project file, and finally an
// environment overlay. Unknown top-level keys are preserved in
// Extensions for other tools to decode.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/quarterdeck/core/errors"
)

// ConfigFileName is the project configuration file.
const ConfigFileName = "quarterdeck.yml"

// OverlayEnvVar carries an inline YAML overlay applied over every
// other layer, for ephemeral per-process overrides.
const OverlayEnvVar = "QD_CONFIG_OVERLAY"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and parses one configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parseYAML(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// LoadDefault loads configuration with hierarchical merging starting
// from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging. Layers, each
// overriding the previous:
//
//  1. global ~/.config/quarterdeck/quarterdeck.yml
//  2. ~/.config/quarterdeck/conf.d/*.toml fragments, sorted by name
//  3. project quarterdeck.yml found by walking up from startDir
//  4. QD_CONFIG_OVERLAY inline YAML from the environment
//
// Every layer is optional; with none present the defaults stand.
func LoadFrom(startDir string) (*Config, error) {
	var final *Config

	if globalPath := GlobalConfigPath(); globalPath != "" {
		if data, err := os.ReadFile(globalPath); err == nil {
			cfg, err := parseYAML(data)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse global config").
					WithDetail("path", globalPath)
			}
			final = cfg
		}
	}

	for _, fragPath := range fragmentPaths() {
		data, err := os.ReadFile(fragPath)
		if err != nil {
			continue
		}
		var frag Config
		if err := toml.Unmarshal(data, &frag); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config fragment").
				WithDetail("path", fragPath)
		}
		final = mergeConfigs(final, &frag)
	}

	if projectPath, err := FindConfigFile(startDir); err == nil {
		data, err := os.ReadFile(projectPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read project config").
				WithDetail("path", projectPath)
		}
		cfg, err := parseYAML(data)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse project config").
				WithDetail("path", projectPath)
		}
		final = mergeConfigs(final, cfg)
	}

	if overlay := os.Getenv(OverlayEnvVar); overlay != "" {
		cfg, err := parseYAML([]byte(overlay))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse "+OverlayEnvVar)
		}
		final = mergeConfigs(final, cfg)
	}

	if final == nil {
		final = &Config{}
	}
	final.SetDefaults()
	return final, nil
}

// LoadFromBytes parses configuration from a byte slice, applying
// defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parseYAML(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	cfg.SetDefaults()
	return cfg, nil
}

// FindConfigFile walks up from startDir looking for quarterdeck.yml.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ConfigNotFound(ConfigFileName)
		}
		dir = parent
	}
}

// GlobalConfigDir returns ~/.config/quarterdeck, or "" when the home
// directory is unknown.
func GlobalConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quarterdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quarterdeck")
}

// GlobalConfigPath returns the global configuration file path, or "".
func GlobalConfigPath() string {
	dir := GlobalConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, ConfigFileName)
}

// fragmentPaths lists conf.d/*.toml fragments in lexical order so
// numbered fragments apply predictably.
func fragmentPaths() []string {
	dir := GlobalConfigDir()
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(filepath.Join(dir, "conf.d"))
	if err != nil {
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, "conf.d", entry.Name()))
	}
	sort.Strings(paths)
	return paths
}

func parseYAML(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars substitutes ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRegex.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// mergeConfigs merges override into base section by section. Either
// argument may be nil.
func mergeConfigs(base, override *Config) *Config {
	if base == nil {
		if override == nil {
			return nil
		}
		clone := *override
		return &clone
	}
	if override == nil {
		return base
	}

	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	if override.Gateway != nil {
		if result.Gateway == nil {
			result.Gateway = &GatewayConfig{}
		}
		if override.Gateway.URL != "" {
			result.Gateway.URL = override.Gateway.URL
		}
	}
	if override.Poll != nil {
		if result.Poll == nil {
			result.Poll = &PollConfig{}
		}
		if override.Poll.Interval != "" {
			result.Poll.Interval = override.Poll.Interval
		}
	}
	if override.Push != nil {
		if result.Push == nil {
			result.Push = &PushConfig{}
		}
		if override.Push.BackoffBaseMs != 0 {
			result.Push.BackoffBaseMs = override.Push.BackoffBaseMs
		}
		if override.Push.BackoffCapMs != 0 {
			result.Push.BackoffCapMs = override.Push.BackoffCapMs
		}
		if override.Push.JitterMs != 0 {
			result.Push.JitterMs = override.Push.JitterMs
		}
		if override.Push.MaxAttempts != 0 {
			result.Push.MaxAttempts = override.Push.MaxAttempts
		}
	}
	if override.Terminal != nil {
		if result.Terminal == nil {
			result.Terminal = &TerminalConfig{}
		}
		if override.Terminal.Margin != 0 {
			result.Terminal.Margin = override.Terminal.Margin
		}
		if override.Terminal.FontMin != 0 {
			result.Terminal.FontMin = override.Terminal.FontMin
		}
		if override.Terminal.FontMax != 0 {
			result.Terminal.FontMax = override.Terminal.FontMax
		}
		if override.Terminal.FontSize != 0 {
			result.Terminal.FontSize = override.Terminal.FontSize
		}
	}
	if override.Sessions != nil {
		if result.Sessions == nil {
			result.Sessions = &SessionsConfig{}
		}
		if len(override.Sessions.Include) > 0 {
			result.Sessions.Include = override.Sessions.Include
		}
		if len(override.Sessions.Exclude) > 0 {
			result.Sessions.Exclude = override.Sessions.Exclude
		}
	}

	if override.Extensions != nil {
		if result.Extensions == nil {
			result.Extensions = make(map[string]interface{})
		}
		for key, value := range override.Extensions {
			if baseValue, exists := result.Extensions[key]; exists {
				if baseMap, baseOk := baseValue.(map[string]interface{}); baseOk {
					if overrideMap, overrideOk := value.(map[string]interface{}); overrideOk {
						merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
						for k, v := range baseMap {
							merged[k] = v
						}
						for k, v := range overrideMap {
							merged[k] = v
						}
						result.Extensions[key] = merged
						continue
					}
				}
			}
			result.Extensions[key] = value
		}
	}

	return &result
}
