// Package state persists small pieces of local tool state, such as the
// last gateway URL and the preferred terminal font size, between runs.
package state

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quarterdeck/core/errors"
)

// Well-known state keys.
const (
	KeyGatewayURL = "gateway.url"
	KeyFontSize   = "terminal.font_size"
)

// StateDirEnvVar overrides the directory holding state.yml. Used mainly
// by tests and sandboxed environments.
const StateDirEnvVar = "QD_STATE_DIR"

// State represents local Quarterdeck state as a generic map of key-value
// pairs, so any command can store small bits of state data.
type State map[string]interface{}

// stateFilePath returns the path to the state file. State is per-user,
// not per-project: it lives in ~/.quarterdeck/state.yml.
func stateFilePath() (string, error) {
	if dir := os.Getenv(StateDirEnvVar); dir != "" {
		return filepath.Join(dir, "state.yml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStateLoad, "resolve home directory")
	}
	return filepath.Join(home, ".quarterdeck", "state.yml"), nil
}

// Load loads the state from the state file.
// Returns an empty state if the file doesn't exist.
func Load() (State, error) {
	path, err := stateFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty state if file doesn't exist
			return make(State), nil
		}
		return nil, errors.StateLoad(path, err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, errors.StateLoad(path, err)
	}

	if state == nil {
		state = make(State)
	}

	return state, nil
}

// Save saves the state to the state file.
func Save(state State) error {
	path, err := stateFilePath()
	if err != nil {
		return err
	}

	// Ensure ~/.quarterdeck exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.StateSave(path, err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.StateSave(path, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.StateSave(path, err)
	}

	return nil
}

// Get retrieves a value from the state by key.
// Returns the value and true if found, nil and false otherwise.
func Get(key string) (interface{}, bool, error) {
	state, err := Load()
	if err != nil {
		return nil, false, err
	}

	val, ok := state[key]
	return val, ok, nil
}

// GetString is a convenience function to get a string value from state.
// Returns empty string if the key doesn't exist or the value is not a string.
func GetString(key string) (string, error) {
	val, ok, err := Get(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", nil
	}

	return str, nil
}

// GetFloat is a convenience function to get a numeric value from state.
// YAML decodes numbers as int or float64 depending on their form, so
// both are accepted. Returns 0 when the key is missing or not numeric.
func GetFloat(key string) (float64, error) {
	val, ok, err := Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	switch n := val.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, nil
	}
}

// Set sets a value in the state.
func Set(key string, value interface{}) error {
	state, err := Load()
	if err != nil {
		return err
	}

	state[key] = value
	return Save(state)
}

// Delete removes a key from the state.
func Delete(key string) error {
	state, err := Load()
	if err != nil {
		return err
	}

	delete(state, key)
	return Save(state)
}
