// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load decodes the YAML file over target, which should already hold
// defaults, expanding ${VAR} references first. An empty filename keeps
// the defaults. target is validated either way when it implements
// Validator.
func Load[T any](filename string, target *T) error {
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), target); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}
	return validate(target)
}

func validate(target any) error {
	v, ok := target.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
