package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Save writes the configuration to path as YAML. Existing files are not
// overwritten.
func Save(config *Config, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
