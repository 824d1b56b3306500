package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when
// --config is not given.
const DefaultConfigFile = ".crucible.yaml"

// Config holds file-backed defaults; flags override it.
type Config struct {
	// Journal is the path of the SQLite mutation journal. Empty means
	// no persistence.
	Journal string `yaml:"journal"`

	// Quota bounds a single propagation cascade; 0 keeps the engine
	// default.
	Quota int `yaml:"quota"`

	// Format is the default output format (text|json).
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file. A missing file at the default
// path is not an error; a missing explicit path is.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
