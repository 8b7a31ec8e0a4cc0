// Package config loads the client configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sutext.github.io/gamelink/client"
)

// File is the on-disk layout. The connection section maps directly onto
// client.Config.
type File struct {
	Connection client.Config `yaml:"connection"`
	LogLevel   string        `yaml:"log_level"`
}

// Load reads a YAML config file and expands ${VAR} environment variables.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &f, nil
}

// LoadAndValidate loads the file, applies defaults, and validates the
// connection section.
func LoadAndValidate(path string) (*File, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	f.Connection.ApplyDefaults()
	if err := f.Connection.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return f, nil
}
