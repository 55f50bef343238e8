package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteFile when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

const fileHeader = "# paperrec configuration\n# Environment variables PAPERREC_<SECTION>_<KEY> override these values.\n\n"

// Marshal renders cfg as YAML with durations in time.Duration string form.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// WriteFile writes cfg to path as YAML, creating parent directories.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// MarshalYAML writes durations as strings such as "10s".
func (a ArxivConfig) MarshalYAML() (any, error) {
	return struct {
		BaseURL     string `yaml:"base_url"`
		MaxResults  int    `yaml:"max_results"`
		Timeout     string `yaml:"timeout"`
		MinInterval string `yaml:"min_interval"`
		UserAgent   string `yaml:"user_agent"`
	}{a.BaseURL, a.MaxResults, a.Timeout.String(), a.MinInterval.String(), a.UserAgent}, nil
}

// MarshalYAML writes durations as strings such as "30s".
func (t TimeoutsConfig) MarshalYAML() (any, error) {
	return struct {
		Inference string `yaml:"inference"`
		Store     string `yaml:"store"`
	}{t.Inference.String(), t.Store.String()}, nil
}
