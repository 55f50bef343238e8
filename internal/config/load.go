package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/matsen/paperrec/internal/validation"
)

// EnvPrefix prefixes every environment override, e.g. PAPERREC_STORE_DRIVER.
const EnvPrefix = "PAPERREC_"

// ErrConfigNotFound is returned when an explicitly requested file is missing.
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when the merged configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Loaded is a validated configuration and the file it was read from.
type Loaded struct {
	*Config
	// Path is the file that was read, or empty when only defaults and
	// environment variables applied.
	Path string
}

// Load merges defaults, the YAML file chosen by ResolvePath(explicit) and
// PAPERREC_* environment variables, then validates the result.
func Load(explicit string) (*Loaded, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Layer 2: config file
	path, required := ResolvePath(explicit)
	readPath := ""
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
			readPath = path
		} else if required {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, Path: readPath}, nil
}

// Validate checks every section's constraints.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envKey maps PAPERREC_SECTION_SOME_KEY to section.some_key. The config file
// override variable itself is not a config key.
func envKey(name string) string {
	if name == ConfigPathEnvVar {
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}
