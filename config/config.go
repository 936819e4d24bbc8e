// Package config loads the gateway configuration from YAML, expanding
// ${ENV} references so credential material stays out of the file itself.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/axelhq/axel/provider"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Defaults  DefaultsConfig            `yaml:"defaults"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig selects behavior applied when a request leaves a field
// unset.
type DefaultsConfig struct {
	Provider string   `yaml:"provider"`
	Timeout  Duration `yaml:"timeout"`
}

// ProviderConfig captures credentials and model identity for one logical
// provider. Changing any of these never requires touching call sites; a
// new client instance is constructed on next resolution.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Version string `yaml:"version"`
	Project string `yaml:"project"`
	Region  string `yaml:"region"`
}

// Duration wraps time.Duration for YAML fields like "60s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads YAML configuration from disk, expands environment references
// and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	// Model is optional: every vendor factory supplies a default model
	// when the config leaves it empty.
	for name, pc := range c.Providers {
		if name == "vertex-mistral" {
			if strings.TrimSpace(pc.Project) == "" || strings.TrimSpace(pc.Region) == "" {
				return fmt.Errorf("provider %s: project and region must be provided", name)
			}
		}
	}

	if c.Defaults.Provider != "" {
		if _, ok := c.Providers[c.Defaults.Provider]; !ok {
			return fmt.Errorf("defaults.provider %q is not a configured provider", c.Defaults.Provider)
		}
	}

	return nil
}

// Apply pushes per-provider configuration into the registry. Cached client
// instances are untouched; the registry constructs new ones lazily.
func (c Config) Apply(reg *provider.Registry) {
	for name, pc := range c.Providers {
		reg.Configure(name, provider.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
			Version: pc.Version,
			Project: pc.Project,
			Region:  pc.Region,
			Timeout: time.Duration(c.Defaults.Timeout),
		})
	}
}
