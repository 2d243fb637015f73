package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file at path, expanding
// environment variable references (${VAR}) before decoding, and applying
// defaults to fields left zero. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parsing config %s: expected a single YAML document", path)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tools.MaxRounds == 0 {
		cfg.Tools.MaxRounds = 8
	}
	if cfg.Content.MaxLength == 0 {
		cfg.Content.MaxLength = 10000
	}
	if cfg.ChatStore.Driver == "" {
		cfg.ChatStore.Driver = "memory"
	}
	if cfg.MCP.RefreshSchedule == "" {
		cfg.MCP.RefreshSchedule = "@every 5m"
	}
}
