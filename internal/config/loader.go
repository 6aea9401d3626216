package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/caevv/testrecorder/internal/scheduler"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads and validates a testrecorder configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses, defaults and validates configuration YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Logging section
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	// Store section
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bbolt"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./.testrecorder.db"
	}

	// Agents section
	if cfg.Agents.TimeoutSec == 0 {
		cfg.Agents.TimeoutSec = 10
	}

	// Retention section
	if cfg.Retention.Schedule != "" && cfg.Retention.MaxAge == "" {
		cfg.Retention.MaxAge = "30d"
	}

	// Server section
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
}

var (
	validDrivers = []string{"bbolt", "json", "sqlite"}
	validFormats = []string{"json", "text", "pretty"}
	validLevels  = []string{"debug", "info", "warn", "warning", "error"}
)

func validate(cfg *Config) error {
	if !slices.Contains(validDrivers, cfg.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (must be one of %s)", cfg.Store.Driver, strings.Join(validDrivers, ", "))
	}
	if !slices.Contains(validFormats, strings.ToLower(cfg.Logging.Format)) {
		return fmt.Errorf("invalid logging format: %s (must be one of %s)", cfg.Logging.Format, strings.Join(validFormats, ", "))
	}
	if !slices.Contains(validLevels, strings.ToLower(cfg.Logging.Level)) {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	if cfg.Agents.TimeoutSec < 0 {
		return fmt.Errorf("agents.timeout_sec must be non-negative")
	}
	for _, name := range HookNames {
		for i, agent := range *cfg.Agents.Hooks.ByName(name) {
			if agent.Agent == "" {
				return fmt.Errorf("hook %s entry #%d is missing an agent name", name, i)
			}
			if len(cfg.Agents.Allowed) > 0 && !slices.Contains(cfg.Agents.Allowed, agent.Agent) {
				return fmt.Errorf("agent '%s' in hook '%s' is not in the allowed agents list", agent.Agent, name)
			}
		}
	}

	if cfg.Retention.Schedule != "" {
		if err := scheduler.ValidateSchedule(cfg.Retention.Schedule); err != nil {
			return fmt.Errorf("retention has invalid schedule: %w", err)
		}
		if _, err := cfg.Retention.MaxAgeDuration(); err != nil {
			return fmt.Errorf("retention.max_age: %w", err)
		}
	}
	return nil
}
