package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// SaveConfig writes a Config to a YAML file.
// It performs an atomic write by writing to a temporary file first,
// then renaming it to the target path.
func SaveConfig(cfg *Config, path string) error {
	// Validate config before saving
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath) // Clean up temp file on error
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// loadOrDefault loads the config at path, or returns defaults if the file
// does not exist.
func loadOrDefault(configPath string) (*Config, error) {
	if _, statErr := os.Stat(configPath); statErr != nil {
		return NewDefaultConfig(), nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing config: %w", err)
	}
	return cfg, nil
}

// AddHook appends an agent to the named hook of a config file.
// If the config file doesn't exist, it creates a new one with sensible defaults.
func AddHook(configPath, hook string, agent Agent) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return err
	}

	list := cfg.Agents.Hooks.ByName(hook)
	if list == nil {
		return fmt.Errorf("unknown hook '%s' (valid: %v)", hook, HookNames)
	}

	// Check for duplicate agent on the same hook
	if slices.ContainsFunc(*list, func(a Agent) bool { return a.Agent == agent.Agent }) {
		return fmt.Errorf("agent '%s' is already attached to %s", agent.Agent, hook)
	}

	*list = append(*list, agent)

	// Save config
	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// RemoveHook detaches an agent from the named hook of a config file.
func RemoveHook(configPath, hook, agentName string) error {
	// Load existing config
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	list := cfg.Agents.Hooks.ByName(hook)
	if list == nil {
		return fmt.Errorf("unknown hook '%s' (valid: %v)", hook, HookNames)
	}

	// Find and remove the agent
	before := len(*list)
	*list = slices.DeleteFunc(*list, func(a Agent) bool { return a.Agent == agentName })
	if len(*list) == before {
		return fmt.Errorf("agent '%s' is not attached to %s", agentName, hook)
	}

	// Save config
	if err := SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a new Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: Logging{
			Format: "json",
			Level:  "info",
			Output: "stderr",
		},
		Store: Store{
			Driver: "bbolt",
			Path:   "./.testrecorder.db",
		},
		Outputs: Outputs{
			Dir: "./results",
		},
		Agents: Agents{
			Paths:      []string{"./agents/"},
			TimeoutSec: 10,
			Allowed:    []string{},
		},
		Retention: Retention{
			Schedule: "@daily",
			MaxAge:   "30d",
		},
		Server: Server{
			Addr: "127.0.0.1:8080",
		},
	}
}
