package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantError bool
		validate  func(*testing.T, *Config)
	}{
		{
			name: "valid full config",
			yaml: `
logging:
  format: "pretty"
  level: "debug"

store:
  driver: "sqlite"
  path: "./archive.db"

outputs:
  dir: "./results"
  modules: true
  stream: "stdout"

agents:
  paths: ["./agents"]
  timeout_sec: 5
  allowed: ["notify"]
  hooks:
    on_invocation_end:
      - agent: "notify"
        with:
          channel: "#ci"

retention:
  schedule: "@every 1h"
  max_age: "7d"
`,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Format != "pretty" {
					t.Errorf("expected logging format pretty, got %s", cfg.Logging.Format)
				}
				if cfg.Store.Driver != "sqlite" {
					t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
				}
				if !cfg.Outputs.Modules || cfg.Outputs.Stream != "stdout" {
					t.Errorf("unexpected outputs %+v", cfg.Outputs)
				}
				if len(cfg.Agents.Hooks.OnInvocationEnd) != 1 {
					t.Fatalf("expected 1 on_invocation_end hook, got %d", len(cfg.Agents.Hooks.OnInvocationEnd))
				}
				if cfg.Agents.Hooks.OnInvocationEnd[0].With["channel"] != "#ci" {
					t.Errorf("hook config not parsed: %v", cfg.Agents.Hooks.OnInvocationEnd[0].With)
				}
				age, err := cfg.Retention.MaxAgeDuration()
				if err != nil || age != 7*24*time.Hour {
					t.Errorf("MaxAgeDuration() = %v, %v", age, err)
				}
			},
		},
		{
			name: "empty config gets defaults",
			yaml: `{}`,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Store.Driver != "bbolt" {
					t.Errorf("expected default driver bbolt, got %s", cfg.Store.Driver)
				}
				if cfg.Store.Path != "./.testrecorder.db" {
					t.Errorf("expected default store path, got %s", cfg.Store.Path)
				}
				if cfg.Logging.Format != "json" || cfg.Logging.Level != "info" || cfg.Logging.Output != "stderr" {
					t.Errorf("unexpected logging defaults %+v", cfg.Logging)
				}
				if cfg.Agents.TimeoutSec != 10 {
					t.Errorf("expected default agent timeout 10, got %d", cfg.Agents.TimeoutSec)
				}
				if cfg.Retention.MaxAge != "" {
					t.Errorf("max_age should stay empty without a schedule, got %s", cfg.Retention.MaxAge)
				}
				if cfg.Server.Addr != "127.0.0.1:8080" {
					t.Errorf("expected default server addr, got %s", cfg.Server.Addr)
				}
			},
		},
		{
			name: "retention schedule gets default max age",
			yaml: `
retention:
  schedule: "@daily"
`,
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Retention.MaxAge != "30d" {
					t.Errorf("expected default max_age 30d, got %s", cfg.Retention.MaxAge)
				}
			},
		},
		{
			name: "invalid store driver",
			yaml: `
store:
  driver: "postgres"
`,
			wantError: true,
		},
		{
			name: "invalid logging format",
			yaml: `
logging:
  format: "xml"
`,
			wantError: true,
		},
		{
			name: "invalid logging level",
			yaml: `
logging:
  level: "loud"
`,
			wantError: true,
		},
		{
			name: "negative agent timeout",
			yaml: `
agents:
  timeout_sec: -1
`,
			wantError: true,
		},
		{
			name: "hook without agent name",
			yaml: `
agents:
  hooks:
    on_run_end:
      - with: {a: 1}
`,
			wantError: true,
		},
		{
			name: "agent not allowed",
			yaml: `
agents:
  allowed: ["notify"]
  hooks:
    on_test_failure:
      - agent: "rm-rf"
`,
			wantError: true,
		},
		{
			name: "invalid retention schedule",
			yaml: `
retention:
  schedule: "every day"
`,
			wantError: true,
		},
		{
			name: "invalid retention age",
			yaml: `
retention:
  schedule: "@daily"
  max_age: "forever"
`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "testrecorder.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg, err := LoadConfig(configPath)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/testrecorder.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := ParseConfig([]byte("store: [unclosed"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseConfig_RetentionSchedule(t *testing.T) {
	tests := []struct {
		schedule  string
		wantError bool
	}{
		{"0 2 * * *", false},
		{"0 0 2 * * *", false},
		{"@daily", false},
		{"@every 5m", false},
		{"every 6h", false},
		{"every 1 day", false},
		{"@sometimes", true},
		{"@every 5 minutes", true},
		{"every 10s", true},
		{"* * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			data := fmt.Sprintf("retention:\n  schedule: %q\n  max_age: 7d\n", tt.schedule)
			_, err := ParseConfig([]byte(data))
			if (err != nil) != tt.wantError {
				t.Errorf("ParseConfig(schedule %q) error = %v, wantError %v", tt.schedule, err, tt.wantError)
			}
		})
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in        string
		want      time.Duration
		wantError bool
	}{
		{in: "30d", want: 30 * 24 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "0d", wantError: true},
		{in: "-1h", wantError: true},
		{in: "xd", wantError: true},
		{in: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAge(tt.in)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseAge(%q) error = %v, wantError %v", tt.in, err, tt.wantError)
			}
			if got != tt.want {
				t.Errorf("ParseAge(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHooks_ByName(t *testing.T) {
	var hooks Hooks
	if !hooks.Empty() {
		t.Error("zero Hooks should be empty")
	}
	for _, name := range HookNames {
		list := hooks.ByName(name)
		if list == nil {
			t.Fatalf("ByName(%s) returned nil", name)
		}
		*list = append(*list, Agent{Agent: "a"})
	}
	if hooks.Empty() {
		t.Error("Hooks should not be empty")
	}
	if len(hooks.OnTestFailure) != 1 {
		t.Error("ByName did not return a pointer into the struct")
	}
	if hooks.ByName("on_coffee") != nil {
		t.Error("ByName should return nil for unknown hooks")
	}
}
