package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the top-level configuration structure for testrecorder.
type Config struct {
	Logging   Logging   `yaml:"logging"`
	Store     Store     `yaml:"store"`
	Outputs   Outputs   `yaml:"outputs"`
	Agents    Agents    `yaml:"agents"`
	Retention Retention `yaml:"retention"`
	Server    Server    `yaml:"server"`
}

// Logging configures the structured logger.
type Logging struct {
	Format string `yaml:"format"` // "json", "text" or "pretty"
	Level  string `yaml:"level"`  // "debug", "info", "warn" or "error"
	Output string `yaml:"output"` // "stderr", "stdout" or a file path
}

// Store configuration for invocation record persistence.
type Store struct {
	Driver string `yaml:"driver"` // "bbolt", "sqlite", or "json"
	Path   string `yaml:"path"`   // file path for the store
}

// Outputs configures the file and stream consumers.
type Outputs struct {
	Dir     string `yaml:"dir"`     // directory for <invocation-id>.json result files; empty disables
	Modules bool   `yaml:"modules"` // also write one file per finished module
	Stream  string `yaml:"stream"`  // "stdout", "stderr" or a file path for JSON-lines events; empty disables
}

// Agents configures the external executables notified on record events.
type Agents struct {
	Paths       []string `yaml:"paths"`         // discovery directories, in priority order
	TimeoutSec  int      `yaml:"timeout_sec"`   // per-execution timeout
	FailOnError bool     `yaml:"fail_on_error"` // stop at the first failing agent of an event
	Allowed     []string `yaml:"allowed"`       // optional: whitelist of allowed agents
	Hooks       Hooks    `yaml:"hooks"`
}

// Hooks maps record events to the agents run for them.
type Hooks struct {
	OnInvocationStart []Agent `yaml:"on_invocation_start"`
	OnInvocationEnd   []Agent `yaml:"on_invocation_end"`
	OnModuleEnd       []Agent `yaml:"on_module_end"`
	OnRunEnd          []Agent `yaml:"on_run_end"`
	OnTestEnd         []Agent `yaml:"on_test_end"`
	OnTestFailure     []Agent `yaml:"on_test_failure"` // test cases ending with FAIL or ASSUMPTION_FAILURE
}

// HookNames lists the hook keys in configuration order.
var HookNames = []string{
	"on_invocation_start",
	"on_invocation_end",
	"on_module_end",
	"on_run_end",
	"on_test_end",
	"on_test_failure",
}

// ByName returns a pointer to the agent list of the named hook, or nil.
func (h *Hooks) ByName(name string) *[]Agent {
	switch name {
	case "on_invocation_start":
		return &h.OnInvocationStart
	case "on_invocation_end":
		return &h.OnInvocationEnd
	case "on_module_end":
		return &h.OnModuleEnd
	case "on_run_end":
		return &h.OnRunEnd
	case "on_test_end":
		return &h.OnTestEnd
	case "on_test_failure":
		return &h.OnTestFailure
	default:
		return nil
	}
}

// Empty reports whether no hook has any agent.
func (h *Hooks) Empty() bool {
	for _, name := range HookNames {
		if len(*h.ByName(name)) > 0 {
			return false
		}
	}
	return true
}

// Agent represents a plugin/agent to execute at a hook point.
type Agent struct {
	Agent string         `yaml:"agent"` // agent name (executable name)
	With  map[string]any `yaml:"with"`  // configuration passed to the agent
}

// Retention configures pruning of old invocations from the store.
type Retention struct {
	Schedule string `yaml:"schedule"` // cron expression or @every interval; empty disables pruning
	MaxAge   string `yaml:"max_age"`  // e.g. "720h" or "30d"
}

// MaxAgeDuration parses MaxAge. A "d" suffix counts days.
func (r Retention) MaxAgeDuration() (time.Duration, error) {
	return ParseAge(r.MaxAge)
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// ParseAge parses a Go duration or a number of days such as "30d".
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid age %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("age must be positive, got %s", s)
	}
	return d, nil
}
