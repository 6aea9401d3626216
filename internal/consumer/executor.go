package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// Executor discovers and runs agent executables.
type Executor struct {
	logger *slog.Logger
	agents map[string]string
}

// AgentParams describes one agent execution. Everything except TimeoutSec
// and ExtraEnv is exported to the agent as an environment variable.
type AgentParams struct {
	Event          string
	RecordID       string
	ParentRecordID string
	Status         string
	RecordFile     string
	ConfigJSON     string
	ErrorMessage   string

	ExtraEnv map[string]string

	TimeoutSec int
}

// AgentResult is the outcome of an agent execution.
type AgentResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// JSONOutput is the first JSON object found on stdout, if any.
	JSONOutput map[string]any
}

// NewExecutor creates an Executor with no agents.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger: logger,
		agents: make(map[string]string),
	}
}

// Discover replaces the known agents with those found in paths.
func (e *Executor) Discover(paths []string) {
	e.agents = DiscoverAgents(paths)
	e.logger.Info("discovered agents",
		slog.Int("count", len(e.agents)),
		slog.Any("agents", agentNames(e.agents)))
}

// Agents returns the discovered agents, name to path.
func (e *Executor) Agents() map[string]string {
	return e.agents
}

// ValidateAgent checks that an agent exists and is allowed. An empty allow
// list allows every agent.
func (e *Executor) ValidateAgent(name string, allowed []string) error {
	if _, err := FindAgent(e.agents, name); err != nil {
		return err
	}
	if len(allowed) > 0 && !slices.Contains(allowed, name) {
		return fmt.Errorf("agent not allowed: %s", name)
	}
	return nil
}

// Execute runs an agent. A non-zero exit is reported in the result, not as
// an error; errors mean the agent could not be found, started or finished
// in time.
func (e *Executor) Execute(ctx context.Context, name string, params AgentParams) (*AgentResult, error) {
	path, err := FindAgent(e.agents, name)
	if err != nil {
		return nil, err
	}

	execCtx := ctx
	if params.TimeoutSec > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(params.TimeoutSec)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, path)
	cmd.Env = buildEnvironment(params)
	// Children of a killed agent may hold its output pipes open
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("executing agent",
		slog.String("agent", name),
		slog.String("path", path),
		slog.String("event", params.Event),
		slog.String("record_id", params.RecordID))

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) || execCtx.Err() != nil {
			return nil, fmt.Errorf("agent %s: %w", name, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	result := &AgentResult{
		ExitCode:   exitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Duration:   duration,
		JSONOutput: parseJSONOutput(stdout.String()),
	}

	level := slog.LevelInfo
	if exitCode != 0 {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "agent execution completed",
		slog.String("agent", name),
		slog.String("event", params.Event),
		slog.String("record_id", params.RecordID),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration))

	if result.Stderr != "" {
		e.logger.Debug("agent stderr",
			slog.String("agent", name),
			slog.String("stderr", result.Stderr))
	}

	return result, nil
}

func buildEnvironment(params AgentParams) []string {
	vars := map[string]string{
		"EVENT":            params.Event,
		"RECORD_ID":        params.RecordID,
		"PARENT_RECORD_ID": params.ParentRecordID,
		"STATUS":           params.Status,
		"RECORD_FILE":      params.RecordFile,
		"CONFIG_JSON":      params.ConfigJSON,
		"ERROR_MESSAGE":    params.ErrorMessage,
	}
	for k, v := range params.ExtraEnv {
		vars[k] = v
	}

	env := os.Environ()
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env
}

// parseJSONOutput returns stdout parsed as a JSON object, or the first line
// that is one.
func parseJSONOutput(stdout string) map[string]any {
	if stdout == "" {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err == nil {
		return out
	}

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			return obj
		}
	}

	return nil
}
