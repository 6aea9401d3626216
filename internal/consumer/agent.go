package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// AgentConsumer runs the agents configured for a hook when the matching
// record event happens. The record snapshot is handed to agents as a JSON
// file named by RECORD_FILE.
type AgentConsumer struct {
	recorder.NopConsumer

	executor *Executor
	cfg      config.Agents
	logger   *slog.Logger
}

// NewAgentConsumer validates every configured agent against the executor's
// discovered agents and the allow list.
func NewAgentConsumer(executor *Executor, cfg config.Agents, logger *slog.Logger) (*AgentConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateHooks(executor, cfg.Hooks, cfg.Allowed); err != nil {
		return nil, err
	}
	return &AgentConsumer{executor: executor, cfg: cfg, logger: logger}, nil
}

func (c *AgentConsumer) Name() string { return "agents" }

func (c *AgentConsumer) StartInvocation(ctx context.Context, rec *record.Record) error {
	return c.run(ctx, "on_invocation_start", rec)
}

func (c *AgentConsumer) EndInvocation(ctx context.Context, rec *record.Record) error {
	return c.run(ctx, "on_invocation_end", rec)
}

func (c *AgentConsumer) EndModule(ctx context.Context, rec *record.Record) error {
	return c.run(ctx, "on_module_end", rec)
}

func (c *AgentConsumer) EndRun(ctx context.Context, rec *record.Record) error {
	return c.run(ctx, "on_run_end", rec)
}

func (c *AgentConsumer) EndTest(ctx context.Context, rec *record.Record) error {
	err := c.run(ctx, "on_test_end", rec)
	if rec.Status.IsFailure() {
		err = errors.Join(err, c.run(ctx, "on_test_failure", rec))
	}
	return err
}

func (c *AgentConsumer) run(ctx context.Context, hook string, rec *record.Record) error {
	agents := *c.cfg.Hooks.ByName(hook)
	if len(agents) == 0 {
		return nil
	}

	file, err := writeRecordFile(rec)
	if err != nil {
		return err
	}
	defer os.Remove(file)

	params := AgentParams{
		Event:          hook,
		RecordID:       rec.ID,
		ParentRecordID: rec.ParentID,
		RecordFile:     file,
		TimeoutSec:     c.cfg.TimeoutSec,
	}
	if rec.IsTestCase() {
		params.Status = rec.Status.String()
	}
	if rec.DebugInfo != nil {
		params.ErrorMessage = rec.DebugInfo.ErrorMessage
	}

	return ExecuteHooks(ctx, c.executor, c.logger, agents, params, c.cfg.FailOnError)
}

func writeRecordFile(rec *record.Record) (string, error) {
	data, err := record.Marshal(rec)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "testrecorder-record-*.json")
	if err != nil {
		return "", fmt.Errorf("create record file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write record file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close record file: %w", err)
	}
	return f.Name(), nil
}

// ExecuteHooks runs agents in order for one event. Without failOnError every
// agent runs and the first failure is returned at the end; with it, the
// first failure stops the remaining agents.
func ExecuteHooks(
	ctx context.Context,
	executor *Executor,
	logger *slog.Logger,
	agents []config.Agent,
	params AgentParams,
	failOnError bool,
) error {
	var firstError error
	fail := func(err error) bool {
		if firstError == nil {
			firstError = err
		}
		return failOnError
	}

	for i, agent := range agents {
		configJSON, err := json.Marshal(agent.With)
		if err != nil {
			logger.Error("failed to marshal agent config",
				slog.String("agent", agent.Agent),
				slog.String("event", params.Event),
				slog.String("error", err.Error()))
			if fail(fmt.Errorf("marshal config for agent %s: %w", agent.Agent, err)) {
				return firstError
			}
			continue
		}

		agentParams := params
		agentParams.ConfigJSON = string(configJSON)

		result, err := executor.Execute(ctx, agent.Agent, agentParams)
		if err != nil {
			logger.Error("agent execution failed",
				slog.String("agent", agent.Agent),
				slog.String("event", params.Event),
				slog.Int("agent_index", i),
				slog.String("record_id", params.RecordID),
				slog.String("error", err.Error()))
			if fail(fmt.Errorf("%s (agent: %s): %w", params.Event, agent.Agent, err)) {
				return firstError
			}
			continue
		}

		if result.ExitCode != 0 {
			if fail(fmt.Errorf("%s (agent: %s) exited with code %d", params.Event, agent.Agent, result.ExitCode)) {
				return firstError
			}
			continue
		}

		if result.JSONOutput != nil {
			logger.Debug("agent output",
				slog.String("agent", agent.Agent),
				slog.Any("output", result.JSONOutput))
		}
	}

	return firstError
}

// ValidateHooks checks every agent named by hooks.
func ValidateHooks(executor *Executor, hooks config.Hooks, allowed []string) error {
	for _, name := range config.HookNames {
		for i, agent := range *hooks.ByName(name) {
			if err := executor.ValidateAgent(agent.Agent, allowed); err != nil {
				return fmt.Errorf("invalid agent in %s hook #%d: %w", name, i, err)
			}
		}
	}
	return nil
}
