package consumer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caevv/testrecorder/internal/config"
	"github.com/caevv/testrecorder/internal/record"
)

func closedRecord(id, parentID string, status record.Status) *record.Record {
	rec := record.New(id, parentID, record.FromMillis(1_700_000_000_000))
	end := record.FromMillis(1_700_000_000_250)
	rec.EndTime = &end
	rec.Status = status
	return rec
}

// loggingAgent appends "EVENT RECORD_ID STATUS" to out and copies the
// record file next to it.
func loggingAgent(out string) string {
	return `#!/bin/sh
echo "$EVENT $RECORD_ID $STATUS" >> "` + out + `"
cp "$RECORD_FILE" "` + out + `.$EVENT.json"
`
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestAgentConsumer_Hooks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "calls.log")
	e := newTestExecutor(t, map[string]string{"recorder-agent": loggingAgent(out)})

	cfg := config.Agents{
		TimeoutSec: 5,
		Hooks: config.Hooks{
			OnRunEnd:      []config.Agent{{Agent: "recorder-agent"}},
			OnTestFailure: []config.Agent{{Agent: "recorder-agent"}},
		},
	}
	c, err := NewAgentConsumer(e, cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewAgentConsumer() error = %v", err)
	}
	ctx := context.Background()

	// no agents configured for these
	if err := c.StartInvocation(ctx, closedRecord("inv", "", record.StatusUnknown)); err != nil {
		t.Fatal(err)
	}
	if err := c.EndModule(ctx, closedRecord("mod", "inv", record.StatusUnknown)); err != nil {
		t.Fatal(err)
	}

	if err := c.EndTest(ctx, closedRecord("A#pass", "suite", record.StatusPass)); err != nil {
		t.Fatal(err)
	}
	failed := closedRecord("A#fail", "suite", record.StatusFail)
	failed.DebugInfo = &record.DebugInfo{ErrorMessage: "boom", Trace: "boom"}
	if err := c.EndTest(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if err := c.EndRun(ctx, closedRecord("suite", "inv", record.StatusUnknown)); err != nil {
		t.Fatal(err)
	}

	lines := readLines(t, out)
	want := []string{
		"on_test_failure A#fail FAIL",
		"on_run_end suite",
	}
	if len(lines) != len(want) {
		t.Fatalf("agent calls = %q, want %q", lines, want)
	}
	for i := range want {
		if strings.TrimSpace(lines[i]) != want[i] {
			t.Errorf("call %d = %q, want %q", i, lines[i], want[i])
		}
	}

	rec, err := record.ReadFile(out + ".on_test_failure.json")
	if err != nil {
		t.Fatalf("record file not handed to agent: %v", err)
	}
	if rec.ID != "A#fail" || rec.DebugInfo == nil || rec.DebugInfo.ErrorMessage != "boom" {
		t.Errorf("unexpected record in RECORD_FILE: %+v", rec)
	}
}

func TestAgentConsumer_RejectsInvalidAgents(t *testing.T) {
	e := newTestExecutor(t, map[string]string{"notify": "#!/bin/sh\n"})

	tests := []struct {
		name string
		cfg  config.Agents
	}{
		{
			name: "unknown agent",
			cfg:  config.Agents{Hooks: config.Hooks{OnRunEnd: []config.Agent{{Agent: "missing"}}}},
		},
		{
			name: "not allowed",
			cfg: config.Agents{
				Allowed: []string{"other"},
				Hooks:   config.Hooks{OnTestEnd: []config.Agent{{Agent: "notify"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAgentConsumer(e, tt.cfg, quietLogger()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExecuteHooks_FailOnError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "calls.log")
	e := newTestExecutor(t, map[string]string{
		"fail":   "#!/bin/sh\nexit 2\n",
		"second": loggingAgent(out),
	})
	agents := []config.Agent{{Agent: "fail"}, {Agent: "second"}}
	params := AgentParams{Event: "on_run_end", RecordID: "suite", TimeoutSec: 5}

	t.Run("continue", func(t *testing.T) {
		err := ExecuteHooks(context.Background(), e, quietLogger(), agents, params, false)
		if err == nil || !strings.Contains(err.Error(), "exited with code 2") {
			t.Errorf("expected first failure to be returned, got %v", err)
		}
		if len(readLines(t, out)) != 1 {
			t.Error("second agent should still run")
		}
	})

	t.Run("stop", func(t *testing.T) {
		if err := os.Remove(out); err != nil {
			t.Fatal(err)
		}
		if err := ExecuteHooks(context.Background(), e, quietLogger(), agents, params, true); err == nil {
			t.Error("expected error")
		}
		if lines := readLines(t, out); len(lines) != 0 {
			t.Errorf("second agent should not run, got %q", lines)
		}
	})
}

func TestExecuteHooks_ConfigJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config.json")
	e := newTestExecutor(t, map[string]string{
		"cfg": "#!/bin/sh\nprintf '%s' \"$CONFIG_JSON\" > \"" + out + "\"\n",
	})
	agents := []config.Agent{{Agent: "cfg", With: map[string]any{"channel": "#ci", "retries": 2}}}

	if err := ExecuteHooks(context.Background(), e, quietLogger(), agents, AgentParams{TimeoutSec: 5}, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"channel":"#ci","retries":2}` {
		t.Errorf("CONFIG_JSON = %s", data)
	}
}
