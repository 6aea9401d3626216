// Package trace reads lifecycle event traces from YAML or JSON files and
// replays them against a recorder.
package trace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/caevv/testrecorder/internal/recorder"
)

// Trace is an ordered list of lifecycle events.
type Trace struct {
	Events []Event `yaml:"events" json:"events"`
}

// Event is one lifecycle callback. Which fields are used depends on the
// event name.
type Event struct {
	Event string `yaml:"event" json:"event"`

	// invocation_started, module_started
	Attributes map[string][]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	// module_started shorthand for attributes {MODULE_ID: [module_id]}
	ModuleID string `yaml:"module_id,omitempty" json:"module_id,omitempty"`

	// run_started
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Expected int    `yaml:"expected,omitempty" json:"expected,omitempty"`

	// test_*
	Test *recorder.TestDescription `yaml:"test,omitempty" json:"test,omitempty"`
	// test_started, test_ended
	TimeMs *int64 `yaml:"time_ms,omitempty" json:"time_ms,omitempty"`
	// test_failed, test_assumption_failure
	Trace string `yaml:"trace,omitempty" json:"trace,omitempty"`

	// run_failed
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// run_ended, invocation_ended
	ElapsedMs int64 `yaml:"elapsed_ms,omitempty" json:"elapsed_ms,omitempty"`
	// run_ended, test_ended
	Metrics map[string]any `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// log_association; Name is the data name
	File *recorder.LogFile `yaml:"file,omitempty" json:"file,omitempty"`
}

// Load reads and validates a trace file.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a trace. JSON is accepted as YAML.
func Parse(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trace: %w", err)
	}
	for i, ev := range t.Events {
		if err := ev.validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return &t, nil
}

func (e Event) validate() error {
	switch e.Event {
	case recorder.EventInvocationStarted, recorder.EventInvocationEnded,
		recorder.EventModuleEnded, recorder.EventRunFailed:
		return nil
	case recorder.EventModuleStarted:
		if e.ModuleID == "" && len(e.Attributes[recorder.ModuleIDKey]) == 0 {
			return fmt.Errorf("%s requires module_id", e.Event)
		}
	case recorder.EventRunStarted:
		if e.Name == "" {
			return fmt.Errorf("%s requires name", e.Event)
		}
	case recorder.EventTestStarted, recorder.EventTestEnded:
		if e.Test == nil {
			return fmt.Errorf("%s requires test", e.Event)
		}
		if e.TimeMs == nil {
			return fmt.Errorf("%s requires time_ms", e.Event)
		}
	case recorder.EventTestFailed, recorder.EventTestAssumptionFailure, recorder.EventTestIgnored:
		if e.Test == nil {
			return fmt.Errorf("%s requires test", e.Event)
		}
	case recorder.EventLogAssociation:
		if e.Name == "" || e.File == nil {
			return fmt.Errorf("%s requires name and file", e.Event)
		}
	case "":
		return fmt.Errorf("event name is required")
	default:
		return fmt.Errorf("unknown event %q", e.Event)
	}
	return nil
}

// invocationContext returns the invocation context carried by the event.
func (e Event) invocationContext() recorder.InvocationContext {
	attrs := make(map[string][]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	if e.ModuleID != "" {
		attrs[recorder.ModuleIDKey] = []string{e.ModuleID}
	}
	return recorder.InvocationContext{Attributes: attrs}
}
