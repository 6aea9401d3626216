package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caevv/testrecorder/internal/logging"
	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// Listener receives lifecycle callbacks. *recorder.Recorder implements it.
type Listener interface {
	InvocationStarted(ctx context.Context, ic recorder.InvocationContext) error
	InvocationEnded(ctx context.Context, elapsedMs int64) error
	ModuleStarted(ctx context.Context, ic recorder.InvocationContext) error
	ModuleEnded(ctx context.Context) error
	RunStarted(ctx context.Context, name string, expectedCount int) error
	RunFailed(ctx context.Context, message string) error
	RunEnded(ctx context.Context, elapsedMs int64, metrics map[string]record.Metric) error
	TestStarted(ctx context.Context, desc recorder.TestDescription, startMs int64) error
	TestFailed(ctx context.Context, desc recorder.TestDescription, trace string) error
	TestAssumptionFailure(ctx context.Context, desc recorder.TestDescription, trace string) error
	TestIgnored(ctx context.Context, desc recorder.TestDescription) error
	TestEnded(ctx context.Context, desc recorder.TestDescription, endMs int64, metrics map[string]record.Metric) error
	LogAssociation(ctx context.Context, name string, file recorder.LogFile) error
}

var _ Listener = (*recorder.Recorder)(nil)

// Replay delivers events to l in order. Errors returned by l do not stop
// the replay, so a trace with a protocol violation still reaches its
// invocation end; all of them are returned joined. Only a done context
// stops early. Rejected events are logged through the context logger.
func Replay(ctx context.Context, l Listener, events []Event) error {
	logger := logging.FromContext(ctx)

	var errs []error
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := Dispatch(ctx, l, ev); err != nil {
			logger.Debug("event rejected",
				slog.Int("index", i),
				slog.String("event", ev.Event),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("event %d (%s): %w", i, ev.Event, err))
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers a single event to l.
func Dispatch(ctx context.Context, l Listener, ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	switch ev.Event {
	case recorder.EventInvocationStarted:
		return l.InvocationStarted(ctx, ev.invocationContext())
	case recorder.EventInvocationEnded:
		return l.InvocationEnded(ctx, ev.ElapsedMs)
	case recorder.EventModuleStarted:
		return l.ModuleStarted(ctx, ev.invocationContext())
	case recorder.EventModuleEnded:
		return l.ModuleEnded(ctx)
	case recorder.EventRunStarted:
		return l.RunStarted(ctx, ev.Name, ev.Expected)
	case recorder.EventRunFailed:
		return l.RunFailed(ctx, ev.Message)
	case recorder.EventRunEnded:
		metrics, err := record.NewMetrics(ev.Metrics)
		if err != nil {
			return err
		}
		return l.RunEnded(ctx, ev.ElapsedMs, metrics)
	case recorder.EventTestStarted:
		return l.TestStarted(ctx, *ev.Test, *ev.TimeMs)
	case recorder.EventTestFailed:
		return l.TestFailed(ctx, *ev.Test, ev.Trace)
	case recorder.EventTestAssumptionFailure:
		return l.TestAssumptionFailure(ctx, *ev.Test, ev.Trace)
	case recorder.EventTestIgnored:
		return l.TestIgnored(ctx, *ev.Test)
	case recorder.EventTestEnded:
		metrics, err := record.NewMetrics(ev.Metrics)
		if err != nil {
			return err
		}
		return l.TestEnded(ctx, *ev.Test, *ev.TimeMs, metrics)
	case recorder.EventLogAssociation:
		return l.LogAssociation(ctx, ev.Name, *ev.File)
	}
	return fmt.Errorf("unknown event %q", ev.Event)
}
