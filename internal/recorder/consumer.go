package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/caevv/testrecorder/internal/record"
)

// Hook names one of the eight lifecycle notifications delivered to a
// Consumer.
type Hook string

const (
	HookStartInvocation Hook = "start_invocation"
	HookEndInvocation   Hook = "end_invocation"
	HookStartModule     Hook = "start_module"
	HookEndModule       Hook = "end_module"
	HookStartRun        Hook = "start_run"
	HookEndRun          Hook = "end_run"
	HookStartTest       Hook = "start_test"
	HookEndTest         Hook = "end_test"
)

// String returns the string representation of Hook
func (h Hook) String() string {
	return string(h)
}

// endHook returns the end notification for records of kind k.
func endHook(k Kind) Hook {
	switch k {
	case KindInvocation:
		return HookEndInvocation
	case KindModule:
		return HookEndModule
	case KindRun:
		return HookEndRun
	default:
		return HookEndTest
	}
}

// Consumer receives record snapshots as the tree is built. Every snapshot is
// a deep copy owned by the consumer. Returned errors are logged by the
// recorder and never affect the build.
type Consumer interface {
	StartInvocation(ctx context.Context, rec *record.Record) error
	EndInvocation(ctx context.Context, rec *record.Record) error
	StartModule(ctx context.Context, rec *record.Record) error
	EndModule(ctx context.Context, rec *record.Record) error
	StartRun(ctx context.Context, rec *record.Record) error
	EndRun(ctx context.Context, rec *record.Record) error
	StartTest(ctx context.Context, rec *record.Record) error
	EndTest(ctx context.Context, rec *record.Record) error
}

// NopConsumer implements every hook as a no-op. Embed it to override only
// the hooks of interest.
type NopConsumer struct{}

func (NopConsumer) StartInvocation(context.Context, *record.Record) error { return nil }
func (NopConsumer) EndInvocation(context.Context, *record.Record) error   { return nil }
func (NopConsumer) StartModule(context.Context, *record.Record) error     { return nil }
func (NopConsumer) EndModule(context.Context, *record.Record) error       { return nil }
func (NopConsumer) StartRun(context.Context, *record.Record) error        { return nil }
func (NopConsumer) EndRun(context.Context, *record.Record) error          { return nil }
func (NopConsumer) StartTest(context.Context, *record.Record) error       { return nil }
func (NopConsumer) EndTest(context.Context, *record.Record) error         { return nil }

// Dispatch delivers rec to the hook of c named by h. A panicking hook is
// recovered and reported as an error.
func Dispatch(ctx context.Context, c Consumer, h Hook, rec *record.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook %s panicked: %v", h, p)
		}
	}()

	switch h {
	case HookStartInvocation:
		return c.StartInvocation(ctx, rec)
	case HookEndInvocation:
		return c.EndInvocation(ctx, rec)
	case HookStartModule:
		return c.StartModule(ctx, rec)
	case HookEndModule:
		return c.EndModule(ctx, rec)
	case HookStartRun:
		return c.StartRun(ctx, rec)
	case HookEndRun:
		return c.EndRun(ctx, rec)
	case HookStartTest:
		return c.StartTest(ctx, rec)
	case HookEndTest:
		return c.EndTest(ctx, rec)
	default:
		return fmt.Errorf("unknown hook %q", h)
	}
}

// Named is implemented by consumers that want a readable name in logs.
type Named interface {
	Name() string
}

// ConsumerName returns c's name, or its type when it is not Named.
func ConsumerName(c Consumer) string {
	if n, ok := c.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}

// Multi fans notifications out to several consumers in order. Each consumer
// gets its own snapshot; a failing or panicking consumer does not stop the
// others. The joined error names every consumer that failed.
func Multi(consumers ...Consumer) Consumer {
	return multi(consumers)
}

type multi []Consumer

func (m multi) Name() string { return "multi" }

func (m multi) each(ctx context.Context, h Hook, rec *record.Record) error {
	var errs []error
	for _, c := range m {
		if err := Dispatch(ctx, c, h, rec.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ConsumerName(c), err))
		}
	}
	return errors.Join(errs...)
}

func (m multi) StartInvocation(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookStartInvocation, rec)
}

func (m multi) EndInvocation(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookEndInvocation, rec)
}

func (m multi) StartModule(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookStartModule, rec)
}

func (m multi) EndModule(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookEndModule, rec)
}

func (m multi) StartRun(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookStartRun, rec)
}

func (m multi) EndRun(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookEndRun, rec)
}

func (m multi) StartTest(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookStartTest, rec)
}

func (m multi) EndTest(ctx context.Context, rec *record.Record) error {
	return m.each(ctx, HookEndTest, rec)
}
