package consumer

import (
	"context"
	"log/slog"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// LogConsumer logs each lifecycle event. Starts are logged at debug, ends
// at info, and test failures at warn.
type LogConsumer struct {
	logger *slog.Logger
}

func NewLogConsumer(logger *slog.Logger) *LogConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogConsumer{logger: logger}
}

func (c *LogConsumer) Name() string { return "log" }

func (c *LogConsumer) started(ctx context.Context, hook recorder.Hook, rec *record.Record) error {
	c.logger.DebugContext(ctx, "record started",
		slog.String("hook", hook.String()),
		slog.String("record_id", rec.ID),
		slog.String("parent_id", rec.ParentID))
	return nil
}

func (c *LogConsumer) ended(ctx context.Context, hook recorder.Hook, rec *record.Record, extra ...slog.Attr) error {
	attrs := []slog.Attr{
		slog.String("hook", hook.String()),
		slog.String("record_id", rec.ID),
		slog.String("parent_id", rec.ParentID),
		slog.Duration("duration", rec.Duration()),
	}
	if rec.DebugInfo != nil {
		attrs = append(attrs, slog.String("error", rec.DebugInfo.ErrorMessage))
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "record ended", append(attrs, extra...)...)
	return nil
}

func (c *LogConsumer) StartInvocation(ctx context.Context, rec *record.Record) error {
	return c.started(ctx, recorder.HookStartInvocation, rec)
}

func (c *LogConsumer) EndInvocation(ctx context.Context, rec *record.Record) error {
	s := record.Summarize(rec)
	return c.ended(ctx, recorder.HookEndInvocation, rec,
		slog.Int("tests", s.Tests),
		slog.Int("passed", s.Passed),
		slog.Int("failed", s.Failed),
		slog.Int("ignored", s.Ignored),
		slog.Bool("success", s.Success()))
}

func (c *LogConsumer) StartModule(ctx context.Context, rec *record.Record) error {
	return c.started(ctx, recorder.HookStartModule, rec)
}

func (c *LogConsumer) EndModule(ctx context.Context, rec *record.Record) error {
	return c.ended(ctx, recorder.HookEndModule, rec)
}

func (c *LogConsumer) StartRun(ctx context.Context, rec *record.Record) error {
	return c.started(ctx, recorder.HookStartRun, rec)
}

func (c *LogConsumer) EndRun(ctx context.Context, rec *record.Record) error {
	return c.ended(ctx, recorder.HookEndRun, rec,
		slog.Int("tests", len(rec.Children)),
		slog.Int("expected", rec.NumExpectedChildren))
}

func (c *LogConsumer) StartTest(ctx context.Context, rec *record.Record) error {
	return c.started(ctx, recorder.HookStartTest, rec)
}

func (c *LogConsumer) EndTest(ctx context.Context, rec *record.Record) error {
	if rec.Status.IsFailure() {
		c.logger.WarnContext(ctx, "test failed",
			slog.String("record_id", rec.ID),
			slog.String("status", rec.Status.String()),
			slog.Duration("duration", rec.Duration()))
		return nil
	}
	c.logger.DebugContext(ctx, "test ended",
		slog.String("record_id", rec.ID),
		slog.String("status", rec.Status.String()),
		slog.Duration("duration", rec.Duration()))
	return nil
}
