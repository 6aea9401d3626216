package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/caevv/testrecorder/internal/record"
)

// Lifecycle event names, as reported in protocol errors and logs.
const (
	EventInvocationStarted     = "invocation_started"
	EventInvocationEnded       = "invocation_ended"
	EventModuleStarted         = "module_started"
	EventModuleEnded           = "module_ended"
	EventRunStarted            = "run_started"
	EventRunFailed             = "run_failed"
	EventRunEnded              = "run_ended"
	EventTestStarted           = "test_started"
	EventTestFailed            = "test_failed"
	EventTestAssumptionFailure = "test_assumption_failure"
	EventTestIgnored           = "test_ignored"
	EventTestEnded             = "test_ended"
	EventLogAssociation        = "log_association"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the wall clock used for invocation, module and run
// start times.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator sets the generator of invocation ids. Defaults to random
// UUIDs.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// Recorder turns a flat stream of lifecycle callbacks into a record tree and
// notifies its consumer with snapshots as records open and close.
//
// A Recorder must be driven by one caller at a time; concurrent entry is
// rejected with ErrConcurrentUse.
type Recorder struct {
	consumer Consumer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	builder         *Builder
	invocationStart int64
	final           *record.Record
	poison          error

	busy atomic.Bool
}

// New creates a recorder delivering snapshots to consumer. A nil consumer
// discards them.
func New(consumer Consumer, opts ...Option) *Recorder {
	if consumer == nil {
		consumer = NopConsumer{}
	}
	r := &Recorder{
		consumer: consumer,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		builder:  NewBuilder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State renders the kinds of the open records, e.g. "IMRT". Empty when no
// invocation is open.
func (r *Recorder) State() string {
	return r.builder.State()
}

// Final returns a copy of the last finalized invocation record, or nil if no
// invocation has ended yet.
func (r *Recorder) Final() *record.Record {
	return r.final.Clone()
}

// Snapshot returns a copy of the invocation under construction, or of the
// last finalized one when nothing is open.
func (r *Recorder) Snapshot() *record.Record {
	if root := r.builder.Root(); root != nil {
		return root.Clone()
	}
	return r.Final()
}

// InvocationStarted opens the root record with a fresh id.
func (r *Recorder) InvocationStarted(ctx context.Context, ic InvocationContext) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.builder.CanOpen(KindInvocation); err != nil {
		return r.violation(EventInvocationStarted, err.Error(), nil)
	}
	// a new invocation clears the poison of the previous one
	r.poison = nil

	desc, err := ic.Description()
	if err != nil {
		return fmt.Errorf("failed to pack invocation description: %w", err)
	}

	r.invocationStart = r.now().UnixMilli()
	root, err := r.builder.Open(KindInvocation, r.newID(), record.FromMillis(r.invocationStart), desc, 0)
	if err != nil {
		return r.violation(EventInvocationStarted, err.Error(), nil)
	}
	r.final = nil

	r.logger.Debug("invocation started", slog.String("record_id", root.ID))
	r.notify(ctx, HookStartInvocation, root)
	return nil
}

// InvocationEnded closes the root at invocation start + elapsedMs and emits
// the final record. Records still open below the root are flushed first.
// It is accepted even after a protocol violation.
func (r *Recorder) InvocationEnded(ctx context.Context, elapsedMs int64) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if r.builder.Depth() == 0 {
		return r.violation(EventInvocationEnded, "no invocation open", nil)
	}

	if r.builder.Depth() > 1 {
		r.logger.Warn("invocation ended with open records, flushing",
			slog.String("state", r.builder.State()))
		r.flush(ctx)
	}

	if elapsedMs < 0 {
		r.logger.Warn("negative invocation elapsed time, clamping",
			slog.Int64("elapsed_ms", elapsedMs))
		elapsedMs = 0
	}
	root, _, err := r.builder.Close(KindInvocation, record.FromMillis(r.invocationStart+elapsedMs), nil)
	if err != nil {
		return r.violation(EventInvocationEnded, err.Error(), nil)
	}
	r.final = root

	if r.poison != nil {
		r.logger.Warn("finalized a poisoned invocation",
			slog.String("record_id", root.ID),
			slog.String("error", r.poison.Error()))
	}
	r.logger.Debug("invocation ended",
		slog.String("record_id", root.ID),
		slog.Duration("duration", root.Duration()))
	r.notify(ctx, HookEndInvocation, root)
	return nil
}

// ModuleStarted opens a module record whose id is the MODULE_ID attribute.
func (r *Recorder) ModuleStarted(ctx context.Context, ic InvocationContext) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventModuleStarted); err != nil {
		return err
	}
	if err := r.builder.CanOpen(KindModule); err != nil {
		return r.violation(EventModuleStarted, err.Error(), nil)
	}
	id, ok := ic.Attribute(ModuleIDKey)
	if !ok {
		return r.violation(EventModuleStarted, "context has no "+ModuleIDKey, ErrMissingAttribute)
	}

	desc, err := ic.Description()
	if err != nil {
		return fmt.Errorf("failed to pack module description: %w", err)
	}

	rec, err := r.builder.Open(KindModule, id, record.FromTime(r.now()), desc, 0)
	if err != nil {
		return r.violation(EventModuleStarted, err.Error(), nil)
	}
	r.logger.Debug("module started", slog.String("record_id", rec.ID))
	r.notify(ctx, HookStartModule, rec)
	return nil
}

// ModuleEnded closes the open module at the current time.
func (r *Recorder) ModuleEnded(ctx context.Context) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventModuleEnded); err != nil {
		return err
	}
	rec, _, err := r.builder.Close(KindModule, record.FromTime(r.now()), nil)
	if err != nil {
		return r.violation(EventModuleEnded, err.Error(), nil)
	}
	r.logger.Debug("module ended", slog.String("record_id", rec.ID))
	r.notify(ctx, HookEndModule, rec)
	return nil
}

// RunStarted opens a run record named name, directly under the invocation or
// the open module.
func (r *Recorder) RunStarted(ctx context.Context, name string, expectedCount int) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventRunStarted); err != nil {
		return err
	}
	if expectedCount < 0 {
		return r.violation(EventRunStarted, fmt.Sprintf("negative expected count %d", expectedCount), nil)
	}
	rec, err := r.builder.Open(KindRun, name, record.FromTime(r.now()), nil, expectedCount)
	if err != nil {
		return r.violation(EventRunStarted, err.Error(), nil)
	}
	r.logger.Debug("run started",
		slog.String("record_id", rec.ID),
		slog.Int("expected", expectedCount))
	r.notify(ctx, HookStartRun, rec)
	return nil
}

// RunFailed attaches message to the open run, even while one of its tests
// is open. It never changes a status.
func (r *Recorder) RunFailed(ctx context.Context, message string) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventRunFailed); err != nil {
		return err
	}

	kind, _, _ := r.builder.Peek()
	switch {
	case r.builder.Depth() > 0 && kind == KindRun:
		return r.builder.AttachDebug(message, "")
	case r.builder.Depth() > 0 && kind == KindTest:
		test := r.builder.pop()
		err := r.builder.AttachDebug(message, "")
		r.builder.push(test.kind, test.rec)
		return err
	default:
		return r.violation(EventRunFailed, "no run open", nil)
	}
}

// RunEnded closes the open run at run start + elapsedMs and merges metrics.
func (r *Recorder) RunEnded(ctx context.Context, elapsedMs int64, metrics map[string]record.Metric) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventRunEnded); err != nil {
		return err
	}
	kind, run, ok := r.builder.Peek()
	if !ok || kind != KindRun {
		return r.violation(EventRunEnded, "no run on top", nil)
	}

	end := record.FromMillis(run.StartTime.Millis() + elapsedMs)
	rec, clamped, err := r.builder.Close(KindRun, end, metrics)
	if err != nil {
		return r.violation(EventRunEnded, err.Error(), nil)
	}
	if clamped {
		r.logger.Warn("run end before start, clamping",
			slog.String("record_id", rec.ID),
			slog.Int64("elapsed_ms", elapsedMs))
	}
	r.logger.Debug("run ended",
		slog.String("record_id", rec.ID),
		slog.Int("tests", len(rec.Children)))
	r.notify(ctx, HookEndRun, rec)
	return nil
}

// TestStarted opens a test case under the open run, initially passing.
func (r *Recorder) TestStarted(ctx context.Context, desc TestDescription, startMs int64) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventTestStarted); err != nil {
		return err
	}
	rec, err := r.builder.Open(KindTest, desc.String(), record.FromMillis(startMs), nil, 0)
	if err != nil {
		return r.violation(EventTestStarted, err.Error(), nil)
	}
	// A known status is what makes a record a test case (record.IsTestCase).
	r.builder.MarkStatus(record.StatusPass)
	r.notify(ctx, HookStartTest, rec)
	return nil
}

// TestFailed marks the open test as failed with trace as its debug info.
func (r *Recorder) TestFailed(ctx context.Context, desc TestDescription, trace string) error {
	return r.markTest(EventTestFailed, desc, record.StatusFail, trace)
}

// TestAssumptionFailure marks the open test as an assumption failure.
func (r *Recorder) TestAssumptionFailure(ctx context.Context, desc TestDescription, trace string) error {
	return r.markTest(EventTestAssumptionFailure, desc, record.StatusAssumptionFailure, trace)
}

// TestIgnored marks the open test as ignored unless it already failed.
func (r *Recorder) TestIgnored(ctx context.Context, desc TestDescription) error {
	return r.markTest(EventTestIgnored, desc, record.StatusIgnored, "")
}

// TestEnded closes the open test at endMs and merges metrics.
func (r *Recorder) TestEnded(ctx context.Context, desc TestDescription, endMs int64, metrics map[string]record.Metric) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventTestEnded); err != nil {
		return err
	}
	if err := r.checkTest(EventTestEnded, desc); err != nil {
		return err
	}

	rec, clamped, err := r.builder.Close(KindTest, record.FromMillis(endMs), metrics)
	if err != nil {
		return r.violation(EventTestEnded, err.Error(), nil)
	}
	if clamped {
		r.logger.Warn("test end before start, clamping",
			slog.String("record_id", rec.ID),
			slog.Int64("end_ms", endMs))
	}
	r.notify(ctx, HookEndTest, rec)
	return nil
}

// LogAssociation attaches a log file to the deepest open record. A repeated
// name replaces the earlier entry.
func (r *Recorder) LogAssociation(ctx context.Context, name string, file LogFile) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(EventLogAssociation); err != nil {
		return err
	}
	if err := r.builder.AttachArtifact(name, file.Info()); err != nil {
		return r.violation(EventLogAssociation, err.Error(), nil)
	}
	return nil
}

// FlushOpenNodes closes every open record below the root at the current
// time and emits their end notifications. The root stays open.
func (r *Recorder) FlushOpenNodes(ctx context.Context) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	r.flush(ctx)
	return nil
}

func (r *Recorder) markTest(event string, desc TestDescription, status record.Status, trace string) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if err := r.usable(event); err != nil {
		return err
	}
	if kind, run, ok := r.builder.Peek(); ok && kind == KindRun {
		r.logger.Warn("test callback without an open test, ignoring",
			slog.String("event", event),
			slog.String("test", desc.String()),
			slog.String("run", run.ID))
		return nil
	}
	if err := r.checkTest(event, desc); err != nil {
		return err
	}

	if !r.builder.MarkStatus(status) {
		r.logger.Debug("keeping failure status",
			slog.String("event", event),
			slog.String("test", desc.String()))
		return nil
	}
	if status.IsFailure() {
		return r.builder.AttachDebug(trace, trace)
	}
	return nil
}

// checkTest verifies that a test is open. Callbacks always apply to the
// open test; a description naming another test is only logged.
func (r *Recorder) checkTest(event string, desc TestDescription) error {
	kind, rec, ok := r.builder.Peek()
	if !ok || kind != KindTest {
		return r.violation(event, "no test open", nil)
	}
	if name := desc.String(); rec.ID != name {
		r.logger.Warn("test callback names a different test, applying to the open one",
			slog.String("event", event),
			slog.String("open_test", rec.ID),
			slog.String("test", name))
	}
	return nil
}

func (r *Recorder) flush(ctx context.Context) {
	for _, closed := range r.builder.FlushOpen(record.FromTime(r.now())) {
		r.logger.Warn("flushed open record",
			slog.String("kind", closed.Kind.String()),
			slog.String("record_id", closed.Record.ID))
		r.notify(ctx, endHook(closed.Kind), closed.Record)
	}
}

// usable returns the poison error if an earlier callback violated the
// protocol.
func (r *Recorder) usable(event string) error {
	if r.poison == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", event, ErrPoisoned, r.poison)
}

// violation builds a protocol error and poisons the open invocation.
func (r *Recorder) violation(event, reason string, cause error) error {
	err := &ProtocolError{
		Event:  event,
		State:  r.builder.State(),
		Reason: reason,
		Err:    cause,
	}
	if r.builder.Depth() > 0 && r.poison == nil {
		r.poison = err
	}
	r.logger.Error("protocol violation",
		slog.String("event", event),
		slog.String("state", err.State),
		slog.String("reason", reason))
	return err
}

// notify hands a snapshot of rec to the consumer. Consumer failures are
// logged and otherwise ignored.
func (r *Recorder) notify(ctx context.Context, hook Hook, rec *record.Record) {
	if err := Dispatch(ctx, r.consumer, hook, r.builder.Snapshot(rec)); err != nil {
		r.logger.Error("consumer hook failed",
			slog.String("hook", hook.String()),
			slog.String("consumer", ConsumerName(r.consumer)),
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()))
	}
}

func (r *Recorder) enter() error {
	if !r.busy.CompareAndSwap(false, true) {
		return ErrConcurrentUse
	}
	return nil
}

func (r *Recorder) leave() {
	r.busy.Store(false)
}
