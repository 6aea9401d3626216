package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// ErrClosed is returned by hooks of an AsyncConsumer after Close.
var ErrClosed = errors.New("consumer closed")

// DefaultQueueSize is the queue length used when none is given.
const DefaultQueueSize = 256

type delivery struct {
	ctx  context.Context
	hook recorder.Hook
	rec  *record.Record
}

// AsyncConsumer hands notifications to a wrapped consumer on a separate
// goroutine so slow consumers do not hold up the recorder. Order is
// preserved. When the queue is full, hooks block until there is room or
// their context is done. Errors of the wrapped consumer are logged.
type AsyncConsumer struct {
	next   recorder.Consumer
	logger *slog.Logger
	queue  chan delivery
	group  *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// NewAsyncConsumer starts the delivery goroutine. Close must be called to
// drain the queue and stop it.
func NewAsyncConsumer(next recorder.Consumer, size int, logger *slog.Logger) *AsyncConsumer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &AsyncConsumer{
		next:   next,
		logger: logger,
		queue:  make(chan delivery, size),
		group:  new(errgroup.Group),
	}
	c.group.Go(c.drain)
	return c
}

func (c *AsyncConsumer) Name() string { return "async(" + recorder.ConsumerName(c.next) + ")" }

func (c *AsyncConsumer) drain() error {
	for d := range c.queue {
		// The producer's context may be canceled once the hook returned.
		ctx := context.WithoutCancel(d.ctx)
		if err := recorder.Dispatch(ctx, c.next, d.hook, d.rec); err != nil {
			c.logger.Error("async consumer hook failed",
				slog.String("consumer", recorder.ConsumerName(c.next)),
				slog.String("hook", d.hook.String()),
				slog.String("record_id", d.rec.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *AsyncConsumer) enqueue(ctx context.Context, hook recorder.Hook, rec *record.Record) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.queue <- delivery{ctx: ctx, hook: hook, rec: rec}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting notifications and waits until every queued one has
// been delivered. It is safe to call more than once.
func (c *AsyncConsumer) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	return c.group.Wait()
}

func (c *AsyncConsumer) StartInvocation(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookStartInvocation, rec)
}

func (c *AsyncConsumer) EndInvocation(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookEndInvocation, rec)
}

func (c *AsyncConsumer) StartModule(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookStartModule, rec)
}

func (c *AsyncConsumer) EndModule(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookEndModule, rec)
}

func (c *AsyncConsumer) StartRun(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookStartRun, rec)
}

func (c *AsyncConsumer) EndRun(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookEndRun, rec)
}

func (c *AsyncConsumer) StartTest(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookStartTest, rec)
}

func (c *AsyncConsumer) EndTest(ctx context.Context, rec *record.Record) error {
	return c.enqueue(ctx, recorder.HookEndTest, rec)
}
