package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// Event is one line of the JSON-lines stream.
type Event struct {
	Event  recorder.Hook  `json:"event"`
	Record *record.Record `json:"record"`
}

// StreamConsumer writes every hook as a JSON line to w.
type StreamConsumer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewStreamConsumer(w io.Writer) *StreamConsumer {
	return &StreamConsumer{enc: json.NewEncoder(w)}
}

func (c *StreamConsumer) Name() string { return "stream" }

func (c *StreamConsumer) emit(hook recorder.Hook, rec *record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(Event{Event: hook, Record: rec}); err != nil {
		return fmt.Errorf("write %s event: %w", hook, err)
	}
	return nil
}

func (c *StreamConsumer) StartInvocation(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookStartInvocation, rec)
}

func (c *StreamConsumer) EndInvocation(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookEndInvocation, rec)
}

func (c *StreamConsumer) StartModule(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookStartModule, rec)
}

func (c *StreamConsumer) EndModule(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookEndModule, rec)
}

func (c *StreamConsumer) StartRun(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookStartRun, rec)
}

func (c *StreamConsumer) EndRun(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookEndRun, rec)
}

func (c *StreamConsumer) StartTest(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookStartTest, rec)
}

func (c *StreamConsumer) EndTest(_ context.Context, rec *record.Record) error {
	return c.emit(recorder.HookEndTest, rec)
}
