package consumer

import (
	"context"
	"fmt"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
	"github.com/caevv/testrecorder/internal/store"
)

// StoreConsumer persists invocation roots. The partial root saved at
// invocation start is open (no end time) until the final one replaces it.
type StoreConsumer struct {
	recorder.NopConsumer
	store store.Store
}

func NewStoreConsumer(s store.Store) *StoreConsumer {
	return &StoreConsumer{store: s}
}

func (c *StoreConsumer) Name() string { return "store" }

func (c *StoreConsumer) StartInvocation(_ context.Context, rec *record.Record) error {
	return c.save(rec)
}

func (c *StoreConsumer) EndInvocation(_ context.Context, rec *record.Record) error {
	return c.save(rec)
}

func (c *StoreConsumer) save(rec *record.Record) error {
	if err := c.store.SaveInvocation(rec); err != nil {
		return fmt.Errorf("save invocation %s: %w", rec.ID, err)
	}
	return nil
}
