package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

type collectingConsumer struct {
	recorder.NopConsumer
	mu      sync.Mutex
	ids     []string
	release chan struct{}
}

func (c *collectingConsumer) EndTest(_ context.Context, rec *record.Record) error {
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, rec.ID)
	if rec.Status.IsFailure() {
		return errors.New("rejected")
	}
	return nil
}

func (c *collectingConsumer) collected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestAsyncConsumer_DeliversInOrder(t *testing.T) {
	next := &collectingConsumer{}
	c := NewAsyncConsumer(next, 4, quietLogger())
	ctx := context.Background()

	want := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for i, id := range want {
		status := record.StatusPass
		if i == 2 {
			status = record.StatusFail
		}
		if err := c.EndTest(ctx, closedRecord(id, "run", status)); err != nil {
			t.Fatalf("EndTest(%s) error = %v", id, err)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := next.collected()
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAsyncConsumer_Closed(t *testing.T) {
	c := NewAsyncConsumer(&collectingConsumer{}, 1, quietLogger())
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.EndTest(context.Background(), closedRecord("a", "run", record.StatusPass)); !errors.Is(err, ErrClosed) {
		t.Errorf("EndTest() after Close error = %v, want ErrClosed", err)
	}
}

func TestAsyncConsumer_FullQueueHonorsContext(t *testing.T) {
	next := &collectingConsumer{release: make(chan struct{})}
	c := NewAsyncConsumer(next, 1, quietLogger())

	// one delivery blocked in the consumer, one in the queue
	bg := context.Background()
	if err := c.EndTest(bg, closedRecord("a", "run", record.StatusPass)); err != nil {
		t.Fatal(err)
	}
	if err := c.EndTest(bg, closedRecord("b", "run", record.StatusPass)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	var err error
	for _, id := range []string{"c", "d"} {
		if err = c.EndTest(ctx, closedRecord(id, "run", record.StatusPass)); err != nil {
			break
		}
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("EndTest() on full queue error = %v, want deadline exceeded", err)
	}

	close(next.release)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if got := next.collected(); len(got) < 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("delivered %v", got)
	}
}

func TestAsyncConsumer_DetachesCanceledContext(t *testing.T) {
	next := &ctxConsumer{}
	c := NewAsyncConsumer(next, 1, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.EndRun(ctx, closedRecord("run", "inv", record.StatusUnknown)); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if next.err != nil {
		t.Errorf("delivery saw canceled context: %v", next.err)
	}
}

type ctxConsumer struct {
	recorder.NopConsumer
	err error
}

func (c *ctxConsumer) EndRun(ctx context.Context, _ *record.Record) error {
	time.Sleep(10 * time.Millisecond)
	c.err = ctx.Err()
	return nil
}
