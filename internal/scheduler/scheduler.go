// Package scheduler prunes old invocations from the store on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruneable is the part of the store the pruner needs.
type Pruneable interface {
	DeleteBefore(cutoff time.Time) (int, error)
}

// Pruner deletes finished invocations older than a maximum age each time
// its schedule fires.
type Pruner struct {
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	store    Pruneable
	schedule string
	maxAge   time.Duration
	now      func() time.Time
	wg       sync.WaitGroup

	mu          sync.Mutex
	entryID     cron.EntryID
	lastRun     time.Time
	lastDeleted int
	runCount    int64
}

// Stats reports pruning activity.
type Stats struct {
	Schedule    string    `json:"schedule"`
	MaxAge      string    `json:"max_age"`
	LastRun     time.Time `json:"last_run"`
	NextRun     time.Time `json:"next_run"`
	RunCount    int64     `json:"run_count"`
	LastDeleted int       `json:"last_deleted"`
}

// NewPruner validates the schedule and registers the prune job. Nothing
// runs until Start.
func NewPruner(ctx context.Context, st Pruneable, schedule string, maxAge time.Duration, logger *slog.Logger) (*Pruner, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse retention schedule: %w", err)
	}

	pruneCtx, cancel := context.WithCancel(ctx)
	cronLogger := &cronSlogAdapter{logger: logger}

	p := &Pruner{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		ctx:      pruneCtx,
		cancel:   cancel,
		logger:   logger,
		store:    st,
		schedule: schedule,
		maxAge:   maxAge,
		now:      time.Now,
	}
	p.entryID = p.cron.Schedule(sched, cron.FuncJob(p.run))

	return p, nil
}

func (p *Pruner) run() {
	p.wg.Add(1)
	defer p.wg.Done()

	if p.ctx.Err() != nil {
		return
	}
	if _, err := p.PruneNow(); err != nil {
		p.logger.Error("retention prune failed", slog.String("error", err.Error()))
	}
}

// PruneNow deletes every finished invocation that started before now minus
// the maximum age and returns how many were removed.
func (p *Pruner) PruneNow() (int, error) {
	cutoff := p.now().Add(-p.maxAge)

	start := time.Now()
	deleted, err := p.store.DeleteBefore(cutoff)

	p.mu.Lock()
	p.lastRun = start
	p.runCount++
	if err == nil {
		p.lastDeleted = deleted
	}
	p.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("delete invocations before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	p.logger.Info("pruned invocations",
		slog.Int("deleted", deleted),
		slog.Time("cutoff", cutoff),
		slog.Duration("duration", time.Since(start)))

	return deleted, nil
}

// Start begins running the schedule.
func (p *Pruner) Start() {
	p.logger.Info("starting retention pruner",
		slog.String("schedule", p.schedule),
		slog.Duration("max_age", p.maxAge))
	p.cron.Start()
}

// Stop stops the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.logger.Info("stopping retention pruner")
	p.cancel()
	<-p.cron.Stop().Done()
	p.wg.Wait()
}

// Stats returns the pruning statistics.
func (p *Pruner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Schedule:    p.schedule,
		MaxAge:      p.maxAge.String(),
		LastRun:     p.lastRun,
		NextRun:     p.cron.Entry(p.entryID).Next,
		RunCount:    p.runCount,
		LastDeleted: p.lastDeleted,
	}
}

// cronSlogAdapter adapts slog.Logger to cron.Logger interface.
type cronSlogAdapter struct {
	logger *slog.Logger
}

func (a *cronSlogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *cronSlogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]any, 0, len(keysAndValues)+1)
	attrs = append(attrs, slog.String("error", err.Error()))
	attrs = append(attrs, keysAndValues...)
	a.logger.Error(msg, attrs...)
}
