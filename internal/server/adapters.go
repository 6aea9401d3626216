package server

import (
	"context"
	"time"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/store"
)

// StoreAdapter adapts store.Store to server.Store interface
type StoreAdapter struct {
	store store.Store
}

// NewStoreAdapter creates a new store adapter
func NewStoreAdapter(s store.Store) *StoreAdapter {
	return &StoreAdapter{store: s}
}

func (a *StoreAdapter) ListInvocations(ctx context.Context, limit int) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.store.ListInvocations(limit)
}

func (a *StoreAdapter) GetInvocation(ctx context.Context, id string) (*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.store.GetInvocation(id)
}

func (a *StoreAdapter) DeleteInvocation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.store.DeleteInvocation(id)
}

// Summarize condenses an invocation into its API summary.
func Summarize(inv *record.Record) InvocationSummary {
	s := InvocationSummary{
		ID:        inv.ID,
		StartTime: inv.StartTime.Time(),
		Summary:   record.Summarize(inv),
	}

	for _, child := range inv.Children {
		if child.Inline != nil && child.Inline.Description != nil {
			s.Modules++
		}
	}

	switch {
	case inv.IsOpen():
		s.Status = StatusRunning
	case s.Summary.Success():
		s.Status = StatusPassed
	default:
		s.Status = StatusFailed
	}

	if inv.EndTime != nil {
		end := inv.EndTime.Time()
		s.EndTime = &end
		s.DurationMs = inv.Duration().Milliseconds()
	} else {
		s.DurationMs = time.Since(s.StartTime).Milliseconds()
	}

	return s
}

// computeStats aggregates invocation summaries.
func computeStats(invs []InvocationSummary) *StatsResponse {
	stats := &StatsResponse{Invocations: len(invs)}
	for _, inv := range invs {
		switch inv.Status {
		case StatusRunning:
			stats.Running++
		case StatusPassed:
			stats.Passed++
		case StatusFailed:
			stats.Failed++
		}
		stats.Tests += inv.Summary.Tests
		stats.TestsPassed += inv.Summary.Passed
		stats.TestsFailed += inv.Summary.Failed
		stats.TestsIgnored += inv.Summary.Ignored
	}
	return stats
}
