// Package store persists finished and in-progress invocation records.
package store

import (
	"errors"
	"sort"
	"time"

	"github.com/caevv/testrecorder/internal/record"
)

// ErrNotFound is returned when an invocation does not exist.
var ErrNotFound = errors.New("invocation not found")

// DefaultListLimit is used when a non-positive limit is passed to
// ListInvocations.
const DefaultListLimit = 100

// Store defines the interface for persisting and retrieving invocation
// records. Records are whole trees keyed by the root's test_record_id.
type Store interface {
	// SaveInvocation inserts or replaces an invocation record.
	SaveInvocation(inv *record.Record) error

	// GetInvocation retrieves an invocation by its record ID.
	GetInvocation(id string) (*record.Record, error)

	// ListInvocations retrieves the most recent invocations.
	// Returns up to 'limit' records, ordered by start time descending (newest first).
	ListInvocations(limit int) ([]*record.Record, error)

	// DeleteInvocation removes a single invocation.
	DeleteInvocation(id string) error

	// DeleteBefore removes finished invocations that started before cutoff
	// and returns how many were removed.
	DeleteBefore(cutoff time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

func validate(inv *record.Record) error {
	if inv == nil {
		return errors.New("invocation is nil")
	}
	if inv.ID == "" {
		return errors.New("test_record_id is required")
	}
	if inv.ParentID != "" {
		return errors.New("only invocation roots can be stored")
	}
	return nil
}

// newestFirst sorts invocations by start time descending and applies limit.
func newestFirst(invs []*record.Record, limit int) []*record.Record {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sort.SliceStable(invs, func(i, j int) bool {
		return invs[j].StartTime.Before(invs[i].StartTime)
	})
	if len(invs) > limit {
		invs = invs[:limit]
	}
	return invs
}

// expired reports whether inv is finished and started before cutoff.
func expired(inv *record.Record, cutoff time.Time) bool {
	return !inv.IsOpen() && inv.StartTime.Time().Before(cutoff)
}
