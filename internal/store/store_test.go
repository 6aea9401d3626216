package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/caevv/testrecorder/internal/record"
)

// newInvocation builds a finished invocation with one run and the given
// test statuses.
func newInvocation(id string, start time.Time, statuses ...record.Status) *record.Record {
	inv := record.New(id, "", record.FromTime(start))
	run := record.New("run", id, record.FromTime(start))
	for i, status := range statuses {
		test := record.New(fmt.Sprintf("com.example.Test#t%d", i), run.ID, record.FromTime(start))
		test.Status = status
		end := record.FromTime(start.Add(time.Second))
		test.EndTime = &end
		run.Children = append(run.Children, record.ChildReference{ID: test.ID, Inline: test})
	}
	runEnd := record.FromTime(start.Add(2 * time.Second))
	run.EndTime = &runEnd
	inv.Children = append(inv.Children, record.ChildReference{ID: run.ID, Inline: run})
	end := record.FromTime(start.Add(3 * time.Second))
	inv.EndTime = &end
	return inv
}

// forEachDriver runs fn against a fresh store of every supported driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			s, err := NewStore(driver, filepath.Join(t.TempDir(), "store."+driver))
			if err != nil {
				t.Fatalf("NewStore(%s) error = %v", driver, err)
			}
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestStore_SaveAndGetInvocation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		inv := newInvocation("inv-1", time.UnixMilli(1_700_000_000_123), record.StatusPass, record.StatusFail)
		inv.Children[0].Inline.Children[1].Inline.DebugInfo = &record.DebugInfo{ErrorMessage: "boom", Trace: "boom"}

		if err := s.SaveInvocation(inv); err != nil {
			t.Fatalf("SaveInvocation() error = %v", err)
		}

		got, err := s.GetInvocation("inv-1")
		if err != nil {
			t.Fatalf("GetInvocation() error = %v", err)
		}
		if got.ID != inv.ID {
			t.Errorf("ID = %v, want %v", got.ID, inv.ID)
		}
		if got.StartTime != inv.StartTime {
			t.Errorf("StartTime = %v, want %v", got.StartTime, inv.StartTime)
		}
		if summary := record.Summarize(got); summary.Tests != 2 || summary.Failed != 1 {
			t.Errorf("Summarize() = %+v, want 2 tests and 1 failure", summary)
		}
		failed := got.Find("com.example.Test#t1")
		if failed == nil || failed.DebugInfo == nil || failed.DebugInfo.Trace != "boom" {
			t.Errorf("failed test debug info not preserved: %+v", failed)
		}
	})
}

func TestStore_GetInvocation_NotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		_, err := s.GetInvocation("missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetInvocation() error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetInvocation(""); err == nil {
			t.Error("GetInvocation(\"\") expected error")
		}
	})
}

func TestStore_SaveInvocation_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		inv  *record.Record
	}{
		{name: "nil", inv: nil},
		{name: "missing id", inv: record.New("", "", record.FromMillis(0))},
		{name: "not a root", inv: record.New("run", "inv", record.FromMillis(0))},
	}

	forEachDriver(t, func(t *testing.T, s Store) {
		for _, tt := range tests {
			if err := s.SaveInvocation(tt.inv); err == nil {
				t.Errorf("SaveInvocation(%s) expected error", tt.name)
			}
		}
	})
}

func TestStore_UpdateInvocation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		start := time.UnixMilli(1_700_000_000_000)

		// saved in progress first, as the store consumer does
		partial := record.New("inv-1", "", record.FromTime(start))
		if err := s.SaveInvocation(partial); err != nil {
			t.Fatalf("SaveInvocation(partial) error = %v", err)
		}

		final := newInvocation("inv-1", start, record.StatusPass)
		if err := s.SaveInvocation(final); err != nil {
			t.Fatalf("SaveInvocation(final) error = %v", err)
		}

		invs, err := s.ListInvocations(10)
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(invs) != 1 {
			t.Fatalf("ListInvocations() returned %d invocations, want 1", len(invs))
		}
		if invs[0].IsOpen() {
			t.Error("updated invocation is still open")
		}
		if len(invs[0].Children) != 1 {
			t.Errorf("Children = %d, want 1", len(invs[0].Children))
		}
	})
}

func TestStore_ListInvocations(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		base := time.UnixMilli(1_700_000_000_000)
		for i := range 5 {
			inv := newInvocation(fmt.Sprintf("inv-%d", i), base.Add(time.Duration(i)*time.Minute), record.StatusPass)
			if err := s.SaveInvocation(inv); err != nil {
				t.Fatalf("SaveInvocation() error = %v", err)
			}
		}

		invs, err := s.ListInvocations(3)
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(invs) != 3 {
			t.Fatalf("ListInvocations(3) returned %d invocations", len(invs))
		}
		for i, want := range []string{"inv-4", "inv-3", "inv-2"} {
			if invs[i].ID != want {
				t.Errorf("invs[%d].ID = %v, want %v", i, invs[i].ID, want)
			}
		}

		all, err := s.ListInvocations(0)
		if err != nil {
			t.Fatalf("ListInvocations(0) error = %v", err)
		}
		if len(all) != 5 {
			t.Errorf("ListInvocations(0) returned %d invocations, want 5", len(all))
		}
	})
}

func TestStore_DeleteInvocation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		if err := s.SaveInvocation(newInvocation("inv-1", time.Now())); err != nil {
			t.Fatalf("SaveInvocation() error = %v", err)
		}
		if err := s.DeleteInvocation("inv-1"); err != nil {
			t.Fatalf("DeleteInvocation() error = %v", err)
		}
		if _, err := s.GetInvocation("inv-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetInvocation() after delete error = %v, want ErrNotFound", err)
		}
		if err := s.DeleteInvocation("inv-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteInvocation() error = %v, want ErrNotFound", err)
		}
		invs, err := s.ListInvocations(10)
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(invs) != 0 {
			t.Errorf("ListInvocations() returned %d invocations after delete", len(invs))
		}
	})
}

func TestStore_DeleteBefore(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		now := time.UnixMilli(1_700_000_000_000)

		old := newInvocation("old", now.Add(-48*time.Hour))
		recent := newInvocation("recent", now.Add(-time.Hour))
		running := record.New("running", "", record.FromTime(now.Add(-72*time.Hour)))
		for _, inv := range []*record.Record{old, recent, running} {
			if err := s.SaveInvocation(inv); err != nil {
				t.Fatalf("SaveInvocation(%s) error = %v", inv.ID, err)
			}
		}

		deleted, err := s.DeleteBefore(now.Add(-24 * time.Hour))
		if err != nil {
			t.Fatalf("DeleteBefore() error = %v", err)
		}
		if deleted != 1 {
			t.Errorf("DeleteBefore() deleted %d, want 1", deleted)
		}

		if _, err := s.GetInvocation("old"); !errors.Is(err, ErrNotFound) {
			t.Errorf("old invocation still present: %v", err)
		}
		for _, id := range []string{"recent", "running"} {
			if _, err := s.GetInvocation(id); err != nil {
				t.Errorf("GetInvocation(%s) error = %v", id, err)
			}
		}

		invs, err := s.ListInvocations(10)
		if err != nil {
			t.Fatalf("ListInvocations() error = %v", err)
		}
		if len(invs) != 2 {
			t.Errorf("ListInvocations() returned %d invocations, want 2", len(invs))
		}
	})
}

func TestStore_Reopen(t *testing.T) {
	for _, driver := range SupportedDrivers {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store."+driver)

			s, err := NewStore(driver, path)
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}
			if err := s.SaveInvocation(newInvocation("inv-1", time.Now(), record.StatusPass)); err != nil {
				t.Fatalf("SaveInvocation() error = %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			reopened, err := NewStore(driver, path)
			if err != nil {
				t.Fatalf("NewStore() reopen error = %v", err)
			}
			defer reopened.Close()

			got, err := reopened.GetInvocation("inv-1")
			if err != nil {
				t.Fatalf("GetInvocation() after reopen error = %v", err)
			}
			if err := record.Check(got); err != nil {
				t.Errorf("reloaded invocation is malformed: %v", err)
			}
		})
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := range 10 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				errs <- s.SaveInvocation(newInvocation(fmt.Sprintf("inv-%d", i), time.Now()))
			}()
			go func() {
				defer wg.Done()
				_, err := s.ListInvocations(5)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("concurrent operation error = %v", err)
			}
		}
	})
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	if _, err := NewStore("postgres", "/tmp/x"); err == nil {
		t.Error("NewStore(postgres) expected error")
	}
	if _, err := NewStore("bbolt", ""); err == nil {
		t.Error("NewStore() with empty path expected error")
	}
}
