package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/caevv/testrecorder/internal/record"
)

func TestSQLiteStore_SummaryColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	inv := newInvocation("inv-1", time.UnixMilli(1_700_000_000_000),
		record.StatusPass, record.StatusFail, record.StatusIgnored, record.StatusAssumptionFailure)
	if err := s.SaveInvocation(inv); err != nil {
		t.Fatalf("SaveInvocation() error = %v", err)
	}

	db := s.(*SQLiteStore).db
	var row invocationRow
	if err := db.Get(&row, `SELECT * FROM invocations WHERE id = ?`, "inv-1"); err != nil {
		t.Fatalf("select row error = %v", err)
	}

	if row.StartMs != 1_700_000_000_000 {
		t.Errorf("start_ms = %d", row.StartMs)
	}
	if !row.EndMs.Valid || row.EndMs.Int64 != 1_700_000_003_000 {
		t.Errorf("end_ms = %+v", row.EndMs)
	}
	if row.Tests != 4 || row.Passed != 1 || row.Failed != 1 || row.Ignored != 1 || row.AssumptionFailures != 1 {
		t.Errorf("summary columns = %+v", row)
	}
}

func TestSQLiteStore_ExternalQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	for i, status := range []record.Status{record.StatusPass, record.StatusFail} {
		inv := newInvocation(string(rune('a'+i)), time.UnixMilli(int64(i)*1000), status)
		if err := s.SaveInvocation(inv); err != nil {
			t.Fatalf("SaveInvocation() error = %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		t.Fatalf("sqlx.Connect() error = %v", err)
	}
	defer db.Close()

	var failing []string
	if err := db.Select(&failing, `SELECT id FROM invocations WHERE failed > 0`); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if len(failing) != 1 || failing[0] != "b" {
		t.Errorf("failing invocations = %v, want [b]", failing)
	}
}
