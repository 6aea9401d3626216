package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/caevv/testrecorder/internal/record"
)

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS invocations (
	id                  TEXT PRIMARY KEY,
	start_ms            INTEGER NOT NULL,
	end_ms              INTEGER,
	tests               INTEGER NOT NULL DEFAULT 0,
	passed              INTEGER NOT NULL DEFAULT 0,
	failed              INTEGER NOT NULL DEFAULT 0,
	ignored             INTEGER NOT NULL DEFAULT 0,
	assumption_failures INTEGER NOT NULL DEFAULT 0,
	data                BLOB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_invocations_start ON invocations (start_ms DESC)`,
}

// invocationRow is the SQLite row of an invocation. The summary columns let
// external tools query the archive without decoding the tree.
type invocationRow struct {
	ID                 string        `db:"id"`
	StartMs            int64         `db:"start_ms"`
	EndMs              sql.NullInt64 `db:"end_ms"`
	Tests              int           `db:"tests"`
	Passed             int           `db:"passed"`
	Failed             int           `db:"failed"`
	Ignored            int           `db:"ignored"`
	AssumptionFailures int           `db:"assumption_failures"`
	Data               []byte        `db:"data"`
}

// SQLiteStore implements the Store interface on a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite at %s: %w", path, err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// SaveInvocation inserts or replaces an invocation record.
func (s *SQLiteStore) SaveInvocation(inv *record.Record) error {
	if err := validate(inv); err != nil {
		return err
	}

	data, err := record.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invocation: %w", err)
	}

	summary := record.Summarize(inv)
	row := invocationRow{
		ID:                 inv.ID,
		StartMs:            inv.StartTime.Millis(),
		Tests:              summary.Tests,
		Passed:             summary.Passed,
		Failed:             summary.Failed,
		Ignored:            summary.Ignored,
		AssumptionFailures: summary.AssumptionFailures,
		Data:               data,
	}
	if inv.EndTime != nil {
		row.EndMs = sql.NullInt64{Int64: inv.EndTime.Millis(), Valid: true}
	}

	_, err = s.db.NamedExec(`
		INSERT INTO invocations (id, start_ms, end_ms, tests, passed, failed, ignored, assumption_failures, data)
		VALUES (:id, :start_ms, :end_ms, :tests, :passed, :failed, :ignored, :assumption_failures, :data)
		ON CONFLICT (id) DO UPDATE SET
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			tests = excluded.tests,
			passed = excluded.passed,
			failed = excluded.failed,
			ignored = excluded.ignored,
			assumption_failures = excluded.assumption_failures,
			data = excluded.data`, row)
	if err != nil {
		return fmt.Errorf("upsert invocation %s: %w", inv.ID, err)
	}
	return nil
}

// GetInvocation retrieves an invocation by its record ID.
func (s *SQLiteStore) GetInvocation(id string) (*record.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("test_record_id is required")
	}

	var data []byte
	if err := s.db.Get(&data, `SELECT data FROM invocations WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("select invocation %s: %w", id, err)
	}

	inv, err := record.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal invocation %s: %w", id, err)
	}
	return inv, nil
}

// ListInvocations retrieves the most recent invocations.
func (s *SQLiteStore) ListInvocations(limit int) ([]*record.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows [][]byte
	if err := s.db.Select(&rows, `SELECT data FROM invocations ORDER BY start_ms DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("select invocations: %w", err)
	}

	invs := make([]*record.Record, 0, len(rows))
	for _, data := range rows {
		inv, err := record.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal invocation: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, nil
}

// DeleteInvocation removes a single invocation.
func (s *SQLiteStore) DeleteInvocation(id string) error {
	res, err := s.db.Exec(`DELETE FROM invocations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete invocation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete invocation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteBefore removes finished invocations that started before cutoff.
func (s *SQLiteStore) DeleteBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM invocations WHERE end_ms IS NOT NULL AND start_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired invocations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired invocations: %w", err)
	}
	return int(n), nil
}

// Close releases resources held by the store.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
