package store

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/caevv/testrecorder/internal/record"
)

const (
	// invocationsBucket holds serialized invocation trees keyed by record id.
	invocationsBucket = "invocations"
	// startIndexBucket orders invocations by start time. Keys are the
	// sortable start time followed by the record id; values are record ids.
	startIndexBucket = "invocation_start"
)

// BoltStore implements the Store interface using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store at the given path.
func NewBoltStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb at %s: %w", path, err)
	}

	// Initialize buckets
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(invocationsBucket)); err != nil {
			return fmt.Errorf("create invocations bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(startIndexBucket)); err != nil {
			return fmt.Errorf("create invocation_start bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// startKey encodes the start time so that byte order matches time order,
// negative times included.
func startKey(ts record.Timestamp, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(ts.Millis())^(1<<63))
	return append(key, id...)
}

// SaveInvocation inserts or replaces an invocation record.
func (s *BoltStore) SaveInvocation(inv *record.Record) error {
	if err := validate(inv); err != nil {
		return err
	}

	data, err := record.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshal invocation: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		invocations := tx.Bucket([]byte(invocationsBucket))
		index := tx.Bucket([]byte(startIndexBucket))

		// Drop the index entry of a previous version with another start time
		if prev := invocations.Get([]byte(inv.ID)); prev != nil {
			old, err := record.Unmarshal(prev)
			if err != nil {
				return fmt.Errorf("unmarshal previous invocation %s: %w", inv.ID, err)
			}
			if err := index.Delete(startKey(old.StartTime, old.ID)); err != nil {
				return fmt.Errorf("delete stale index entry: %w", err)
			}
		}

		if err := invocations.Put([]byte(inv.ID), data); err != nil {
			return fmt.Errorf("put invocation: %w", err)
		}
		if err := index.Put(startKey(inv.StartTime, inv.ID), []byte(inv.ID)); err != nil {
			return fmt.Errorf("put invocation index: %w", err)
		}
		return nil
	})
}

// GetInvocation retrieves an invocation by its record ID.
func (s *BoltStore) GetInvocation(id string) (*record.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("test_record_id is required")
	}

	var inv *record.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(invocationsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		var err error
		inv, err = record.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("unmarshal invocation %s: %w", id, err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return inv, nil
}

// ListInvocations walks the start index backwards, newest first.
func (s *BoltStore) ListInvocations(limit int) ([]*record.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var invs []*record.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		invocations := tx.Bucket([]byte(invocationsBucket))
		c := tx.Bucket([]byte(startIndexBucket)).Cursor()

		for k, id := c.Last(); k != nil && len(invs) < limit; k, id = c.Prev() {
			data := invocations.Get(id)
			if data == nil {
				continue
			}
			inv, err := record.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("unmarshal invocation %s: %w", string(id), err)
			}
			invs = append(invs, inv)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return invs, nil
}

// DeleteInvocation removes a single invocation.
func (s *BoltStore) DeleteInvocation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		invocations := tx.Bucket([]byte(invocationsBucket))
		data := invocations.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		inv, err := record.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("unmarshal invocation %s: %w", id, err)
		}
		if err := tx.Bucket([]byte(startIndexBucket)).Delete(startKey(inv.StartTime, inv.ID)); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
		return invocations.Delete([]byte(id))
	})
}

// DeleteBefore removes finished invocations that started before cutoff.
func (s *BoltStore) DeleteBefore(cutoff time.Time) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		invocations := tx.Bucket([]byte(invocationsBucket))
		index := tx.Bucket([]byte(startIndexBucket))
		bound := startKey(record.FromTime(cutoff), "")

		// Collect first: deleting while iterating a cursor skips keys
		var keys [][]byte
		c := index.Cursor()
		for k, id := c.First(); k != nil && string(k) < string(bound); k, id = c.Next() {
			data := invocations.Get(id)
			if data == nil {
				keys = append(keys, append([]byte(nil), k...))
				continue
			}
			inv, err := record.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("unmarshal invocation %s: %w", string(id), err)
			}
			if !expired(inv, cutoff) {
				continue
			}
			keys = append(keys, append([]byte(nil), k...))
			if err := invocations.Delete(id); err != nil {
				return fmt.Errorf("delete invocation %s: %w", string(id), err)
			}
			deleted++
		}

		for _, k := range keys {
			if err := index.Delete(k); err != nil {
				return fmt.Errorf("delete index entry: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Close releases resources held by the store.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
