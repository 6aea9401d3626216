package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caevv/testrecorder/internal/record"
)

// JSONStore implements the Store interface using a simple JSON file.
// All invocations are kept in memory and persisted to disk on each write.
// This implementation is suitable for small archives and testing.
type JSONStore struct {
	path        string
	invocations map[string]*record.Record // indexed by record id
	mu          sync.RWMutex
}

// jsonPersistence is the on-disk format for the JSON store.
type jsonPersistence struct {
	Invocations []*record.Record `json:"invocations"`
}

// NewJSONStore creates a new JSON file-backed store at the given path.
func NewJSONStore(path string) (Store, error) {
	s := &JSONStore{
		path:        path,
		invocations: make(map[string]*record.Record),
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return s, nil
}

// load reads the JSON file and populates the in-memory map.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var persist jsonPersistence
	if err := json.Unmarshal(data, &persist); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	s.invocations = make(map[string]*record.Record, len(persist.Invocations))
	for _, inv := range persist.Invocations {
		s.invocations[inv.ID] = inv
	}

	return nil
}

// save writes the in-memory map to the JSON file, newest first.
func (s *JSONStore) save() error {
	invs := make([]*record.Record, 0, len(s.invocations))
	for _, inv := range s.invocations {
		invs = append(invs, inv)
	}

	persist := jsonPersistence{Invocations: newestFirst(invs, len(invs))}
	data, err := json.MarshalIndent(persist, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	// Write to temp file first, then rename (atomic on POSIX)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// SaveInvocation inserts or replaces an invocation record.
func (s *JSONStore) SaveInvocation(inv *record.Record) error {
	if err := validate(inv); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.invocations[inv.ID] = inv.Clone()
	return s.save()
}

// GetInvocation retrieves an invocation by its record ID.
func (s *JSONStore) GetInvocation(id string) (*record.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("test_record_id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invocations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return inv.Clone(), nil
}

// ListInvocations retrieves the most recent invocations.
func (s *JSONStore) ListInvocations(limit int) ([]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invs := make([]*record.Record, 0, len(s.invocations))
	for _, inv := range s.invocations {
		invs = append(invs, inv.Clone())
	}

	return newestFirst(invs, limit), nil
}

// DeleteInvocation removes a single invocation.
func (s *JSONStore) DeleteInvocation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invocations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.invocations, id)
	return s.save()
}

// DeleteBefore removes finished invocations that started before cutoff.
func (s *JSONStore) DeleteBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, inv := range s.invocations {
		if expired(inv, cutoff) {
			delete(s.invocations, id)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := s.save(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// Close releases resources held by the store.
// For JSON store, this is a no-op since we don't hold open file handles.
func (s *JSONStore) Close() error {
	return nil
}
