package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Marshal encodes a record tree as compact JSON.
func Marshal(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("record is nil")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	return data, nil
}

// MarshalIndent encodes a record tree as indented JSON.
func MarshalIndent(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("record is nil")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a record tree from JSON.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// ReadFile loads and decodes a record file.
func ReadFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}
	return Unmarshal(data)
}

// Check verifies the structural invariants of a record tree: every child
// points back at its parent, timestamps are well formed and no record ends
// before it starts.
func Check(root *Record) error {
	if root == nil {
		return errors.New("record is nil")
	}
	return check(root)
}

func check(r *Record) error {
	if err := r.StartTime.Valid(); err != nil {
		return fmt.Errorf("record %s: start_time: %w", r.ID, err)
	}
	if r.EndTime != nil {
		if err := r.EndTime.Valid(); err != nil {
			return fmt.Errorf("record %s: end_time: %w", r.ID, err)
		}
		if r.EndTime.Before(r.StartTime) {
			return fmt.Errorf("record %s: end_time before start_time", r.ID)
		}
	}
	for _, child := range r.Children {
		if child.Inline == nil {
			return fmt.Errorf("record %s: child %s has no inline record", r.ID, child.ID)
		}
		if child.ID != child.Inline.ID {
			return fmt.Errorf("record %s: child reference %s does not match inline id %s", r.ID, child.ID, child.Inline.ID)
		}
		if child.Inline.ParentID != r.ID {
			return fmt.Errorf("record %s: child %s has parent %q", r.ID, child.ID, child.Inline.ParentID)
		}
		if child.Inline.IsOpen() {
			return fmt.Errorf("record %s: child %s is not closed", r.ID, child.ID)
		}
		if err := check(child.Inline); err != nil {
			return err
		}
	}
	return nil
}
