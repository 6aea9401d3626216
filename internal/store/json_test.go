package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caevv/testrecorder/internal/record"
)

func TestJSONStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")

	s, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	if err := s.SaveInvocation(newInvocation("inv-1", time.Now(), record.StatusPass)); err != nil {
		t.Fatalf("SaveInvocation() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var raw map[string][]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}
	invs := raw["invocations"]
	if len(invs) != 1 {
		t.Fatalf("invocations = %d, want 1", len(invs))
	}
	if invs[0]["test_record_id"] != "inv-1" {
		t.Errorf("test_record_id = %v, want inv-1", invs[0]["test_record_id"])
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestNewJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONStore(path); err == nil {
		t.Error("NewJSONStore() expected error for corrupt file")
	}
}

func TestJSONStore_ReturnsCopies(t *testing.T) {
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "runs.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}

	inv := newInvocation("inv-1", time.Now(), record.StatusPass)
	if err := s.SaveInvocation(inv); err != nil {
		t.Fatalf("SaveInvocation() error = %v", err)
	}
	inv.Children = nil

	got, err := s.GetInvocation("inv-1")
	if err != nil {
		t.Fatalf("GetInvocation() error = %v", err)
	}
	got.ID = "changed"

	again, err := s.GetInvocation("inv-1")
	if err != nil {
		t.Fatalf("GetInvocation() error = %v", err)
	}
	if again.ID != "inv-1" || len(again.Children) != 1 {
		t.Errorf("stored invocation was mutated through a returned pointer: %+v", again)
	}
}
