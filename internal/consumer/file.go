package consumer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/recorder"
)

// FileConsumer writes the final invocation record to <dir>/<id>.json and,
// when modules is set, every finished module to <dir>/<invocation-id>/<module>.json.
type FileConsumer struct {
	recorder.NopConsumer
	dir     string
	modules bool
}

func NewFileConsumer(dir string, modules bool) *FileConsumer {
	return &FileConsumer{dir: dir, modules: modules}
}

func (c *FileConsumer) Name() string { return "file" }

func (c *FileConsumer) EndInvocation(_ context.Context, rec *record.Record) error {
	return writeRecord(c.InvocationPath(rec.ID), rec)
}

func (c *FileConsumer) EndModule(_ context.Context, rec *record.Record) error {
	if !c.modules {
		return nil
	}
	return writeRecord(filepath.Join(c.dir, fileName(rec.ParentID), fileName(rec.ID)+".json"), rec)
}

// InvocationPath returns where the record of an invocation is written.
func (c *FileConsumer) InvocationPath(id string) string {
	return filepath.Join(c.dir, fileName(id)+".json")
}

// fileName makes an id safe to use as a single path element.
func fileName(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	name := r.Replace(id)
	if name == "" {
		return "_"
	}
	return name
}

// writeRecord writes rec as indented JSON via a temp file and rename.
func writeRecord(path string, rec *record.Record) error {
	data, err := record.MarshalIndent(rec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
