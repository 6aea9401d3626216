package recorder

import (
	"fmt"
	"strings"

	"github.com/caevv/testrecorder/internal/record"
)

// Kind is the level of an open record in the hierarchy.
type Kind int

const (
	KindInvocation Kind = iota
	KindModule
	KindRun
	KindTest
)

func (k Kind) String() string {
	switch k {
	case KindInvocation:
		return "invocation"
	case KindModule:
		return "module"
	case KindRun:
		return "run"
	case KindTest:
		return "test"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) letter() byte {
	return "IMRT"[k]
}

// canNest reports whether a record of kind child may be opened on top of
// parent. The invocation may only be opened on an empty stack.
func canNest(parent Kind, child Kind) bool {
	switch child {
	case KindModule:
		return parent == KindInvocation
	case KindRun:
		return parent == KindInvocation || parent == KindModule
	case KindTest:
		return parent == KindRun
	default:
		return false
	}
}

type frame struct {
	kind Kind
	rec  *record.Record
}

// ClosedRecord is a record popped from the builder.
type ClosedRecord struct {
	Kind   Kind
	Record *record.Record
}

// Builder owns the tree under construction. The bottom frame is the
// invocation root; the top frame is the deepest open record. A closed record
// is moved into its parent's children and never touched again.
type Builder struct {
	stack []frame
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Depth returns the number of open records.
func (b *Builder) Depth() int {
	return len(b.stack)
}

// State renders the open kinds bottom to top, e.g. "IMRT".
func (b *Builder) State() string {
	var sb strings.Builder
	for _, f := range b.stack {
		sb.WriteByte(f.kind.letter())
	}
	return sb.String()
}

// Root returns the invocation record, or nil when nothing is open.
func (b *Builder) Root() *record.Record {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[0].rec
}

// Peek returns the deepest open record.
func (b *Builder) Peek() (Kind, *record.Record, bool) {
	if len(b.stack) == 0 {
		return 0, nil, false
	}
	top := b.stack[len(b.stack)-1]
	return top.kind, top.rec, true
}

// PeekParent returns the record just below the top.
func (b *Builder) PeekParent() (Kind, *record.Record, bool) {
	if len(b.stack) < 2 {
		return 0, nil, false
	}
	f := b.stack[len(b.stack)-2]
	return f.kind, f.rec, true
}

// CanOpen reports an error when a record of the given kind cannot be opened
// in the current state.
func (b *Builder) CanOpen(kind Kind) error {
	top, _, ok := b.Peek()
	switch {
	case kind == KindInvocation && ok:
		return fmt.Errorf("invocation already open")
	case kind == KindInvocation:
		return nil
	case !ok:
		return fmt.Errorf("no invocation open")
	case !canNest(top, kind):
		return fmt.Errorf("cannot open %s under %s", kind, top)
	}
	return nil
}

// Open pushes a new record of the given kind. Its parent id is the id of the
// current top, or empty for the invocation.
func (b *Builder) Open(kind Kind, id string, start record.Timestamp, desc *record.Description, expected int) (*record.Record, error) {
	if err := b.CanOpen(kind); err != nil {
		return nil, err
	}

	var parentID string
	if _, parent, ok := b.Peek(); ok {
		parentID = parent.ID
	}

	rec := record.New(id, parentID, start)
	rec.Description = desc
	rec.NumExpectedChildren = expected
	b.push(kind, rec)
	return rec, nil
}

// Close stamps the top record with end and metrics, pops it and appends it
// to its parent. The top must be of the given kind. An end earlier than the
// start is clamped to the start; clamped reports whether that happened.
func (b *Builder) Close(kind Kind, end record.Timestamp, metrics map[string]record.Metric) (rec *record.Record, clamped bool, err error) {
	top, rec, ok := b.Peek()
	if !ok {
		return nil, false, fmt.Errorf("nothing open")
	}
	if top != kind {
		return nil, false, fmt.Errorf("top of stack is %s, not %s", top, kind)
	}

	if end.Before(rec.StartTime) {
		end = rec.StartTime
		clamped = true
	}
	rec.EndTime = &end
	for k, m := range metrics {
		rec.Metrics[k] = m
	}

	b.pop()
	if _, parent, ok := b.Peek(); ok {
		parent.Children = append(parent.Children, record.ChildReference{ID: rec.ID, Inline: rec})
	}
	return rec, clamped, nil
}

// MarkStatus sets the status of the top record. A failure is never
// overwritten by a non-failure; applied is false in that case.
func (b *Builder) MarkStatus(status record.Status) (applied bool) {
	_, rec, ok := b.Peek()
	if !ok {
		return false
	}
	if rec.Status.IsFailure() && !status.IsFailure() {
		return false
	}
	rec.Status = status
	return true
}

// AttachDebug sets the debug info of the top record.
func (b *Builder) AttachDebug(message, trace string) error {
	_, rec, ok := b.Peek()
	if !ok {
		return fmt.Errorf("nothing open")
	}
	rec.DebugInfo = &record.DebugInfo{ErrorMessage: message, Trace: trace}
	return nil
}

// AttachArtifact records a log file on the top record. A repeated name
// replaces the earlier entry.
func (b *Builder) AttachArtifact(name string, info record.LogFileInfo) error {
	_, rec, ok := b.Peek()
	if !ok {
		return fmt.Errorf("nothing open")
	}
	rec.Artifacts[name] = info
	return nil
}

// PutMetrics merges metrics into the top record.
func (b *Builder) PutMetrics(metrics map[string]record.Metric) error {
	_, rec, ok := b.Peek()
	if !ok {
		return fmt.Errorf("nothing open")
	}
	for k, m := range metrics {
		rec.Metrics[k] = m
	}
	return nil
}

// Snapshot returns a deep copy of rec.
func (b *Builder) Snapshot(rec *record.Record) *record.Record {
	return rec.Clone()
}

// FlushOpen closes every record above the root at end, deepest first.
func (b *Builder) FlushOpen(end record.Timestamp) []ClosedRecord {
	var closed []ClosedRecord
	for len(b.stack) > 1 {
		kind, _, _ := b.Peek()
		rec, _, err := b.Close(kind, end, nil)
		if err != nil {
			break
		}
		closed = append(closed, ClosedRecord{Kind: kind, Record: rec})
	}
	return closed
}

func (b *Builder) push(kind Kind, rec *record.Record) {
	b.stack = append(b.stack, frame{kind: kind, rec: rec})
}

func (b *Builder) pop() frame {
	f := b.stack[len(b.stack)-1]
	b.stack[len(b.stack)-1] = frame{}
	b.stack = b.stack[:len(b.stack)-1]
	return f
}
