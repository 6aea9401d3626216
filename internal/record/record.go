// Package record defines the test record tree produced by the recorder and
// the helpers used to copy, serialize and inspect it.
package record

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// Status is the outcome of a test case record.
type Status int

const (
	StatusUnknown Status = iota
	StatusPass
	StatusFail
	StatusIgnored
	StatusAssumptionFailure
)

var statusNames = [...]string{
	StatusUnknown:           "UNKNOWN",
	StatusPass:              "PASS",
	StatusFail:              "FAIL",
	StatusIgnored:           "IGNORED",
	StatusAssumptionFailure: "ASSUMPTION_FAILURE",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[s]
}

// IsFailure reports whether the status is FAIL or ASSUMPTION_FAILURE.
func (s Status) IsFailure() bool {
	return s == StatusFail || s == StatusAssumptionFailure
}

// ParseStatus converts a wire name into a Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status: %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Timestamp is a wall-clock instant split into seconds and nanoseconds,
// with Nanos always in [0, 1e9).
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// FromMillis builds a Timestamp from milliseconds since the Unix epoch.
func FromMillis(ms int64) Timestamp {
	sec := ms / 1000
	rem := ms % 1000
	if rem < 0 {
		sec--
		rem += 1000
	}
	return Timestamp{Seconds: sec, Nanos: int32(rem * int64(time.Millisecond))}
}

// FromTime builds a Timestamp from a time.Time.
func FromTime(t time.Time) Timestamp {
	ts := timestamppb.New(t)
	return Timestamp{Seconds: ts.GetSeconds(), Nanos: ts.GetNanos()}
}

// Proto returns the protobuf well-known type for t.
func (t Timestamp) Proto() *timestamppb.Timestamp {
	return &timestamppb.Timestamp{Seconds: t.Seconds, Nanos: t.Nanos}
}

// Time converts t to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return t.Proto().AsTime()
}

// Millis returns t as milliseconds since the Unix epoch.
func (t Timestamp) Millis() int64 {
	return t.Seconds*1000 + int64(t.Nanos)/int64(time.Millisecond)
}

// Before reports whether t is strictly earlier than o.
func (t Timestamp) Before(o Timestamp) bool {
	if t.Seconds != o.Seconds {
		return t.Seconds < o.Seconds
	}
	return t.Nanos < o.Nanos
}

// Valid returns an error if t is outside the representable range or its
// nanoseconds are out of bounds.
func (t Timestamp) Valid() error {
	return t.Proto().CheckValid()
}

// DebugInfo carries failure details for a record.
type DebugInfo struct {
	ErrorMessage string `json:"error_message"`
	Trace        string `json:"trace"`
}

// ChildReference embeds a closed child record into its parent.
type ChildReference struct {
	ID     string  `json:"test_record_id"`
	Inline *Record `json:"inline_test_record"`
}

// Record is a node of the result tree: the invocation root, a module, a run
// or a single test case.
type Record struct {
	ID                  string                 `json:"test_record_id"`
	ParentID            string                 `json:"parent_test_record_id"`
	StartTime           Timestamp              `json:"start_time"`
	EndTime             *Timestamp             `json:"end_time,omitempty"`
	Children            []ChildReference       `json:"children"`
	Status              Status                 `json:"status"`
	NumExpectedChildren int                    `json:"num_expected_children"`
	Description         *Description           `json:"description,omitempty"`
	DebugInfo           *DebugInfo             `json:"debug_info,omitempty"`
	Metrics             map[string]Metric      `json:"metrics"`
	Artifacts           map[string]LogFileInfo `json:"artifacts"`
}

// New returns an open record with empty collections.
func New(id, parentID string, start Timestamp) *Record {
	return &Record{
		ID:        id,
		ParentID:  parentID,
		StartTime: start,
		Children:  []ChildReference{},
		Metrics:   map[string]Metric{},
		Artifacts: map[string]LogFileInfo{},
	}
}

// IsOpen returns true if the record has not been closed yet.
func (r *Record) IsOpen() bool {
	return r.EndTime == nil
}

// Duration returns the time between start and end.
// Returns zero if the record is still open.
func (r *Record) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Time().Sub(r.StartTime.Time())
}

// IsTestCase reports whether the record is a test case leaf. Only test
// cases carry a status other than UNKNOWN: the recorder marks every test
// PASS when it opens, and never sets a status on other records.
func (r *Record) IsTestCase() bool {
	return r.Status != StatusUnknown
}

// Child returns the inline child with the given id, or nil.
func (r *Record) Child(id string) *Record {
	for _, c := range r.Children {
		if c.ID == id {
			return c.Inline
		}
	}
	return nil
}

// Find searches the subtree rooted at r for a record with the given id.
func (r *Record) Find(id string) *Record {
	var found *Record
	_ = Walk(r, func(rec *Record, _ int) error {
		if found == nil && rec.ID == id {
			found = rec
		}
		return nil
	})
	return found
}

// Clone returns a deep copy of r. Snapshots handed to consumers are clones so
// they stay independent of later mutations.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.EndTime != nil {
		end := *r.EndTime
		c.EndTime = &end
	}
	if r.Description != nil {
		c.Description = r.Description.Clone()
	}
	if r.DebugInfo != nil {
		info := *r.DebugInfo
		c.DebugInfo = &info
	}
	if r.Children != nil {
		c.Children = make([]ChildReference, len(r.Children))
		for i, child := range r.Children {
			c.Children[i] = ChildReference{ID: child.ID, Inline: child.Inline.Clone()}
		}
	}
	if r.Metrics != nil {
		c.Metrics = make(map[string]Metric, len(r.Metrics))
		for k, m := range r.Metrics {
			c.Metrics[k] = m.Clone()
		}
	}
	if r.Artifacts != nil {
		c.Artifacts = make(map[string]LogFileInfo, len(r.Artifacts))
		for k, a := range r.Artifacts {
			c.Artifacts[k] = a
		}
	}
	return &c
}
