// Package query evaluates jq expressions against record trees and flattens
// test cases for listing.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"github.com/caevv/testrecorder/internal/record"
)

// Query is a compiled jq expression.
type Query struct {
	expr string
	code *gojq.Code
}

// Compile parses and compiles a jq expression.
func Compile(expr string) (*Query, error) {
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query %q: %w", expr, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query %q: %w", expr, err)
	}
	return &Query{expr: expr, code: code}, nil
}

// String returns the source expression.
func (q *Query) String() string { return q.expr }

// Run evaluates the query against the JSON form of rec and returns every
// result.
func (q *Query) Run(ctx context.Context, rec *record.Record) ([]any, error) {
	input, err := toJSONValue(rec)
	if err != nil {
		return nil, err
	}

	results := []any{}
	iter := q.code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("error evaluating query %q: %w", q.expr, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// Run compiles expr and evaluates it against rec.
func Run(ctx context.Context, expr string, rec *record.Record) ([]any, error) {
	q, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return q.Run(ctx, rec)
}

// toJSONValue converts rec into the generic value tree gojq operates on.
func toJSONValue(rec *record.Record) (any, error) {
	data, err := record.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}
	return v, nil
}

// TestCase is a flattened test case leaf with its ancestry.
type TestCase struct {
	ID           string        `json:"id"`
	Class        string        `json:"class"`
	Method       string        `json:"method"`
	Status       record.Status `json:"status"`
	Module       string        `json:"module,omitempty"`
	Run          string        `json:"run"`
	Duration     time.Duration `json:"duration_ns"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// TestCases returns every test case of root in close order. A test's run
// is its parent; when the run sits below a module, that module is recorded
// too.
func TestCases(root *record.Record) []TestCase {
	var out []TestCase
	var visit func(rec *record.Record, path []*record.Record)
	visit = func(rec *record.Record, path []*record.Record) {
		if rec.IsTestCase() {
			out = append(out, newTestCase(rec, path))
			return
		}
		path = append(path, rec)
		for _, child := range rec.Children {
			if child.Inline != nil {
				visit(child.Inline, path)
			}
		}
	}
	if root != nil {
		visit(root, nil)
	}
	return out
}

func newTestCase(rec *record.Record, path []*record.Record) TestCase {
	tc := TestCase{
		ID:       rec.ID,
		Status:   rec.Status,
		Run:      rec.ParentID,
		Duration: rec.Duration(),
	}
	tc.Class, tc.Method, _ = strings.Cut(rec.ID, "#")
	// path is root[, module], run
	if len(path) >= 3 {
		tc.Module = path[len(path)-2].ID
	}
	if rec.DebugInfo != nil {
		tc.ErrorMessage = rec.DebugInfo.ErrorMessage
	}
	return tc
}

// FilterStatus keeps the test cases with one of the given statuses. No
// statuses keeps everything.
func FilterStatus(cases []TestCase, statuses ...record.Status) []TestCase {
	if len(statuses) == 0 {
		return cases
	}
	out := make([]TestCase, 0, len(cases))
	for _, tc := range cases {
		for _, s := range statuses {
			if tc.Status == s {
				out = append(out, tc)
				break
			}
		}
	}
	return out
}
