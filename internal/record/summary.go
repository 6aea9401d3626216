package record

import "errors"

// SkipChildren can be returned by a WalkFunc to skip the subtree of the
// current record.
var SkipChildren = errors.New("skip children")

// WalkFunc is called for every record visited by Walk. Depth is 0 for the root.
type WalkFunc func(rec *Record, depth int) error

// Walk visits the tree rooted at root in pre-order, children in close order.
func Walk(root *Record, fn WalkFunc) error {
	if root == nil {
		return nil
	}
	return walk(root, 0, fn)
}

func walk(r *Record, depth int, fn WalkFunc) error {
	if err := fn(r, depth); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	for _, child := range r.Children {
		if child.Inline == nil {
			continue
		}
		if err := walk(child.Inline, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Summary aggregates test case outcomes in a tree.
type Summary struct {
	Tests              int `json:"tests"`
	Passed             int `json:"passed"`
	Failed             int `json:"failed"`
	Ignored            int `json:"ignored"`
	AssumptionFailures int `json:"assumption_failures"`
	// Errors counts non test-case records carrying debug info, i.e. run
	// failures.
	Errors int `json:"errors"`
}

// Summarize counts the test cases of the tree rooted at root by status.
func Summarize(root *Record) Summary {
	var s Summary
	_ = Walk(root, func(rec *Record, _ int) error {
		if !rec.IsTestCase() {
			if rec.DebugInfo != nil {
				s.Errors++
			}
			return nil
		}
		s.Tests++
		switch rec.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusIgnored:
			s.Ignored++
		case StatusAssumptionFailure:
			s.AssumptionFailures++
		}
		return nil
	})
	return s
}

// Success reports whether no test failed and no run reported an error.
func (s Summary) Success() bool {
	return s.Failed == 0 && s.Errors == 0
}

// TestCases returns every test case leaf in close order.
func TestCases(root *Record) []*Record {
	var out []*Record
	_ = Walk(root, func(rec *Record, _ int) error {
		if rec.IsTestCase() {
			out = append(out, rec)
			return SkipChildren
		}
		return nil
	})
	return out
}
