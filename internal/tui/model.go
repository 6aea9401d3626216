package tui

import (
	"log/slog"
	"time"

	"github.com/caevv/testrecorder/internal/record"
	"github.com/caevv/testrecorder/internal/scheduler"
	"github.com/caevv/testrecorder/internal/store"
	tea "github.com/charmbracelet/bubbletea"
)

// listLimit is how many invocations the browser loads.
const listLimit = 50

// ViewMode represents the current view in the TUI.
type ViewMode int

const (
	ViewModeList ViewMode = iota
	ViewModeDetail
)

// Model holds the state for the TUI.
type Model struct {
	// Services
	store  store.Store
	pruner *scheduler.Pruner
	logger *slog.Logger

	// UI state
	viewMode     ViewMode
	invocations  []InvocationState
	selected     int
	detail       *record.Record
	detailRows   []treeRow
	detailScroll int
	failuresOnly bool
	width        int
	height       int
	lastUpdate   time.Time
	quitting     bool
	errorMessage string

	// Stats
	totalInvocations int
	running          int
	passed           int
	failed           int
	totalTests       int
	passedTests      int
}

// InvocationState represents a stored invocation in the list.
type InvocationState struct {
	ID        string
	Status    InvocationStatus
	StartTime time.Time
	Duration  time.Duration
	Modules   int
	Summary   record.Summary
}

// InvocationStatus is the overall outcome of an invocation.
type InvocationStatus int

const (
	InvocationRunning InvocationStatus = iota
	InvocationPassed
	InvocationFailed
)

func (s InvocationStatus) String() string {
	switch s {
	case InvocationRunning:
		return "Running"
	case InvocationPassed:
		return "Passed"
	default:
		return "Failed"
	}
}

// treeRow is one record of the detail tree.
type treeRow struct {
	depth  int
	rec    *record.Record
	failed bool
}

// New creates a new TUI model. pruner may be nil.
func New(st store.Store, pruner *scheduler.Pruner, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		store:       st,
		pruner:      pruner,
		logger:      logger,
		invocations: []InvocationState{},
		lastUpdate:  time.Now(),
	}
}

// Init initializes the model (required by Bubbletea).
func (m Model) Init() tea.Cmd {
	// refresh right away, then on every tick
	return tea.Batch(
		func() tea.Msg { return tickMsg(time.Now()) },
		tea.EnterAltScreen,
	)
}

// tickMsg is sent on a regular interval to refresh the UI.
type tickMsg time.Time

// tickCmd returns a command that sends a tick message every two seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// newInvocationState condenses a stored invocation for the list.
func newInvocationState(inv *record.Record) InvocationState {
	st := InvocationState{
		ID:        inv.ID,
		StartTime: inv.StartTime.Time(),
		Duration:  inv.Duration(),
		Summary:   record.Summarize(inv),
	}
	for _, child := range inv.Children {
		if child.Inline != nil && child.Inline.Description != nil {
			st.Modules++
		}
	}
	switch {
	case inv.IsOpen():
		st.Status = InvocationRunning
		st.Duration = time.Since(st.StartTime)
	case st.Summary.Success():
		st.Status = InvocationPassed
	default:
		st.Status = InvocationFailed
	}
	return st
}

// refreshData reloads the invocation list from the store.
func (m *Model) refreshData() {
	invs, err := m.store.ListInvocations(listLimit)
	if err != nil {
		m.logger.Error("failed to list invocations", "error", err)
		m.errorMessage = err.Error()
		return
	}
	m.errorMessage = ""

	m.invocations = make([]InvocationState, len(invs))
	m.running, m.passed, m.failed = 0, 0, 0
	m.totalTests, m.passedTests = 0, 0
	for i, inv := range invs {
		st := newInvocationState(inv)
		switch st.Status {
		case InvocationRunning:
			m.running++
		case InvocationPassed:
			m.passed++
		case InvocationFailed:
			m.failed++
		}
		m.totalTests += st.Summary.Tests
		m.passedTests += st.Summary.Passed
		m.invocations[i] = st
	}
	m.totalInvocations = len(invs)

	if m.selected >= len(m.invocations) {
		m.selected = max(len(m.invocations)-1, 0)
	}
	m.lastUpdate = time.Now()
}

// openInvocation loads an invocation tree for the detail view.
func (m *Model) openInvocation(id string) {
	inv, err := m.store.GetInvocation(id)
	if err != nil {
		m.logger.Error("failed to load invocation", "record_id", id, "error", err)
		m.errorMessage = err.Error()
		return
	}
	m.detail = inv
	m.buildRows()
}

// buildRows flattens the detail tree, keeping only failing branches when
// failuresOnly is set.
func (m *Model) buildRows() {
	m.detailRows = nil
	if m.detail == nil {
		return
	}
	_ = record.Walk(m.detail, func(rec *record.Record, depth int) error {
		failed := rec.Status.IsFailure() || rec.DebugInfo != nil
		if m.failuresOnly && !failed && !containsFailure(rec) {
			return record.SkipChildren
		}
		m.detailRows = append(m.detailRows, treeRow{depth: depth, rec: rec, failed: failed})
		return nil
	})
	if m.detailScroll >= len(m.detailRows) {
		m.detailScroll = max(len(m.detailRows)-1, 0)
	}
}

func containsFailure(rec *record.Record) bool {
	s := record.Summarize(rec)
	return s.Failed > 0 || s.AssumptionFailures > 0 || s.Errors > 0
}

// Quitting returns true if the user has requested to quit.
func (m Model) Quitting() bool {
	return m.quitting
}
