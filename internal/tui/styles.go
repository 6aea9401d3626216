// Package tui provides a terminal browser for stored invocations.
package tui

import (
	"github.com/caevv/testrecorder/internal/record"
	"github.com/charmbracelet/lipgloss"
)

var (
	accent    = lipgloss.Color("#7C3AED")
	green     = lipgloss.Color("#10B981")
	red       = lipgloss.Color("#EF4444")
	amber     = lipgloss.Color("#F59E0B")
	blue      = lipgloss.Color("#3B82F6")
	grey      = lipgloss.Color("#6B7280")
	border    = lipgloss.Color("#374151")
	highlight = lipgloss.Color("#8B5CF6")

	bold = lipgloss.NewStyle().Bold(true)

	headerStyle = bold.
			Foreground(accent).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(border).
			Padding(0, 1).
			MarginBottom(1)
	titleStyle    = bold.Foreground(accent).Padding(0, 1)
	subtitleStyle = lipgloss.NewStyle().Foreground(grey).Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			MarginBottom(1)
	panelStyle = boxStyle.Padding(1, 2)
	statsStyle = boxStyle.Padding(0, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(grey).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginTop(1)

	itemStyle         = lipgloss.NewStyle().Padding(0, 1)
	itemSelectedStyle = bold.Foreground(highlight).Padding(0, 1)

	keyStyle      = lipgloss.NewStyle().Foreground(grey)
	valueStyle    = bold
	durationStyle = lipgloss.NewStyle().Foreground(blue)
	openStyle     = bold.Foreground(blue)
	errorStyle    = bold.Foreground(red)
)

const cursorMark = ">"

// marker is the glyph and style drawn in front of a row.
type marker struct {
	icon  string
	style lipgloss.Style
}

func (mk marker) render(label string) string {
	if label == "" {
		return mk.style.Render(mk.icon)
	}
	return mk.style.Render(mk.icon + " " + label)
}

var (
	nodeMarker = marker{"▸", lipgloss.NewStyle().Foreground(grey)}

	testMarkers = map[record.Status]marker{
		record.StatusPass:              {"✓", bold.Foreground(green)},
		record.StatusIgnored:           {"⊘", lipgloss.NewStyle().Foreground(amber)},
		record.StatusFail:              {"✗", errorStyle},
		record.StatusAssumptionFailure: {"✗", lipgloss.NewStyle().Foreground(amber)},
	}

	invocationMarkers = map[InvocationStatus]marker{
		InvocationRunning: {"⟳", openStyle},
		InvocationPassed:  {"✓", bold.Foreground(green)},
		InvocationFailed:  {"✗", errorStyle},
	}
)

// testMarker picks the marker for a test case; unknown statuses count as failures.
func testMarker(status record.Status) marker {
	if mk, ok := testMarkers[status]; ok {
		return mk
	}
	return testMarkers[record.StatusFail]
}
