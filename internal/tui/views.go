package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Bye.\n"
	}

	if m.viewMode == ViewModeDetail {
		return m.renderDetailView()
	}

	sections := []string{
		m.renderHeader("Test Recorder"),
		m.renderStats(),
		m.renderInvocationList(),
		m.renderHelpBar("q: quit  │  ↑/↓: navigate  │  enter: details  │  r: refresh"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(title string) string {
	subtitle := fmt.Sprintf("Last updated: %s", m.lastUpdate.Format("15:04:05"))
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(title),
		"  ",
		subtitleStyle.Render(subtitle),
	)
	return headerStyle.Render(header)
}

// renderStats renders the statistics bar.
func (m Model) renderStats() string {
	stats := []string{
		fmt.Sprintf("%s %d", keyStyle.Render("Invocations:"), m.totalInvocations),
		fmt.Sprintf("%s %d", keyStyle.Render("Running:"), m.running),
		fmt.Sprintf("%s %d", keyStyle.Render("Failed:"), m.failed),
	}

	if m.totalTests > 0 {
		rate := float64(m.passedTests) / float64(m.totalTests) * 100
		stats = append(stats, fmt.Sprintf("%s %d/%d (%.0f%%)",
			keyStyle.Render("Tests passed:"),
			m.passedTests,
			m.totalTests,
			rate,
		))
	}

	if m.pruner != nil {
		ps := m.pruner.Stats()
		if !ps.NextRun.IsZero() {
			stats = append(stats, fmt.Sprintf("%s %s", keyStyle.Render("Next prune:"), formatTimeFromNow(ps.NextRun)))
		}
	}

	return statsStyle.Render(strings.Join(stats, "  │  "))
}

// renderInvocationList renders the list of stored invocations.
func (m Model) renderInvocationList() string {
	if len(m.invocations) == 0 {
		return panelStyle.Render(subtitleStyle.Render("No invocations recorded yet"))
	}

	rows := []string{
		titleStyle.Render("Invocations"),
		"",
		keyStyle.Render(fmt.Sprintf("   %-24s  %-9s  %-19s  %-8s  %s",
			"Invocation", "Status", "Started", "Duration", "Pass / Fail / Skip")),
		keyStyle.Render(strings.Repeat("─", 84)),
	}

	for i, inv := range m.invocations {
		rows = append(rows, m.renderInvocationRow(inv, i == m.selected))
	}

	return panelStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderInvocationRow(inv InvocationState, selected bool) string {
	cursor := " "
	if selected {
		cursor = cursorMark
	}

	row := fmt.Sprintf("%s  %-24s  %s  %-19s  %s  %d / %d / %d",
		cursor,
		padRight(truncate(inv.ID, 24), 24),
		invocationStatus(inv.Status),
		inv.StartTime.Local().Format("2006-01-02 15:04:05"),
		durationStyle.Render(padRight(formatDuration(inv.Duration), 8)),
		inv.Summary.Passed,
		inv.Summary.Failed,
		inv.Summary.Ignored,
	)

	if selected {
		return itemSelectedStyle.Render(row)
	}
	return itemStyle.Render(row)
}

func invocationStatus(s InvocationStatus) string {
	mk, ok := invocationMarkers[s]
	if !ok {
		mk = invocationMarkers[InvocationFailed]
	}
	return mk.render(padRight(s.String(), 7))
}

func (m Model) renderHelpBar(help string) string {
	if m.errorMessage != "" {
		return statusBarStyle.Render(errorStyle.Render("Error: " + m.errorMessage))
	}
	return statusBarStyle.Render(help)
}

// renderDetailView renders the record tree of the open invocation.
func (m Model) renderDetailView() string {
	if m.detail == nil {
		return "No invocation selected"
	}

	inv := newInvocationState(m.detail)
	sections := []string{m.renderHeader("Invocation " + inv.ID)}

	info := []string{
		titleStyle.Render("Summary"),
		"",
		fmt.Sprintf("%s %s", keyStyle.Render("Status:"), invocationStatus(inv.Status)),
		fmt.Sprintf("%s %s", keyStyle.Render("Started:"), valueStyle.Render(inv.StartTime.Local().Format("2006-01-02 15:04:05"))),
		fmt.Sprintf("%s %s", keyStyle.Render("Duration:"), durationStyle.Render(formatDuration(inv.Duration))),
		fmt.Sprintf("%s %s", keyStyle.Render("Modules:"), valueStyle.Render(fmt.Sprint(inv.Modules))),
		fmt.Sprintf("%s %d passed, %d failed, %d ignored, %d assumption failures",
			keyStyle.Render("Tests:"),
			inv.Summary.Passed, inv.Summary.Failed, inv.Summary.Ignored, inv.Summary.AssumptionFailures),
	}
	if attrs, err := m.detail.Description.Attributes(); err == nil && len(attrs) > 0 {
		for _, k := range m.detail.Description.AttributeKeys() {
			info = append(info, fmt.Sprintf("%s %s", keyStyle.Render(k+":"), strings.Join(attrs[k], ", ")))
		}
	}
	sections = append(sections, panelStyle.Render(strings.Join(info, "\n")))

	title := fmt.Sprintf("Records (%d)", len(m.detailRows))
	if m.failuresOnly {
		title = fmt.Sprintf("Failing records (%d)", len(m.detailRows))
	}
	tree := []string{titleStyle.Render(title), ""}
	if len(m.detailRows) == 0 {
		tree = append(tree, subtitleStyle.Render("Nothing to show"))
	}
	end := min(m.detailScroll+m.visibleRows(), len(m.detailRows))
	for i := m.detailScroll; i < end; i++ {
		tree = append(tree, renderTreeRow(m.detailRows[i]))
	}
	sections = append(sections, panelStyle.Render(strings.Join(tree, "\n")))

	sections = append(sections, m.renderHelpBar("esc: back  │  ↑/↓: scroll  │  f: failures only  │  r: refresh  │  q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// visibleRows is how many tree rows fit on screen.
func (m Model) visibleRows() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-22, 5)
}

func renderTreeRow(row treeRow) string {
	rec := row.rec
	indent := strings.Repeat("  ", row.depth)

	mk := nodeMarker
	if rec.IsTestCase() {
		mk = testMarker(rec.Status)
	}

	line := fmt.Sprintf("%s%s %s", indent, mk.render(""), rec.ID)
	if rec.IsOpen() {
		line += "  " + openStyle.Render("running")
	} else {
		line += "  " + durationStyle.Render(formatDuration(rec.Duration()))
	}
	if rec.NumExpectedChildren > 0 {
		line += keyStyle.Render(fmt.Sprintf("  %d/%d", len(rec.Children), rec.NumExpectedChildren))
	}
	if rec.DebugInfo != nil && rec.DebugInfo.ErrorMessage != "" {
		msg := strings.TrimSpace(strings.SplitN(rec.DebugInfo.ErrorMessage, "\n", 2)[0])
		line += "\n" + indent + "    " + errorStyle.Render(truncate(msg, 75))
	}
	return line
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// formatTimeFromNow formats a time relative to now.
func formatTimeFromNow(t time.Time) string {
	duration := time.Until(t)

	if duration < 0 {
		return "now"
	}
	if duration < time.Minute {
		return fmt.Sprintf("in %ds", int(duration.Seconds()))
	}
	if duration < time.Hour {
		return fmt.Sprintf("in %dm", int(duration.Minutes()))
	}
	if duration < 24*time.Hour {
		return fmt.Sprintf("in %dh %dm", int(duration.Hours()), int(duration.Minutes())%60)
	}
	return fmt.Sprintf("in %dd", int(duration.Hours()/24))
}

// truncate truncates a string to a maximum length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// padRight pads a string with spaces to reach the desired length.
func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
