package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update applies a message to the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tickMsg:
		m.refreshData()
		return m, tickCmd()
	case error:
		m.errorMessage = msg.Error()
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" || key == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		if key == "r" {
			m.refreshData()
			if m.detail != nil {
				m.openInvocation(m.detail.ID)
			}
			return m, nil
		}
		if m.viewMode == ViewModeDetail {
			m.detailKey(key)
		} else {
			m.listKey(key)
		}
	}
	return m, nil
}

func (m *Model) listKey(key string) {
	switch key {
	case "enter":
		if m.selected >= len(m.invocations) {
			return
		}
		m.openInvocation(m.invocations[m.selected].ID)
		if m.detail != nil {
			m.viewMode = ViewModeDetail
		}
	default:
		m.selected = move(key, m.selected, len(m.invocations))
	}
}

func (m *Model) detailKey(key string) {
	switch key {
	case "esc":
		m.viewMode = ViewModeList
		m.detail, m.detailRows, m.detailScroll = nil, nil, 0
	case "f":
		m.failuresOnly = !m.failuresOnly
		m.detailScroll = 0
		m.buildRows()
	default:
		m.detailScroll = move(key, m.detailScroll, len(m.detailRows))
	}
}

// move applies a navigation key to a cursor over n items.
func move(key string, pos, n int) int {
	switch key {
	case "up", "k":
		pos--
	case "down", "j":
		pos++
	case "g", "home":
		pos = 0
	case "G", "end":
		pos = n - 1
	}
	return max(0, min(pos, n-1))
}
