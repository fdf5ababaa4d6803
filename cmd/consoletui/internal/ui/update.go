package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/obscore/supervisor/cmd/consoletui/internal/theme"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport = viewport.New(m.width, m.height-2)
		m.ready = true

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, tea.Batch(fetchStatus(m.client), fetchLogs(m.client))
		case key.Matches(msg, keys.Logs):
			m.showLogs = !m.showLogs
		case key.Matches(msg, keys.Back):
			if m.showLogs {
				m.showLogs = false
			}
		}

	case statusMsg:
		m.connected = msg.err == nil
		if msg.err == nil {
			m.status = &msg.status
		}

	case logsMsg:
		if msg.err == nil {
			m.logs = msg.entries
			m.rebuildTable()
		}

	case tickMsg:
		cmds = append(cmds, fetchStatus(m.client), fetchLogs(m.client), pollCmd())
	}

	if m.ready && !m.showLogs {
		m.viewport.SetContent(m.renderDashboard())
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.showLogs {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) rebuildTable() {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Event", Width: 24},
		{Title: "Module", Width: 16},
	}

	var rows []table.Row
	for _, entry := range m.logs {
		rows = append(rows, table.Row{
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.EventType,
			entry.Module,
		})
	}

	h := m.height - 3
	if h < 5 {
		h = 5
	}
	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(h),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(theme.Current.Primary).Bold(true)
	s.Selected = s.Selected.Foreground(theme.Current.Background).Background(theme.Current.Primary)
	m.table.SetStyles(s)
}
