package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/obscore/supervisor/cmd/consoletui/internal/api"
)

type Model struct {
	client *api.Client

	connected bool
	status    *api.Status
	logs      []api.LogEntry

	showLogs bool
	width    int
	height   int
	ready    bool

	viewport viewport.Model
	table    table.Model
}

type statusMsg struct {
	status api.Status
	err    error
}

type logsMsg struct {
	entries []api.LogEntry
	err     error
}

type tickMsg time.Time

func NewModel(client *api.Client) Model {
	return Model{client: client}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.client), fetchLogs(m.client), pollCmd())
}

func fetchStatus(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := c.Status(ctx)
		return statusMsg{s, err}
	}
}

func fetchLogs(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		entries, err := c.RecentLogs(ctx, 50)
		return logsMsg{entries, err}
	}
}

func pollCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
