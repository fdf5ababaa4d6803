package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/obscore/supervisor/cmd/consoletui/internal/theme"
)

func (m Model) View() string {
	if !m.ready {
		return "initializing...\n"
	}

	header := m.renderHeader()
	var body string
	if m.showLogs {
		body = m.table.View()
	} else {
		body = m.viewport.View()
	}
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	t := theme.Current
	style := lipgloss.NewStyle().Bold(true).Foreground(t.Primary)

	statusStyle := lipgloss.NewStyle().Foreground(t.Unsafe)
	statusText := "DISCONNECTED"
	if m.connected {
		statusStyle = lipgloss.NewStyle().Foreground(t.Safe)
		statusText = "CONNECTED"
	}

	return style.Render("observatory supervisor console") + "  " + statusStyle.Render(statusText)
}

func (m Model) renderFooter() string {
	return lipgloss.NewStyle().Foreground(theme.Current.Secondary).
		Render("q quit  r refresh  l logs  esc back")
}

func (m Model) renderDashboard() string {
	if m.status == nil {
		return "waiting for status..."
	}
	t := theme.Current
	var b strings.Builder

	enc := m.status.Enclosure
	modeStyle := lipgloss.NewStyle().Foreground(t.Primary)
	fmt.Fprintf(&b, "Enclosure   mode=%s status=%s\n", modeStyle.Render(enc.Mode), enc.Status)
	if enc.HasWindow && enc.Window != nil {
		fmt.Fprintf(&b, "  window    %s -> %s\n",
			enc.Window.OpenAt.Format("15:04:05"), enc.Window.CloseAt.Format("15:04:05"))
	}

	sch := m.status.Scheduler
	fmt.Fprintf(&b, "\nScheduler   mode=%s requested=%s\n", modeStyle.Render(sch.Mode), sch.RequestedMode)
	if len(sch.Schedule) == 0 {
		b.WriteString("  queue empty\n")
	}
	for _, a := range sch.Schedule {
		fmt.Fprintf(&b, "  %-24s %s\n", a.Name, strings.Join(a.TaskLabels, ","))
	}

	h := m.status.Health
	fmt.Fprintf(&b, "\nHost        cpu=%.1f%% mem=%.1f%% disk=%.1f%%\n", h.CPUPercent, h.MemoryPercent, h.DiskPercent)
	fmt.Fprintf(&b, "  observed at %s\n", m.status.ObservedAt.Format("15:04:05"))

	return b.String()
}
