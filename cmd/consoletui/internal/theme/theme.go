package theme

import "github.com/charmbracelet/lipgloss"

// Theme is the operator console's single palette: the dashboard reports
// state a human must trust at 3am, so it stays fixed rather than
// cycling between looks.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Background lipgloss.Color
	Surface    lipgloss.Color
	Safe       lipgloss.Color
	Unsafe     lipgloss.Color
	Warning    lipgloss.Color
	Text       lipgloss.Color
}

var Current = Theme{
	Primary:    lipgloss.Color("#5fd7ff"),
	Secondary:  lipgloss.Color("#af87ff"),
	Background: lipgloss.Color("#1c1c1c"),
	Surface:    lipgloss.Color("#262626"),
	Safe:       lipgloss.Color("#5fff87"),
	Unsafe:     lipgloss.Color("#ff5f5f"),
	Warning:    lipgloss.Color("#ffaf5f"),
	Text:       lipgloss.Color("#d0d0d0"),
}
