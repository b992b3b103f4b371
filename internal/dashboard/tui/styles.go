// Package tui provides a terminal dashboard for a running fuzzing
// campaign, adapted from the teacher's internal/ui package.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorMagenta = lipgloss.Color("#FF00FF")
	ColorGreen   = lipgloss.Color("#00FF00")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorRed     = lipgloss.Color("#FF0055")

	ColorHeaderBg = lipgloss.Color("#16213E")
	ColorText     = lipgloss.Color("#E0E0E0")
	ColorDimText  = lipgloss.Color("#666666")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMagenta).
			Background(ColorHeaderBg).
			Padding(0, 2)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan).
			Background(ColorHeaderBg).
			Padding(0, 1).
			MarginBottom(1)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorCyan).
			Padding(1, 2).
			MarginRight(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorDimText).
			Width(20)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	RunningStyle = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	PlateauStyle = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	CrashStyle   = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)

	HelpStyle = lipgloss.NewStyle().Foreground(ColorDimText)
	KeyStyle  = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)

	FooterStyle = lipgloss.NewStyle().Foreground(ColorDimText).MarginTop(1)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(ColorCyan)
)

func renderLabelValue(label, value string) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(value)
}

func renderHelp(key, description string) string {
	return KeyStyle.Render("["+key+"]") + " " + HelpStyle.Render(description)
}
