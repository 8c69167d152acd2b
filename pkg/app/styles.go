package app

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#C792EA")).
		Bold(true)

	chapterStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EEFFFF"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#C3E88D"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFCB6B"))

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#546E7A"))
)
