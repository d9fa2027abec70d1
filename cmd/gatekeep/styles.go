package main

import "github.com/charmbracelet/lipgloss"

var (
	allowedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	deniedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")) // Dim gray
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

func verdict(valid bool) string {
	if valid {
		return allowedStyle.Render("ALLOWED")
	}
	return deniedStyle.Render("DENIED")
}
