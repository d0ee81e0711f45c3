package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the TUI.
type Styles struct {
	Title       lipgloss.Style
	Label       lipgloss.Style
	LabelActive lipgloss.Style

	TableBorder lipgloss.Style
	Header      lipgloss.Style
	Cell        lipgloss.Style
	Requested   lipgloss.Style

	Status  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("252")),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).Width(10),
		LabelActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).Bold(true).Width(10),

		TableBorder: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Header: lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color("250")),
		Cell: lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right),
		Requested: lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right).
			Foreground(lipgloss.Color("214")).Bold(true),

		Status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("167")), // muted red
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("179")), // muted yellow
	}
}
