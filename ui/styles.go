package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"hermitcrab/kernel"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")

	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	// Interface pane
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1)

	FocusedPaneStyle = PaneStyle.
				BorderForeground(accentColor)

	HeadingStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	ButtonStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	InputStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Underline(true)

	LinkStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Underline(true)

	CodeStyle = lipgloss.NewStyle().
			Foreground(highlightColor)
)

// statusStyle colours a kernel status line by kind.
func statusStyle(kind kernel.Kind) lipgloss.Style {
	switch kind {
	case kernel.KindSuccess:
		return lipgloss.NewStyle().Foreground(successColor)
	case kernel.KindError:
		return lipgloss.NewStyle().Foreground(dangerColor)
	default:
		return DimStyle
	}
}

// FormatFooter formats a footer string with alternating keys and descriptions.
// Usage: FormatFooter("Enter", "Send", "Tab", "Focus")
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i < len(parts); i += 2 {
		if i+1 < len(parts) {
			result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
		}
	}
	return strings.Join(result, "  ")
}
