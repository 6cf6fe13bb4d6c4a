package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrorModal reports a failure that keeps the shell from starting, such
// as a missing key or a second instance on the same data directory.
type ErrorModal struct {
	title   string
	message string
	hint    string
	width   int
	height  int
}

func NewErrorModal(title, message string) ErrorModal {
	m := ErrorModal{title: title, message: message}
	switch {
	case strings.Contains(message, "API key"):
		m.hint = "hermitcrab key set"
	case strings.Contains(message, "another hermitcrab is running"):
		m.hint = "close the other shell or pass --data-dir"
	}
	return m
}

func (m ErrorModal) Init() tea.Cmd {
	return nil
}

func (m ErrorModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "esc", "ctrl+c", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ErrorModal) View() string {
	if m.width < 20 || m.height < 10 {
		return m.title + ": " + m.message
	}
	w := min(60, m.width-10)

	centered := lipgloss.NewStyle().Width(w).Align(lipgloss.Center)
	rule := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor)

	parts := []string{
		centered.Bold(true).Foreground(dangerColor).Render(m.title),
		rule.Render(centered.Render("\n" + m.message + "\n")),
	}
	if m.hint != "" {
		parts = append(parts, centered.Render(DimStyle.Render("try: ")+CodeStyle.Render(m.hint)))
	}
	parts = append(parts, rule.Render(centered.Foreground(dimColor).Render("Press Enter to quit")))

	box := lipgloss.JoinVertical(lipgloss.Center, parts...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// ShowError runs the modal until dismissed.
func ShowError(title, message string) error {
	_, err := tea.NewProgram(NewErrorModal(title, message), tea.WithAltScreen()).Run()
	return err
}
