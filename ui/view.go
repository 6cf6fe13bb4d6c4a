package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

func (a App) View() string {
	if !a.ready {
		return "Loading hermitcrab..."
	}

	iface := PaneStyle
	if a.focus == paneInterface {
		iface = FocusedPaneStyle
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		a.renderHeader(),
		a.renderStatuses(),
		iface.Width(max(a.width-2, 10)).Render(a.ifaceView.View()),
		a.chatView.View(),
		a.textarea.View(),
		a.renderFooter(),
	)
}

func (a App) renderHeader() string {
	header := TitleStyle.Render("hermitcrab")
	if a.opts.Version != "" {
		header += DimStyle.Render(" " + a.opts.Version)
	}
	if a.model != "" {
		header += DimStyle.Render(" · " + a.model)
	}
	if a.busy != "" {
		header += "  " + a.spinner.View() + " " + DimStyle.Render(a.busy+"...")
	}
	return header
}

// renderStatuses shows the newest status lines, oldest first.
func (a App) renderStatuses() string {
	lines := make([]string, 0, statusLines)
	start := max(len(a.statuses)-statusLines, 0)
	for _, s := range a.statuses[start:] {
		ts := DimStyle.Render(s.Time.Format("15:04:05") + " ")
		msg := runewidth.Truncate(s.Message, max(a.width-10, 10), "…")
		lines = append(lines, ts+statusStyle(s.Kind).Render(msg))
	}
	for len(lines) < statusLines {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (a App) renderFooter() string {
	if a.failed {
		return HighlightStyle.Render("synthesis failed") + "  " +
			FormatFooter("/retry", "Retry", "/reboot", "Boot fresh", "/source", "Source", "Ctrl+C", "Quit")
	}
	return HelpStyle.Render(FormatFooter(
		"Enter", "Send",
		"Tab", "Switch pane",
		"PgUp/PgDn", "Scroll",
		"/help", "Commands",
		"Ctrl+C", "Quit",
	))
}
