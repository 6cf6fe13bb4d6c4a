package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"hermitcrab/config"
	"hermitcrab/kernel"
	"hermitcrab/synth"
)

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.layout()
		return a, a.rerenderChat()

	case tea.KeyMsg:
		return a.handleKey(msg)

	case statusMsg:
		a.statuses = append(a.statuses, msg.status)
		if len(a.statuses) > maxStatuses {
			a.statuses = a.statuses[len(a.statuses)-maxStatuses:]
		}
		return a, a.waitForStatus()

	case bootDoneMsg:
		a.busy = ""
		a.failed = msg.err != nil
		if msg.result != nil {
			if msg.result.Model != "" {
				a.model = msg.result.Model
			}
			switch msg.result.Mode {
			case kernel.BootFallback, kernel.BootFailed:
				a.failed = true
			}
		}
		if msg.err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] boot ended with error: %v", msg.err)
		}
		a.syncComponent(nil)
		a.refreshInterface()
		return a, nil

	case treeMsg:
		a.busy = ""
		if msg.err != nil {
			a.kernel.Status("event failed: "+msg.err.Error(), kernel.KindError)
		}
		a.syncComponent(msg.tree)
		a.refreshInterface()
		return a, nil

	case chatReplyMsg:
		a.busy = ""
		if msg.err != nil {
			// the chat withdrew the message; hand it back for another try
			if n := len(a.lines); n > 0 && a.lines[n-1].role == "user" {
				a.textarea.SetValue(a.lines[n-1].content)
				a.lines = a.lines[:n-1]
			}
			a.kernel.Status("chat failed: "+msg.err.Error()+" (press Enter to resend)", kernel.KindError)
			a.refreshChat(true)
			return a, nil
		}
		cmd := a.appendLine("assistant", msg.reply)
		return a, cmd

	case markdownRenderedMsg:
		if msg.index >= 0 && msg.index < len(a.lines) {
			a.lines[msg.index].rendered = msg.rendered
		}
		a.refreshChat(true)
		return a, nil

	case exportDoneMsg:
		if msg.err != nil {
			a.kernel.Status("export failed: "+msg.err.Error(), kernel.KindError)
		} else {
			a.kernel.Status("conversation exported to "+msg.path, kernel.KindSuccess)
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "tab":
		if a.focus == paneInterface {
			a.focus = paneChat
		} else {
			a.focus = paneInterface
		}
		return a, nil

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		if a.focus == paneInterface {
			a.ifaceView, cmd = a.ifaceView.Update(msg)
		} else {
			a.chatView, cmd = a.chatView.Update(msg)
		}
		return a, cmd

	case "enter":
		input := strings.TrimSpace(a.textarea.Value())
		if input == "" {
			return a, nil
		}
		a.textarea.Reset()
		return a.submit(input)
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

// submit routes one line of input: a slash command or a chat message.
func (a App) submit(input string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(input, "/") {
		return a.runCommand(input)
	}
	if a.busy != "" {
		a.textarea.SetValue(input)
		a.kernel.Status("still "+a.busy+"...", kernel.KindInfo)
		return a, nil
	}
	if a.chat == nil {
		a.kernel.Status("chat is not available", kernel.KindError)
		return a, nil
	}
	a.busy = "thinking"
	render := a.appendLine("user", input)
	return a, tea.Batch(render, a.sendCmd(input))
}

// appendLine adds a chat line and renders it in the background.
func (a *App) appendLine(role, content string) tea.Cmd {
	a.lines = append(a.lines, chatLine{role: role, content: content, at: time.Now()})
	a.refreshChat(true)
	return renderMarkdownCmd(len(a.lines)-1, content, a.chatWidth())
}

// syncComponent picks up a component swapped in by a recompile. tree is
// the latest render of the previous component, if any.
func (a *App) syncComponent(tree *synth.Node) {
	comp := a.kernel.Component()
	switch {
	case comp == nil:
		a.component, a.tree = nil, nil
	case comp != a.component:
		a.component, a.tree = comp, comp.Tree()
	case tree != nil:
		a.tree = tree
	}
}

func (a *App) layout() {
	innerWidth := max(a.width-4, 10)
	a.textarea.SetWidth(a.width)

	// header, status pane, interface border, input, footer
	fixed := 1 + statusLines + 2 + inputHeight + 1
	remaining := max(a.height-fixed, 4)
	ifaceHeight := remaining * 3 / 5
	a.ifaceView.Width = innerWidth
	a.ifaceView.Height = ifaceHeight
	a.chatView.Width = a.width
	a.chatView.Height = remaining - ifaceHeight

	a.refreshInterface()
	a.refreshChat(false)
}

func (a App) chatWidth() int {
	return max(a.width-4, 20)
}

// rerenderChat re-renders every line at the current width.
func (a App) rerenderChat() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(a.lines))
	for i, l := range a.lines {
		cmds = append(cmds, renderMarkdownCmd(i, l.content, a.chatWidth()))
	}
	return tea.Batch(cmds...)
}

func (a *App) refreshInterface() {
	var content string
	switch {
	case a.tree != nil:
		content = renderTree(a.tree, a.ifaceView.Width) + "\n\n" + interactiveList(a.tree, a.ifaceView.Width)
	case a.failed && strings.TrimSpace(a.kernel.BootText()) != "":
		content = DimStyle.Render("interface unavailable, showing the boot reply") + "\n\n" +
			renderMarkdown(a.kernel.BootText(), a.ifaceView.Width)
	case a.failed:
		content = DimStyle.Render("no interface is running")
	default:
		content = DimStyle.Render("booting...")
	}
	a.ifaceView.SetContent(content)
}

func (a *App) refreshChat(gotoBottom bool) {
	if len(a.lines) == 0 {
		a.chatView.SetContent(DimStyle.Render("No messages yet."))
		return
	}

	var b strings.Builder
	for _, l := range a.lines {
		timestamp := DimStyle.Render(l.at.Format("[15:04]"))
		var role string
		switch l.role {
		case "user":
			role = UserStyle.Render("You")
		case "assistant":
			role = AssistantStyle.Render("Kernel")
		default:
			role = DimStyle.Render("System")
		}
		body := l.rendered
		if body == "" {
			body = l.content
		}
		b.WriteString(fmt.Sprintf("%s %s\n%s\n\n", timestamp, role, body))
	}
	a.chatView.SetContent(b.String())
	if gotoBottom {
		a.chatView.GotoBottom()
	}
}
