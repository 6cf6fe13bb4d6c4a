package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"hermitcrab/kernel"
	"hermitcrab/synth"
)

// command is a parsed slash command. N is the interactive index for the
// element commands.
type command struct {
	Name string
	N    int
	Arg  string
}

var errNoInterface = errors.New("no interface is running")

var commandUsage = map[string]string{
	"click":  "/click N",
	"input":  "/input N text",
	"submit": "/submit N",
}

const helpText = `**Commands**

- ` + "`/click N`" + ` click element N
- ` + "`/input N text`" + ` type text into element N
- ` + "`/submit N`" + ` submit element N (form or Enter key)
- ` + "`/source`" + ` show the interface source
- ` + "`/copy`" + ` copy the interface source to the clipboard
- ` + "`/retry`" + ` retry synthesis after a failure
- ` + "`/reboot`" + ` discard the interface and boot fresh
- ` + "`/export [path]`" + ` export the conversation as JSON
- ` + "`/find text`" + ` fuzzy search the conversation
- ` + "`/quit`" + ` leave

Anything else is sent to the kernel as chat. Tab switches the scrolled pane.`

func parseCommand(input string) (command, error) {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}
	cmd := command{Name: strings.ToLower(fields[0])}
	rest := strings.TrimSpace(strings.TrimPrefix(body, fields[0]))

	switch cmd.Name {
	case "click", "input", "submit":
		if len(fields) < 2 {
			return cmd, fmt.Errorf("usage: %s", commandUsage[cmd.Name])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return cmd, fmt.Errorf("usage: %s", commandUsage[cmd.Name])
		}
		cmd.N = n
		cmd.Arg = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
	case "find":
		if rest == "" {
			return cmd, errors.New("usage: /find text")
		}
		cmd.Arg = rest
	default:
		cmd.Arg = rest
	}
	return cmd, nil
}

func (a App) runCommand(input string) (tea.Model, tea.Cmd) {
	cmd, err := parseCommand(input)
	if err != nil {
		a.kernel.Status(err.Error(), kernel.KindError)
		return a, nil
	}

	switch cmd.Name {
	case "quit", "exit":
		return a, tea.Quit

	case "help":
		render := a.appendLine("system", helpText)
		return a, render

	case "click", "input", "submit":
		if a.busy != "" {
			a.kernel.Status("still "+a.busy+"...", kernel.KindInfo)
			return a, nil
		}
		id, ev, err := a.resolveEvent(cmd)
		if err != nil {
			a.kernel.Status(err.Error(), kernel.KindError)
			return a, nil
		}
		a.busy = "handling " + ev.Type
		return a, a.dispatchCmd(id, ev)

	case "retry":
		if a.busy != "" {
			a.kernel.Status("still "+a.busy+"...", kernel.KindInfo)
			return a, nil
		}
		a.busy = "retrying"
		return a, a.retryCmd()

	case "reboot":
		if a.busy != "" {
			a.kernel.Status("still "+a.busy+"...", kernel.KindInfo)
			return a, nil
		}
		a.busy = "rebooting"
		a.component, a.tree = nil, nil
		a.refreshInterface()
		return a, a.rebootCmd()

	case "source":
		source := a.kernel.Source()
		if source == "" {
			a.kernel.Status("(no source available)", kernel.KindInfo)
			return a, nil
		}
		render := a.appendLine("system", "```jsx\n"+source+"\n```")
		return a, render

	case "copy":
		source := a.kernel.Source()
		if source == "" {
			a.kernel.Status("(no source available)", kernel.KindInfo)
			return a, nil
		}
		if err := a.opts.Clipboard(source); err != nil {
			a.kernel.Status("copy failed: "+err.Error(), kernel.KindError)
			return a, nil
		}
		a.kernel.Status(fmt.Sprintf("copied %d chars of source to the clipboard", len(source)), kernel.KindSuccess)
		return a, nil

	case "export":
		if a.chat == nil {
			a.kernel.Status("chat is not available", kernel.KindError)
			return a, nil
		}
		return a, a.exportCmd(cmd.Arg)

	case "find":
		if a.chat == nil {
			a.kernel.Status("chat is not available", kernel.KindError)
			return a, nil
		}
		matches := findMessages(cmd.Arg, a.chat.History().Messages, max(a.chatWidth()-16, 20))
		render := a.appendLine("system", formatMatches(cmd.Arg, matches))
		return a, render
	}

	a.kernel.Status(fmt.Sprintf("unknown command /%s (try /help)", cmd.Name), kernel.KindError)
	return a, nil
}

// resolveEvent maps an element command onto a handler id and the event
// passed to it.
func (a App) resolveEvent(cmd command) (int, synth.Event, error) {
	if a.tree == nil {
		return 0, synth.Event{}, errNoInterface
	}
	items := a.tree.Interactives()
	if cmd.N > len(items) {
		return 0, synth.Event{}, fmt.Errorf("no element %d (%d interactive)", cmd.N, len(items))
	}
	item := items[cmd.N-1]
	value := item.Node.Prop("value")

	switch cmd.Name {
	case "click":
		if id, ok := item.Handler("onClick"); ok {
			return id, synth.Event{Type: "click", Target: synth.EventTarget{Value: value}}, nil
		}
		// checkboxes usually only listen for change
		if id, ok := item.Handler("onChange"); ok {
			checked := item.Node.Prop("checked") != "true"
			return id, synth.Event{Type: "change", Target: synth.EventTarget{Value: value, Checked: checked}}, nil
		}
	case "input":
		if id, ok := item.Handler("onChange", "onInput"); ok {
			return id, synth.Event{Type: "change", Target: synth.EventTarget{Value: cmd.Arg}}, nil
		}
	case "submit":
		if id, ok := item.Handler("onSubmit"); ok {
			return id, synth.Event{Type: "submit", Target: synth.EventTarget{Value: value}}, nil
		}
		if id, ok := item.Handler("onKeyDown", "onKeyPress", "onKeyUp"); ok {
			return id, synth.Event{Type: "keydown", Key: "Enter", Target: synth.EventTarget{Value: value}}, nil
		}
	}
	return 0, synth.Event{}, fmt.Errorf("element %d does not handle %s", cmd.N, cmd.Name)
}
