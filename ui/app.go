// Package ui is the terminal shell around a kernel: boot status, the live
// interface drawn from its element tree, and a chat pane.
package ui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"hermitcrab/kernel"
	"hermitcrab/storage"
	"hermitcrab/synth"
)

const (
	statusLines   = 5
	maxStatuses   = 200
	inputHeight   = 3
	statusBacklog = 256
)

// Kernel is the part of the kernel the terminal drives.
type Kernel interface {
	Boot(ctx context.Context, onStatus func(kernel.Status)) (*kernel.BootResult, error)
	Retry(ctx context.Context) (*kernel.BootResult, error)
	Reboot(ctx context.Context) (*kernel.BootResult, error)
	Dispatch(id int, ev synth.Event) (*synth.Node, error)
	Component() *synth.Component
	Source() string
	BootText() string
	Statuses() []kernel.Status
	Status(msg string, kind kernel.Kind)
}

// Conversation is the chat behind the input box.
type Conversation interface {
	Send(ctx context.Context, text string, onStatus func(string)) (string, error)
	History() *storage.History
}

type Options struct {
	Version   string
	ExportDir string
	// Clipboard defaults to the system clipboard
	Clipboard func(string) error
}

type pane int

const (
	paneInterface pane = iota
	paneChat
)

type chatLine struct {
	role     string
	content  string
	rendered string
	at       time.Time
}

// App is the bubbletea model.
type App struct {
	ctx    context.Context
	kernel Kernel
	chat   Conversation
	opts   Options

	statusCh chan kernel.Status
	statuses []kernel.Status

	component *synth.Component
	tree      *synth.Node
	model     string
	failed    bool
	busy      string

	lines []chatLine

	ifaceView viewport.Model
	chatView  viewport.Model
	textarea  textarea.Model
	spinner   spinner.Model
	focus     pane

	width  int
	height int
	ready  bool
}

func New(ctx context.Context, k Kernel, chat Conversation, opts Options) App {
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = "Chat, or /help for commands..."
	ta.Focus()
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = AssistantStyle

	a := App{
		ctx:       ctx,
		kernel:    k,
		chat:      chat,
		opts:      opts,
		statusCh:  make(chan kernel.Status, statusBacklog),
		statuses:  k.Statuses(),
		busy:      "booting",
		ifaceView: viewport.New(0, 0),
		chatView:  viewport.New(0, 0),
		textarea:  ta,
		spinner:   sp,
	}
	if chat != nil {
		for _, m := range chat.History().Messages {
			a.lines = append(a.lines, chatLine{role: m.Role, content: m.Content, at: m.Timestamp})
		}
	}
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.spinner.Tick, a.waitForStatus(), a.bootCmd())
}

// Run starts the program in the alternate screen and blocks until quit.
func Run(ctx context.Context, k Kernel, chat Conversation, opts Options) error {
	p := tea.NewProgram(New(ctx, k, chat, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// listen forwards kernel status lines into the program. A full backlog
// drops lines; the kernel keeps its own log.
func (a App) listen(s kernel.Status) {
	select {
	case a.statusCh <- s:
	default:
	}
}

func (a App) waitForStatus() tea.Cmd {
	ch := a.statusCh
	return func() tea.Msg {
		return statusMsg{status: <-ch}
	}
}

func (a App) bootCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.kernel.Boot(a.ctx, a.listen)
		return bootDoneMsg{result: res, err: err}
	}
}

func (a App) retryCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.kernel.Retry(a.ctx)
		return bootDoneMsg{result: res, err: err}
	}
}

func (a App) rebootCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.kernel.Reboot(a.ctx)
		return bootDoneMsg{result: res, err: err}
	}
}

func (a App) dispatchCmd(id int, ev synth.Event) tea.Cmd {
	return func() tea.Msg {
		tree, err := a.kernel.Dispatch(id, ev)
		return treeMsg{tree: tree, err: err}
	}
}

func (a App) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := a.chat.Send(a.ctx, text, func(msg string) {
			a.kernel.Status(msg, kernel.KindInfo)
		})
		return chatReplyMsg{reply: reply, err: err}
	}
}

func (a App) exportCmd(path string) tea.Cmd {
	if path == "" {
		path = storage.GenerateExportPath(a.opts.ExportDir)
	}
	history := a.chat.History()
	return func() tea.Msg {
		return exportDoneMsg{path: path, err: history.ExportToJSON(path)}
	}
}
