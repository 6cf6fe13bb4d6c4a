package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermitcrab/kernel"
	"hermitcrab/storage"
	"hermitcrab/synth"
)

const counterSource = `function App() {
  const [n, setN] = React.useState(0);
  const [name, setName] = React.useState('');
  return (
    <div>
      <h1>Crab</h1>
      <p>count {n}</p>
      <button onClick={() => setN(n + 1)}>inc</button>
      <input value={name} placeholder="name" onChange={e => setName(e.target.value)} />
      <ul><li>one</li><li>two</li></ul>
    </div>
  );
}`

var emptyCapabilities = synth.BinderFunc(func(vm *goja.Runtime, _, _ goja.Value) (*goja.Object, error) {
	return vm.NewObject(), nil
})

type fakeKernel struct {
	mu       sync.Mutex
	comp     *synth.Component
	source   string
	bootText string
	statuses []kernel.Status
	retries  int
	reboots  int
}

func newFakeKernel(t *testing.T, source string) *fakeKernel {
	t.Helper()
	comp, err := synth.Build(source, emptyCapabilities)
	require.NoError(t, err)
	return &fakeKernel{comp: comp, source: source}
}

func (f *fakeKernel) Boot(context.Context, func(kernel.Status)) (*kernel.BootResult, error) {
	return &kernel.BootResult{Mode: kernel.BootFresh, Model: "claude-test"}, nil
}

func (f *fakeKernel) Retry(context.Context) (*kernel.BootResult, error) {
	f.mu.Lock()
	f.retries++
	f.mu.Unlock()
	return &kernel.BootResult{Mode: kernel.BootFresh}, nil
}

func (f *fakeKernel) Reboot(context.Context) (*kernel.BootResult, error) {
	f.mu.Lock()
	f.reboots++
	f.mu.Unlock()
	return &kernel.BootResult{Mode: kernel.BootFresh}, nil
}

func (f *fakeKernel) Dispatch(id int, ev synth.Event) (*synth.Node, error) {
	return f.comp.Dispatch(id, ev)
}

func (f *fakeKernel) Component() *synth.Component { return f.comp }
func (f *fakeKernel) Source() string              { return f.source }
func (f *fakeKernel) BootText() string            { return f.bootText }

func (f *fakeKernel) Statuses() []kernel.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kernel.Status(nil), f.statuses...)
}

func (f *fakeKernel) Status(msg string, kind kernel.Kind) {
	f.mu.Lock()
	f.statuses = append(f.statuses, kernel.Status{Time: time.Now(), Message: msg, Kind: kind})
	f.mu.Unlock()
}

func (f *fakeKernel) last() kernel.Status {
	s := f.Statuses()
	if len(s) == 0 {
		return kernel.Status{}
	}
	return s[len(s)-1]
}

type fakeChat struct {
	history *storage.History
	reply   string
	err     error
}

func newFakeChat(t *testing.T) *fakeChat {
	t.Helper()
	h, err := storage.LoadHistory(storage.NewMemoryKV(), 0)
	require.NoError(t, err)
	return &fakeChat{history: h}
}

func (c *fakeChat) Send(context.Context, string, func(string)) (string, error) {
	return c.reply, c.err
}

func (c *fakeChat) History() *storage.History { return c.history }

// booted returns an app that has sized itself and finished booting.
func booted(t *testing.T, k *fakeKernel, chat Conversation, opts Options) App {
	t.Helper()
	var app tea.Model = New(t.Context(), k, chat, opts)
	app, _ = app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	app, _ = app.Update(bootDoneMsg{result: &kernel.BootResult{Mode: kernel.BootFresh, Model: "claude-test"}})
	return app.(App)
}

// run executes cmd and feeds its message back into the app.
func run(t *testing.T, a App, cmd tea.Cmd) App {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ := a.Update(cmd())
	return m.(App)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    command
		wantErr string
	}{
		{input: "/click 2", want: command{Name: "click", N: 2}},
		{input: "/input 1 hello  world", want: command{Name: "input", N: 1, Arg: "hello  world"}},
		{input: "/ SUBMIT 3", want: command{Name: "submit", N: 3}},
		{input: "/export /tmp/out.json", want: command{Name: "export", Arg: "/tmp/out.json"}},
		{input: "/find crab shell", want: command{Name: "find", Arg: "crab shell"}},
		{input: "/reboot", want: command{Name: "reboot"}},
		{input: "/click", wantErr: "usage: /click N"},
		{input: "/input x hi", wantErr: "usage: /input N text"},
		{input: "/submit 0", wantErr: "usage: /submit N"},
		{input: "/find", wantErr: "usage: /find text"},
		{input: "/", wantErr: "empty command"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCommand(tt.input)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTree(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	out := stripANSI(renderTree(k.comp.Tree(), 60))

	for _, want := range []string{"Crab", "count 0", "[1: inc]", "[2: name_]", "• one", "• two"} {
		assert.Contains(t, out, want)
	}

	list := stripANSI(interactiveList(k.comp.Tree(), 60))
	assert.Contains(t, list, "[1] <button> inc click")
	assert.Contains(t, list, "[2] <input> name change")
}

func TestElementCommands(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	a := booted(t, k, nil, Options{})
	require.NotNil(t, a.tree)

	m, cmd := a.submit("/click 1")
	a = m.(App)
	assert.Equal(t, "handling click", a.busy)
	a = run(t, a, cmd)
	assert.Empty(t, a.busy)
	assert.Contains(t, a.tree.TextContent(), "count 1")

	m, cmd = a.submit("/input 2 bob")
	a = run(t, m.(App), cmd)
	assert.Equal(t, "bob", a.tree.Interactives()[1].Node.Prop("value"))

	m, cmd = a.submit("/click 9")
	assert.Nil(t, cmd)
	assert.Equal(t, "no element 9 (2 interactive)", k.last().Message)
	assert.Equal(t, kernel.KindError, k.last().Kind)

	_, cmd = m.(App).submit("/submit 1")
	assert.Nil(t, cmd)
	assert.Equal(t, "element 1 does not handle submit", k.last().Message)
}

func TestSourceAndCopy(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	var copied string
	a := booted(t, k, nil, Options{Clipboard: func(s string) error {
		copied = s
		return nil
	}})

	_, cmd := a.submit("/copy")
	assert.Nil(t, cmd)
	assert.Equal(t, counterSource, copied)
	assert.Equal(t, kernel.KindSuccess, k.last().Kind)

	a = booted(t, k, nil, Options{Clipboard: func(string) error { return errors.New("no display") }})
	a.submit("/copy")
	assert.Equal(t, "copy failed: no display", k.last().Message)

	m, cmd := a.submit("/source")
	a = m.(App)
	require.NotNil(t, cmd)
	require.NotEmpty(t, a.lines)
	assert.Contains(t, a.lines[len(a.lines)-1].content, "```jsx\n"+counterSource)
}

func TestRetryAndReboot(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	a := booted(t, k, nil, Options{})

	m, cmd := a.submit("/retry")
	a = run(t, m.(App), cmd)
	assert.Equal(t, 1, k.retries)

	m, cmd = a.submit("/reboot")
	assert.Equal(t, "rebooting", m.(App).busy)
	a = run(t, m.(App), cmd)
	assert.Equal(t, 1, k.reboots)
	assert.Empty(t, a.busy)
	assert.NotNil(t, a.tree)
}

func TestBootFailureShowsFallback(t *testing.T) {
	k := &fakeKernel{bootText: "I woke up but wrote no code."}
	var app tea.Model = New(t.Context(), k, nil, Options{})
	app, _ = app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	app, _ = app.Update(bootDoneMsg{
		result: &kernel.BootResult{Mode: kernel.BootFallback},
		err:    &synth.Failure{Stage: synth.StageExtract, Err: errors.New("still no JSX")},
	})
	a := app.(App)

	assert.True(t, a.failed)
	assert.Nil(t, a.tree)
	view := stripANSI(a.View())
	assert.Contains(t, view, "showing the boot reply")
	assert.Contains(t, view, "I woke up")
	assert.Contains(t, view, "/retry")
}

func TestChatTurn(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	chat := newFakeChat(t)
	a := booted(t, k, chat, Options{})

	m, cmd := a.submit("hello")
	a = m.(App)
	require.NotNil(t, cmd)
	assert.Equal(t, "thinking", a.busy)
	require.Len(t, a.lines, 1)

	// a second message waits for the first
	m, _ = a.submit("again")
	assert.Equal(t, "again", m.(App).textarea.Value())

	m, _ = a.Update(chatReplyMsg{err: errors.New("API 529: overloaded")})
	a = m.(App)
	assert.Empty(t, a.lines)
	assert.Equal(t, "hello", a.textarea.Value())
	assert.Equal(t, "chat failed: API 529: overloaded (press Enter to resend)", k.last().Message)

	a.textarea.Reset()
	m, _ = a.submit("hello")
	m, cmd = m.(App).Update(chatReplyMsg{reply: "**hi** there"})
	a = m.(App)
	require.Len(t, a.lines, 2)
	assert.Equal(t, "assistant", a.lines[1].role)

	a = run(t, a, cmd)
	assert.Contains(t, stripANSI(a.lines[1].rendered), "hi there")
}

func TestFindMessages(t *testing.T) {
	msgs := []storage.Message{
		{Role: "user", Content: "tell me about hermit crabs"},
		{Role: "assistant", Content: "Hermit crabs borrow shells."},
		{Role: "user", Content: "and lobsters?"},
	}

	matches := findMessages("shells", msgs, 80)
	require.NotEmpty(t, matches)
	assert.Equal(t, 1, matches[0].Index)
	assert.Equal(t, "assistant", matches[0].Role)
	assert.Contains(t, matches[0].Preview, "shells")

	assert.Empty(t, findMessages("zzzz", msgs, 80))
	assert.Empty(t, findMessages("  ", msgs, 80))
	assert.Contains(t, formatMatches("zzzz", nil), `No matches for "zzzz"`)
}

func TestStatusPump(t *testing.T) {
	k := newFakeKernel(t, counterSource)
	a := booted(t, k, nil, Options{})

	a.listen(kernel.Status{Message: "compiling...", Kind: kernel.KindInfo})
	m, next := a.Update(a.waitForStatus()())
	a = m.(App)
	require.NotNil(t, next)
	require.NotEmpty(t, a.statuses)
	assert.Equal(t, "compiling...", a.statuses[len(a.statuses)-1].Message)
	assert.Contains(t, stripANSI(a.renderStatuses()), "compiling...")
}

func TestErrorModal(t *testing.T) {
	var m tea.Model = NewErrorModal("hermitcrab cannot start", "no API key: run `hermitcrab key set`")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	view := stripANSI(m.View())
	assert.Contains(t, view, "hermitcrab cannot start")
	assert.Contains(t, view, "try: hermitcrab key set")
	assert.Contains(t, view, "Press Enter to quit")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	small := NewErrorModal("oops", "disk full")
	assert.Equal(t, "oops: disk full", small.View())
}
