package synth

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermitcrab/provider/testutil"
)

const counterSource = `const { useState } = React;

function Counter({ version }) {
  const [count, setCount] = useState(0);
  return (
    <div>
      <span>{version}: {count}</span>
      <button onClick={() => setCount(count + 1)}>inc</button>
    </div>
  );
}`

const goodSource = "function App() { return <div>ok</div>; }"
const brokenSource = "function App() { return <div>; }"

func versionBinder(version string) Binder {
	return BinderFunc(func(vm *goja.Runtime, _, _ goja.Value) (*goja.Object, error) {
		caps := vm.NewObject()
		return caps, caps.Set("version", version)
	})
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "jsx fence",
			text: "Here it is:\n```jsx\nfunction A() { return null; }\n```\nEnjoy.",
			want: "function A() { return null; }",
			ok:   true,
		},
		{
			name: "bare fence",
			text: "```\nconst A = () => null;\n```",
			want: "const A = () => null;",
			ok:   true,
		},
		{
			name: "first fence wins",
			text: "```js\nfirst\n```\n```jsx\nsecond\n```",
			want: "first",
			ok:   true,
		},
		{
			name: "arrow declaration without fence",
			text: "Sure. const App = () => (<div/>); That is all.",
			want: "const App = () => (<div/>);",
			ok:   true,
		},
		{
			name: "prose only",
			text: "I would rather talk about the weather.",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains []string
		absent   []string
	}{
		{
			name:     "import and default function",
			src:      "import React from 'react';\nexport default function App() { return null; }",
			contains: []string{"function App()", "module.exports.default = App;"},
			absent:   []string{"import", "export default"},
		},
		{
			name:     "helper declared before default function",
			src:      "function Label() { return <span>hi</span>; }\nexport default function App() { return <div><Label /></div>; }",
			contains: []string{"function App()", "module.exports.default = App;"},
			absent:   []string{"module.exports.default = Label;"},
		},
		{
			name:     "helper declared before default class",
			src:      "function Label() { return null; }\nexport default class App extends React.Component {}",
			contains: []string{"module.exports.default = App;"},
			absent:   []string{"module.exports.default = Label;"},
		},
		{
			name:     "default class",
			src:      "export default class App extends React.Component {}",
			contains: []string{"class App extends", "module.exports.default = App;"},
		},
		{
			name:     "default identifier",
			src:      "function App() { return null; }\nexport default App;",
			contains: []string{"module.exports.default = App;"},
			absent:   []string{"export default"},
		},
		{
			name:     "default expression",
			src:      "export default () => null",
			contains: []string{"module.exports.default = () => null"},
		},
		{
			name:     "const component",
			src:      "const App = () => null;",
			contains: []string{"module.exports.default = App;"},
		},
		{
			name:     "existing exports left alone",
			src:      "function App() {}\nmodule.exports = App;",
			contains: []string{"module.exports = App;"},
			absent:   []string{"module.exports.default"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prepare(tt.src)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestDefaultExportWinsOverEarlierHelper(t *testing.T) {
	src := `function Label() { return <span>label</span>; }
export default function App() { return <div><Label /></div>; }`
	c, err := Build(src, nil)
	require.NoError(t, err)
	assert.Equal(t, "div", c.Tree().Tag)
	assert.Equal(t, "label", c.Tree().TextContent())
}

func TestCompile(t *testing.T) {
	code, err := Compile("const a = <div className=\"x\">hi</div>;")
	require.NoError(t, err)
	assert.Contains(t, code, "React.createElement")

	_, err = Compile(brokenSource)
	assert.Error(t, err)
}

func TestBuildRenderAndDispatch(t *testing.T) {
	c, err := Build(counterSource, versionBinder("v1"))
	require.NoError(t, err)

	tree := c.Tree()
	require.NotNil(t, tree)
	assert.Equal(t, "div", tree.Tag)
	assert.Equal(t, "v1: 0inc", tree.TextContent())

	items := tree.Interactives()
	require.Len(t, items, 1)
	assert.Equal(t, "button", items[0].Node.Tag)
	id, ok := items[0].Handler("onClick")
	require.True(t, ok)

	tree, err = c.Dispatch(id, Event{Type: "click"})
	require.NoError(t, err)
	assert.Equal(t, "v1: 1inc", tree.TextContent())

	// handler ids are reassigned on every render
	id, _ = tree.Interactives()[0].Handler("onClick")
	tree, err = c.Dispatch(id, Event{Type: "click"})
	require.NoError(t, err)
	assert.Equal(t, "v1: 2inc", tree.TextContent())
}

func TestInputEventsCarryValue(t *testing.T) {
	src := `function Echo() {
  const [text, setText] = React.useState('');
  return (
    <div>
      <input value={text} placeholder="say" onChange={e => setText(e.target.value)} />
      <p>{text}</p>
    </div>
  );
}`
	c, err := Build(src, nil)
	require.NoError(t, err)

	items := c.Tree().Interactives()
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Label(), "say")

	id, _ := items[0].Handler("onInput", "onChange")
	tree, err := c.Dispatch(id, Event{Type: "change", Target: EventTarget{Value: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", tree.TextContent())
	assert.Equal(t, "hello", tree.Interactives()[0].Node.Prop("value"))
}

func TestAsyncCapabilitySettlesBeforeDispatchReturns(t *testing.T) {
	binder := BinderFunc(func(vm *goja.Runtime, _, _ goja.Value) (*goja.Object, error) {
		caps := vm.NewObject()
		err := caps.Set("callLLM", func(goja.FunctionCall) goja.Value {
			return Resolved(vm, "pong")
		})
		return caps, err
	})
	src := `function App({ callLLM }) {
  const [reply, setReply] = React.useState('');
  const send = async () => {
    const r = await callLLM([{ role: 'user', content: 'ping' }]);
    setReply(r);
  };
  return <div><button onClick={send}>go</button><p>{reply}</p></div>;
}`
	c, err := Build(src, binder)
	require.NoError(t, err)

	id, _ := c.Tree().Interactives()[0].Handler("onClick")
	tree, err := c.Dispatch(id, Event{})
	require.NoError(t, err)
	assert.Equal(t, "gopong", tree.TextContent())
}

func TestEffectsAndTimersSettleInOneRender(t *testing.T) {
	src := `function App() {
  const [n, setN] = React.useState(0);
  React.useEffect(() => { setTimeout(() => setN(5), 100); }, []);
  return <b>{n}</b>;
}`
	c, err := Build(src, nil)
	require.NoError(t, err)
	assert.Equal(t, "5", c.Tree().TextContent())
}

func TestClassComponent(t *testing.T) {
	src := `class Hello extends React.Component {
  render() { return <h1>hello {this.props.version}</h1>; }
}`
	c, err := Build(src, versionBinder("v2"))
	require.NoError(t, err)
	assert.Equal(t, "h1", c.Tree().Tag)
	assert.Equal(t, "hello v2", c.Tree().TextContent())
}

func TestBuildFailures(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		stage   Stage
		message string
	}{
		{name: "syntax", src: brokenSource, stage: StageCompile},
		{name: "no export", src: "const answer = 42;", stage: StageInstantiate, message: "No React component exported."},
		{name: "throws at load", src: "throw new Error('boom');\nfunction App() { return null; }", stage: StageInstantiate, message: "Error: boom"},
		{name: "throws at render", src: "function App() { return null.foo; }", stage: StageRender, message: "TypeError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.src, nil)
			require.Error(t, err)

			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.stage, f.Stage)
			assert.Equal(t, tt.src, f.Source)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestDispatchUnknownHandler(t *testing.T) {
	c, err := Build(goodSource, nil)
	require.NoError(t, err)

	_, err = c.Dispatch(99, Event{})
	assert.ErrorContains(t, err, "no handler #99")
}

type statusLog struct {
	lines  []string
	errors int
}

func (s *statusLog) record(msg string, isError bool) {
	s.lines = append(s.lines, msg)
	if isError {
		s.errors++
	}
}

func model() string { return "claude-test" }

func TestSynthesizeFixesBrokenSource(t *testing.T) {
	mock := testutil.NewMockCompleter(testutil.TextResponse(testutil.JSXFence(goodSource)))
	p := NewPipeline(mock, model, DefaultFixAttempts)
	log := &statusLog{}

	res, err := p.Synthesize(t.Context(), testutil.JSXFence(brokenSource), nil, log.record)
	require.NoError(t, err)
	assert.Equal(t, goodSource, res.Source)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "ok", res.Component.Tree().TextContent())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, FixSystemPrompt, reqs[0].System)
	assert.Equal(t, "claude-test", reqs[0].Model)
	assert.Equal(t, 12000, reqs[0].MaxTokens)
	require.NotNil(t, reqs[0].Thinking)
	assert.Equal(t, 6000, reqs[0].Thinking.BudgetTokens)
	user := reqs[0].Messages[0].Text("")
	assert.True(t, strings.HasPrefix(user, "Error: "))
	assert.Contains(t, user, "```jsx\n"+brokenSource+"\n```")
	assert.True(t, strings.HasSuffix(user, "Fix it."))

	require.Len(t, log.lines, 2)
	assert.Equal(t, "compiling...", log.lines[0])
	assert.True(t, strings.HasPrefix(log.lines[1], "error: "))
	assert.True(t, strings.HasSuffix(log.lines[1], "fix 1/3"))
}

func TestSynthesizeRequestsExplicitComponent(t *testing.T) {
	mock := testutil.NewMockCompleter(testutil.TextResponse(testutil.JSXFence(goodSource)))
	p := NewPipeline(mock, model, DefaultFixAttempts)
	log := &statusLog{}

	res, err := p.Synthesize(t.Context(), "Hello! I am ready.", nil, log.record)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempts)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ExplicitSystemPrompt, reqs[0].System)
	assert.Equal(t, ExplicitUserPrompt, reqs[0].Messages[0].Text(""))
	assert.Equal(t, 8000, reqs[0].Thinking.BudgetTokens)
	assert.Equal(t, []string{"no JSX — requesting explicit component...", "compiling..."}, log.lines)
}

func TestSynthesizeFailures(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		replies   []string
		wantCalls int
		wantStage Stage
		lastLine  string
	}{
		{
			name:      "still no code",
			text:      "no code here",
			replies:   []string{"still just words"},
			wantCalls: 1,
			wantStage: StageExtract,
			lastLine:  "still no JSX",
		},
		{
			name:      "fix reply without code stops retries",
			text:      testutil.JSXFence(brokenSource),
			replies:   []string{"I cannot help with that."},
			wantCalls: 1,
			wantStage: StageCompile,
			lastLine:  "failed after 1 retries",
		},
		{
			name:      "attempts exhausted",
			text:      testutil.JSXFence(brokenSource),
			replies:   []string{testutil.JSXFence(brokenSource), testutil.JSXFence(brokenSource), testutil.JSXFence(brokenSource)},
			wantCalls: 3,
			wantStage: StageCompile,
			lastLine:  "failed after 3 retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCompleter()
			for _, r := range tt.replies {
				mock.Responses = append(mock.Responses, testutil.TextResponse(r))
			}
			p := NewPipeline(mock, model, DefaultFixAttempts)
			log := &statusLog{}

			res, err := p.Synthesize(t.Context(), tt.text, nil, log.record)
			assert.Nil(t, res)
			var f *Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tt.wantStage, f.Stage)
			assert.Equal(t, tt.wantCalls, mock.Calls())
			assert.Equal(t, tt.lastLine, log.lines[len(log.lines)-1])
			assert.Positive(t, log.errors)
		})
	}
}

func TestSynthesizePropagatesTransportErrors(t *testing.T) {
	mock := &testutil.MockCompleter{Errors: []error{errors.New("API 529: overloaded")}}
	p := NewPipeline(mock, model, DefaultFixAttempts)

	_, err := p.Synthesize(t.Context(), testutil.JSXFence(brokenSource), nil, nil)
	assert.EqualError(t, err, "API 529: overloaded")
	var f *Failure
	assert.False(t, errors.As(err, &f))
}

func withExecLimit(t *testing.T, limit time.Duration) {
	t.Helper()
	old := execLimit
	execLimit = limit
	t.Cleanup(func() { execLimit = old })
}

func TestRunawayScriptIsInterrupted(t *testing.T) {
	withExecLimit(t, 200*time.Millisecond)

	tests := []struct {
		name string
		src  string
	}{
		{name: "render loop", src: "function App() { while (true) {} return <div />; }"},
		{name: "module body loop", src: "for (;;) {}\nfunction App() { return <div />; }"},
		{name: "effect loop", src: "function App() { React.useEffect(() => { while (true) {} }, []); return <div />; }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan error, 1)
			go func() {
				_, err := Build(tt.src, nil)
				done <- err
			}()

			select {
			case err := <-done:
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrExecTimeout)
				var f *Failure
				require.True(t, errors.As(err, &f))
				assert.Equal(t, StageInstantiate, f.Stage)
			case <-time.After(5 * time.Second):
				t.Fatal("Build did not return")
			}
		})
	}
}

func TestRunawayHandlerIsInterrupted(t *testing.T) {
	withExecLimit(t, 200*time.Millisecond)

	src := `function App() {
  const [n, setN] = React.useState(0);
  return (
    <div>
      <button onClick={() => { while (true) {} }}>spin</button>
      <button onClick={() => setN(n + 1)}>{"n=" + n}</button>
    </div>
  );
}`
	c, err := Build(src, nil)
	require.NoError(t, err)

	items := c.Tree().Interactives()
	require.Len(t, items, 2)
	spin, _ := items[0].Handler("onClick")
	_, err = c.Dispatch(spin, Event{Type: "click"})
	assert.ErrorIs(t, err, ErrExecTimeout)

	// the runtime stays usable after an interrupt
	tree, err := c.Render()
	require.NoError(t, err)
	assert.Contains(t, tree.TextContent(), "n=0")
}

func TestSuspendedHostCallsDoNotCount(t *testing.T) {
	withExecLimit(t, 200*time.Millisecond)

	binder := BinderFunc(func(vm *goja.Runtime, _, _ goja.Value) (*goja.Object, error) {
		caps := vm.NewObject()
		return caps, caps.Set("slow", func() string {
			defer Suspend(vm)()
			time.Sleep(500 * time.Millisecond)
			return "done"
		})
	})

	c, err := Build("function App(caps) { return <b>{caps.slow()}</b>; }", binder)
	require.NoError(t, err)
	assert.Equal(t, "done", c.Tree().TextContent())
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 80, want: "short"},
		{in: "abcdef", n: 3, want: "abc"},
		{in: "héllo wörld", n: 2, want: "hé"},
		{in: "日本語のエラー", n: 3, want: "日本語"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got)
		assert.True(t, utf8.ValidString(got))
	}
}
