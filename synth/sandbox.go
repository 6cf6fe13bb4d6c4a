package synth

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"hermitcrab/config"
)

//go:embed react_shim.js
var reactShim string

var shimProgram = goja.MustCompile("react_shim.js", reactShim, false)

// maxRenderPasses bounds the re-renders one Render performs while state
// updates from effects and timers keep arriving.
const maxRenderPasses = 10

// ErrNoComponent is returned when the module exports nothing callable.
var ErrNoComponent = errors.New("No React component exported.")

// Binder builds the capabilities object a component receives as its props.
// It runs once per runtime, before the module body executes.
type Binder interface {
	Bind(vm *goja.Runtime, react, reactDOM goja.Value) (*goja.Object, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(vm *goja.Runtime, react, reactDOM goja.Value) (*goja.Object, error)

func (f BinderFunc) Bind(vm *goja.Runtime, react, reactDOM goja.Value) (*goja.Object, error) {
	return f(vm, react, reactDOM)
}

// Event is the payload a dispatched handler receives.
type Event struct {
	Type   string      `json:"type,omitempty"`
	Key    string      `json:"key,omitempty"`
	Target EventTarget `json:"target"`
}

type EventTarget struct {
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

type host struct {
	render      goja.Callable
	dispatch    goja.Callable
	flushTimers goja.Callable
	isDirty     goja.Callable
}

// Component is a mounted interface inside its own runtime. A goja runtime
// is single threaded, so every entry point holds mu.
type Component struct {
	mu    sync.Mutex
	vm    *goja.Runtime
	watch *watchdog
	host  host
	tree  *Node
}

// Instantiate evaluates compiled module code, mounts its exported
// component with the bound capabilities as props and performs one trial
// render. Errors from any of those steps are returned as *Failure.
func Instantiate(code string, binder Binder) (c *Component, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, &Failure{Stage: StageInstantiate, Err: fmt.Errorf("runtime panic: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	watch, err := newWatchdog(vm)
	if err != nil {
		return nil, &Failure{Stage: StageInstantiate, Err: err}
	}
	watch.start()
	defer watch.stop()

	if err := installConsole(vm); err != nil {
		return nil, &Failure{Stage: StageInstantiate, Err: err}
	}
	if _, err := vm.RunProgram(shimProgram); err != nil {
		return nil, &Failure{Stage: StageInstantiate, Err: fmt.Errorf("failed to load react shim: %w", err)}
	}

	h, err := bindHost(vm)
	if err != nil {
		return nil, &Failure{Stage: StageInstantiate, Err: err}
	}
	c = &Component{vm: vm, watch: watch, host: h}

	if err := c.mount(code, binder); err != nil {
		return nil, &Failure{Stage: StageInstantiate, Err: err}
	}
	if _, err := c.render(); err != nil {
		stage := StageRender
		if errors.Is(err, ErrExecTimeout) {
			stage = StageInstantiate
		}
		return nil, &Failure{Stage: stage, Err: err}
	}
	return c, nil
}

func bindHost(vm *goja.Runtime) (host, error) {
	obj := vm.Get("__hc")
	if obj == nil || goja.IsUndefined(obj) {
		return host{}, errors.New("react shim did not install its host hooks")
	}
	hc := obj.ToObject(vm)
	var h host
	for name, dst := range map[string]*goja.Callable{
		"render":      &h.render,
		"dispatch":    &h.dispatch,
		"flushTimers": &h.flushTimers,
		"isDirty":     &h.isDirty,
	} {
		fn, ok := goja.AssertFunction(hc.Get(name))
		if !ok {
			return host{}, fmt.Errorf("react shim is missing %s", name)
		}
		*dst = fn
	}
	return h, nil
}

func (c *Component) mount(code string, binder Binder) error {
	vm := c.vm
	wrapper := "(function(React, ReactDOM, capabilities, module, exports){\n" + code + "\n})"
	prog, err := goja.Compile("component.js", wrapper, false)
	if err != nil {
		return err
	}
	v, err := vm.RunProgram(prog)
	if err != nil {
		return jsError(err)
	}
	factory, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("module wrapper is not callable")
	}

	react := vm.Get("React")
	reactDOM := vm.Get("ReactDOM")
	caps := vm.NewObject()
	if binder != nil {
		if caps, err = binder.Bind(vm, react, reactDOM); err != nil {
			return fmt.Errorf("failed to bind capabilities: %w", err)
		}
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if _, err := factory(goja.Undefined(), react, reactDOM, caps, module, exports); err != nil {
		return jsError(err)
	}

	component := exported(module)
	if _, ok := goja.AssertFunction(component); !ok {
		return ErrNoComponent
	}

	createElement, ok := goja.AssertFunction(react.ToObject(vm).Get("createElement"))
	if !ok {
		return errors.New("React.createElement is not callable")
	}
	el, err := createElement(goja.Undefined(), component, caps)
	if err != nil {
		return jsError(err)
	}
	mount, _ := goja.AssertFunction(vm.Get("__hc").ToObject(vm).Get("mount"))
	if _, err := mount(goja.Undefined(), el); err != nil {
		return jsError(err)
	}
	return nil
}

// exported resolves module.exports.default || module.exports.
func exported(module *goja.Object) goja.Value {
	exp := module.Get("exports")
	if exp == nil || goja.IsUndefined(exp) || goja.IsNull(exp) {
		return nil
	}
	if obj, ok := exp.(*goja.Object); ok {
		if d := obj.Get("default"); d != nil && d.ToBoolean() {
			return d
		}
	}
	return exp
}

// Render re-renders until state settles and returns the tree.
func (c *Component) Render() (*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watch.start()
	defer c.watch.stop()
	return c.render()
}

// Tree returns the most recent render without running the component.
func (c *Component) Tree() *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree
}

// Dispatch invokes the handler with the given id from the latest render
// and re-renders. Async handlers have settled by the time it returns
// when the capabilities they await resolve synchronously.
func (c *Component) Dispatch(id int, ev Event) (tree *Node, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer recoverInto(&err)
	c.watch.start()
	defer c.watch.stop()

	arg, err := ToJS(c.vm, ev)
	if err != nil {
		return nil, err
	}
	if _, err := c.host.dispatch(goja.Undefined(), c.vm.ToValue(id), arg); err != nil {
		return nil, jsError(err)
	}
	return c.render()
}

func (c *Component) render() (tree *Node, err error) {
	defer recoverInto(&err)

	var out goja.Value
	for pass := 0; ; pass++ {
		if out, err = c.host.render(goja.Undefined()); err != nil {
			return nil, jsError(err)
		}
		if _, err = c.host.flushTimers(goja.Undefined()); err != nil {
			return nil, jsError(err)
		}
		dirty, err := c.host.isDirty(goja.Undefined())
		if err != nil {
			return nil, jsError(err)
		}
		if !dirty.ToBoolean() || pass+1 >= maxRenderPasses {
			break
		}
	}

	if tree, err = parseTree(out.String()); err != nil {
		return nil, err
	}
	c.tree = tree
	return tree, nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("runtime panic: %v", r)
	}
}

// jsError turns a thrown value into an error carrying its JS string form,
// e.g. "TypeError: x is not a function".
func jsError(err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		return fmt.Errorf("%w (script ran longer than %s without yielding)", ErrExecTimeout, execLimit)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if v := ex.Value(); v != nil {
			return errors.New(v.String())
		}
	}
	return err
}

func installConsole(vm *goja.Runtime) error {
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		fn := func(call goja.FunctionCall) goja.Value {
			if config.DebugLog != nil {
				args := make([]any, len(call.Arguments))
				for i, a := range call.Arguments {
					args[i] = a.String()
				}
				config.DebugLog.Printf("[Synth] console.%s %s", level, fmt.Sprint(args...))
			}
			return goja.Undefined()
		}
		if err := console.Set(level, fn); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}
