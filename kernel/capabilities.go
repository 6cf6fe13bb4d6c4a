package kernel

import (
	"fmt"
	"sort"

	"github.com/dop251/goja"

	"hermitcrab/agent"
	"hermitcrab/memfs"
	"hermitcrab/provider"
	"hermitcrab/pscale"
	"hermitcrab/synth"
)

// llmOptions mirrors the options object callLLM takes in the interface.
type llmOptions struct {
	Model          string   `json:"model"`
	MaxTokens      int      `json:"max_tokens"`
	System         string   `json:"system"`
	Tools          []any    `json:"tools"`
	Thinking       *bool    `json:"thinking"`
	ThinkingBudget int      `json:"thinkingBudget"`
	Temperature    *float64 `json:"temperature"`
	MaxLoops       int      `json:"maxLoops"`
	Raw            bool     `json:"raw"`
}

// Bind builds the capabilities object. Calls that reach the model block
// the runtime and return settled promises.
func (k *Kernel) Bind(vm *goja.Runtime, react, reactDOM goja.Value) (*goja.Object, error) {
	caps := vm.NewObject()

	defaultTools, err := synth.ToJS(vm, k.DefaultTools())
	if err != nil {
		return nil, err
	}

	values := map[string]any{
		"callLLM":          k.jsCallLLM(vm),
		"callAPI":          k.jsCallAPI(vm),
		"callWithToolLoop": k.jsCallWithToolLoop(vm),
		"constitution":     k.Constitution(),
		"localStorage":     k.jsLocalStorage(vm),
		"pscale":           k.jsPscale(vm),
		"memory":           k.jsMemory(vm),
		"React":            react,
		"ReactDOM":         reactDOM,
		"DEFAULT_TOOLS":    defaultTools,
		"version":          Version,
		"getSource":        k.jsGetSource(vm),
		"recompile":        k.jsRecompile(vm),
	}
	for name, v := range values {
		if err := caps.Set(name, v); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	return caps, nil
}

type nativeFunc = func(goja.FunctionCall) goja.Value

func (k *Kernel) jsCallLLM(vm *goja.Runtime) nativeFunc {
	return func(call goja.FunctionCall) goja.Value {
		var messages []provider.Message
		if err := synth.FromJS(vm, call.Argument(0), &messages); err != nil {
			return synth.Rejected(vm, fmt.Errorf("callLLM: invalid messages: %w", err))
		}
		var opts llmOptions
		if err := synth.FromJS(vm, call.Argument(1), &opts); err != nil {
			return synth.Rejected(vm, fmt.Errorf("callLLM: invalid options: %w", err))
		}

		o := agent.LLMOptions{
			Model:          opts.Model,
			MaxTokens:      opts.MaxTokens,
			System:         opts.System,
			Tools:          opts.Tools,
			NoThinking:     opts.Thinking != nil && !*opts.Thinking,
			ThinkingBudget: opts.ThinkingBudget,
			Temperature:    opts.Temperature,
			MaxLoops:       opts.MaxLoops,
			OnStatus:       statusCallback(vm, call.Argument(1)),
		}
		resume := synth.Suspend(vm)
		resp, err := k.llm.Call(k.baseContext(), messages, o)
		resume()
		if err != nil {
			return synth.Rejected(vm, err)
		}
		if opts.Raw {
			return synth.Resolved(vm, resp)
		}
		return synth.Resolved(vm, resp.Text())
	}
}

func (k *Kernel) jsCallAPI(vm *goja.Runtime) nativeFunc {
	return func(call goja.FunctionCall) goja.Value {
		var req provider.Request
		if err := synth.FromJS(vm, call.Argument(0), &req); err != nil {
			return synth.Rejected(vm, fmt.Errorf("callAPI: invalid params: %w", err))
		}
		resume := synth.Suspend(vm)
		resp, err := k.completer.Complete(k.baseContext(), &req)
		resume()
		return synth.Settle(vm, resp, err)
	}
}

func (k *Kernel) jsCallWithToolLoop(vm *goja.Runtime) nativeFunc {
	return func(call goja.FunctionCall) goja.Value {
		var req provider.Request
		if err := synth.FromJS(vm, call.Argument(0), &req); err != nil {
			return synth.Rejected(vm, fmt.Errorf("callWithToolLoop: invalid params: %w", err))
		}
		maxLoops := 0
		if v := call.Argument(1); !goja.IsUndefined(v) && !goja.IsNull(v) {
			maxLoops = int(v.ToInteger())
		}
		var onStatus func(string)
		if fn, ok := goja.AssertFunction(call.Argument(2)); ok {
			onStatus = func(msg string) { _, _ = fn(goja.Undefined(), vm.ToValue(msg)) }
		}

		resume := synth.Suspend(vm)
		res, err := k.llm.Loop().Run(k.baseContext(), &req, agent.RunOptions{MaxLoops: maxLoops, OnStatus: onStatus})
		resume()
		if err != nil {
			return synth.Rejected(vm, err)
		}
		return synth.Resolved(vm, res.Response)
	}
}

// statusCallback pulls onStatus out of an options object.
func statusCallback(vm *goja.Runtime, opts goja.Value) func(string) {
	obj, ok := opts.(*goja.Object)
	if !ok {
		return nil
	}
	fn, ok := goja.AssertFunction(obj.Get("onStatus"))
	if !ok {
		return nil
	}
	return func(msg string) { _, _ = fn(goja.Undefined(), vm.ToValue(msg)) }
}

func nullable(vm *goja.Runtime, s string, ok bool) goja.Value {
	if !ok {
		return goja.Null()
	}
	return vm.ToValue(s)
}

// Go functions below report failures through a trailing error, which the
// runtime throws as a JS exception.

func (k *Kernel) jsLocalStorage(vm *goja.Runtime) *goja.Object {
	ls := vm.NewObject()
	keys := func() ([]string, error) {
		all, err := k.kv.Keys("")
		sort.Strings(all)
		return all, err
	}

	_ = ls.Set("getItem", func(key string) (goja.Value, error) {
		v, ok, err := k.kv.Get(key)
		return nullable(vm, v, ok), err
	})
	_ = ls.Set("setItem", k.kv.Set)
	_ = ls.Set("removeItem", k.kv.Delete)
	_ = ls.Set("key", func(i int) (goja.Value, error) {
		all, err := keys()
		if err != nil || i < 0 || i >= len(all) {
			return goja.Null(), err
		}
		return vm.ToValue(all[i]), nil
	})
	_ = ls.Set("clear", func() error {
		all, err := keys()
		if err != nil {
			return err
		}
		for _, key := range all {
			if err := k.kv.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	length := vm.ToValue(func() (int, error) {
		all, err := keys()
		return len(all), err
	})
	_ = ls.DefineAccessorProperty("length", length, nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return ls
}

func (k *Kernel) jsPscale(vm *goja.Runtime) *goja.Object {
	ps := vm.NewObject()
	store := k.pscale
	data := func(v any, err error) (goja.Value, error) {
		if err != nil {
			return nil, err
		}
		return synth.ToJS(vm, v)
	}

	_ = ps.Set("read", func(coord string) (goja.Value, error) {
		v, ok, err := store.Read(coord)
		return nullable(vm, v, ok), err
	})
	_ = ps.Set("write", store.Write)
	_ = ps.Set("delete", store.Delete)
	_ = ps.Set("list", func(prefix string) (goja.Value, error) {
		coords, err := store.List(prefix)
		if coords == nil {
			coords = []string{}
		}
		return data(coords, err)
	})
	_ = ps.Set("nextMemory", func() (goja.Value, error) {
		return data(store.NextMemory())
	})
	_ = ps.Set("context", func(coord string) (goja.Value, error) {
		chain := pscale.ContextChain(coord)
		if chain == nil {
			chain = []string{}
		}
		return data(chain, nil)
	})
	_ = ps.Set("contextContent", func(coord string) (goja.Value, error) {
		return data(store.ContextContent(coord))
	})
	return ps
}

func (k *Kernel) jsMemory(vm *goja.Runtime) nativeFunc {
	return func(call goja.FunctionCall) goja.Value {
		var cmd memfs.Command
		if err := synth.FromJS(vm, call.Argument(0), &cmd); err != nil {
			return vm.ToValue(fmt.Sprintf("Memory error: %v", err))
		}
		return vm.ToValue(k.memory.Dispatch(cmd))
	}
}

func (k *Kernel) jsGetSource(vm *goja.Runtime) nativeFunc {
	return func(goja.FunctionCall) goja.Value {
		if src := k.Source(); src != "" {
			return vm.ToValue(src)
		}
		return vm.ToValue("(no source available)")
	}
}

type recompileResult struct {
	Success bool   `json:"success"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (k *Kernel) jsRecompile(vm *goja.Runtime) nativeFunc {
	return func(call goja.FunctionCall) goja.Value {
		var res recompileResult
		src, ok := call.Argument(0).Export().(string)
		if !ok {
			res.Error = ErrRecompileInput.Error()
		} else if version, err := k.recompileSuspended(vm, src); err != nil {
			res.Error = err.Error()
		} else {
			res = recompileResult{Success: true, Version: version}
		}
		out, err := synth.ToJS(vm, res)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return out
	}
}

// recompileSuspended builds the new interface without the calling
// runtime's execution limit ticking.
func (k *Kernel) recompileSuspended(vm *goja.Runtime, src string) (string, error) {
	defer synth.Suspend(vm)()
	return k.Recompile(src)
}
