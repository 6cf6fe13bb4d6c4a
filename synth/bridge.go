package synth

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// ToJS converts a Go value to plain JS data by way of JSON, so components
// see ordinary objects and arrays rather than wrapped Go values.
func ToJS(vm *goja.Runtime, v any) (goja.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for runtime: %w", err)
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("JSON.parse is unavailable")
	}
	out, err := parse(goja.Undefined(), vm.ToValue(string(data)))
	if err != nil {
		return nil, jsError(err)
	}
	return out, nil
}

// FromJS decodes a JS value into out by way of JSON. Undefined and null
// leave out untouched.
func FromJS(vm *goja.Runtime, v goja.Value, out any) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if s, ok := v.Export().(string); ok {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return fmt.Errorf("JSON.stringify is unavailable")
	}
	s, err := stringify(goja.Undefined(), v)
	if err != nil {
		return jsError(err)
	}
	if goja.IsUndefined(s) {
		return nil
	}
	return json.Unmarshal([]byte(s.String()), out)
}

// Resolved returns a promise already fulfilled with v converted to JS.
func Resolved(vm *goja.Runtime, v any) goja.Value {
	p, resolve, reject := vm.NewPromise()
	if jv, err := ToJS(vm, v); err != nil {
		_ = reject(vm.NewGoError(err))
	} else {
		_ = resolve(jv)
	}
	return vm.ToValue(p)
}

// Rejected returns a promise rejected with err as a JS Error.
func Rejected(vm *goja.Runtime, err error) goja.Value {
	p, _, reject := vm.NewPromise()
	_ = reject(vm.NewGoError(err))
	return vm.ToValue(p)
}

// Settle resolves or rejects depending on err.
func Settle(vm *goja.Runtime, v any, err error) goja.Value {
	if err != nil {
		return Rejected(vm, err)
	}
	return Resolved(vm, v)
}
