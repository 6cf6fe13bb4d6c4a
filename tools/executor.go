package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"hermitcrab/config"
)

var ErrUnknownTool = errors.New("unknown tool")

// Executor dispatches tool calls by name. It never fails: unknown tools,
// bad input and handler errors all come back as text.
type Executor struct {
	tools map[string]Tool
	order []string
}

func NewExecutor(tools ...Tool) *Executor {
	e := &Executor{tools: make(map[string]Tool)}
	for _, t := range tools {
		e.Register(t)
	}
	return e
}

// Register adds or replaces a tool.
func (e *Executor) Register(t Tool) {
	if _, ok := e.tools[t.Name]; !ok {
		e.order = append(e.order, t.Name)
	}
	e.tools[t.Name] = t
}

// Has reports whether name is handled locally.
func (e *Executor) Has(name string) bool {
	_, ok := e.tools[name]
	return ok
}

// Tools returns the registered tools in registration order.
func (e *Executor) Tools() []Tool {
	out := make([]Tool, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.tools[name])
	}
	return out
}

// Params returns request definitions for the named tools, or all when
// names is empty.
func (e *Executor) Params(names ...string) []anthropic.ToolUnionParam {
	if len(names) == 0 {
		names = e.order
	}
	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		if t, ok := e.tools[name]; ok {
			out = append(out, t.Param())
		}
	}
	return out
}

// Execute runs name with input and returns the tool_result text.
func (e *Executor) Execute(ctx context.Context, name string, input json.RawMessage) string {
	t, ok := e.tools[name]
	if !ok {
		return "Unknown tool: " + name
	}

	out, err := runSafely(ctx, t, input)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Tools] %s failed: %v", name, err)
		}
		return fmt.Sprintf("Tool error (%s): %v", name, err)
	}
	return out
}

// Call runs name with input and reports failures as errors.
func (e *Executor) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := e.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return runSafely(ctx, t, input)
}

func runSafely(ctx context.Context, t Tool, input json.RawMessage) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Function(ctx, input)
}
