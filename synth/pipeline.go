package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hermitcrab/config"
	"hermitcrab/provider"
)

// Stage names the pipeline step a Failure came from.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageCompile     Stage = "compile"
	StageInstantiate Stage = "instantiate"
	StageRender      Stage = "render"
)

// Failure is a synthesis error. Source is the code that failed, if any.
type Failure struct {
	Stage  Stage
	Err    error
	Source string
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Build runs prepare, compile and instantiate on extracted source.
func Build(src string, binder Binder) (*Component, error) {
	code, err := Compile(Prepare(src))
	if err != nil {
		return nil, &Failure{Stage: StageCompile, Err: err, Source: src}
	}
	c, err := Instantiate(code, binder)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			f.Source = src
		}
		return nil, err
	}
	return c, nil
}

const (
	DefaultFixAttempts = 3

	requestMaxTokens = 12000
	explicitThinking = 8000
	fixThinking      = 6000
)

// PropNames are the capabilities a generated component receives.
const PropNames = "callLLM, callAPI, callWithToolLoop, constitution, localStorage, pscale, memory, " +
	"React, ReactDOM, DEFAULT_TOOLS, version, getSource, recompile"

const ExplicitSystemPrompt = "Output ONLY a React component inside a ```jsx code fence. No prose."

const ExplicitUserPrompt = "Generate a React chat interface. Props: " + PropNames +
	". Dark theme, inline styles, React hooks from global React."

var FixSystemPrompt = strings.Join([]string{
	"Fix this React component. Output ONLY corrected code in a ```jsx fence.",
	"RULES: Inline styles. React hooks via const { useState, useRef, useEffect } = React;",
	"No imports. No export default. Props: { " + PropNames + " }.",
}, "\n")

// FixPrompt is the user turn of a fix request.
func FixPrompt(errMsg, src string) string {
	return "Error: " + errMsg + "\n\nCode:\n```jsx\n" + src + "\n```\n\nFix it."
}

// StatusFunc receives pipeline progress.
type StatusFunc func(msg string, isError bool)

// Pipeline drives generate, compile, execute and retry.
type Pipeline struct {
	completer   provider.Completer
	model       func() string
	fixAttempts int
}

// NewPipeline creates a pipeline. model is read per request so a late
// probe result applies.
func NewPipeline(completer provider.Completer, model func() string, fixAttempts int) *Pipeline {
	if fixAttempts < 0 {
		fixAttempts = DefaultFixAttempts
	}
	return &Pipeline{completer: completer, model: model, fixAttempts: fixAttempts}
}

// Result is a live component and the source it was built from.
type Result struct {
	Component *Component
	Source    string
	Attempts  int
}

// Synthesize turns a model reply into a running component. When the reply
// holds no code it asks once for explicit output; when building fails it
// asks for fixes up to the configured number of attempts. Failures to
// reach the model are returned as they are; build failures as *Failure.
func (p *Pipeline) Synthesize(ctx context.Context, text string, binder Binder, onStatus StatusFunc) (*Result, error) {
	status := func(msg string, isError bool) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Synth] %s", msg)
		}
		if onStatus != nil {
			onStatus(msg, isError)
		}
	}

	src, ok := Extract(text)
	if !ok {
		status("no JSX — requesting explicit component...", false)
		reply, err := p.ask(ctx, ExplicitSystemPrompt, ExplicitUserPrompt, explicitThinking)
		if err != nil {
			return nil, err
		}
		if src, ok = Extract(reply); !ok {
			status("still no JSX", true)
			return nil, &Failure{Stage: StageExtract, Err: errors.New("no component source in response")}
		}
	}

	status("compiling...", false)
	comp, err := Build(src, binder)
	attempts := 0
	for err != nil && attempts < p.fixAttempts {
		attempts++
		msg := err.Error()
		status(fmt.Sprintf("error: %s... — fix %d/%d", truncate(msg, 80), attempts, p.fixAttempts), true)

		reply, askErr := p.ask(ctx, FixSystemPrompt, FixPrompt(msg, src), fixThinking)
		if askErr != nil {
			return nil, askErr
		}
		fixed, ok := Extract(reply)
		if !ok {
			break
		}
		src = fixed
		comp, err = Build(src, binder)
	}
	if err != nil {
		status(fmt.Sprintf("failed after %d retries", attempts), true)
		return nil, err
	}
	return &Result{Component: comp, Source: src, Attempts: attempts}, nil
}

func (p *Pipeline) ask(ctx context.Context, system, user string, thinking int) (string, error) {
	req := &provider.Request{
		MaxTokens: requestMaxTokens,
		System:    system,
		Messages:  []provider.Message{provider.TextMessage("user", user)},
		Thinking:  provider.EnabledThinking(thinking),
	}
	if p.model != nil {
		req.Model = p.model()
	}
	resp, err := p.completer.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
