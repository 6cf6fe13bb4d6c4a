package agent

import (
	"context"

	"hermitcrab/provider"
)

const (
	DefaultMaxTokens      = 4096
	DefaultThinkingBudget = 4000
)

// LLMOptions are the per-call overrides callLLM accepts. Zero values
// take the defaults.
type LLMOptions struct {
	Model          string
	MaxTokens      int
	System         string
	Tools          []any
	NoThinking     bool
	ThinkingBudget int
	Temperature    *float64
	MaxLoops       int
	OnStatus       func(string)
}

// Defaults supplies the values an unset option falls back to. The
// functions are read on every call so a late probe or a rewritten
// constitution take effect immediately.
type Defaults struct {
	Model        func() string
	Constitution func() string
	Tools        func() []any
}

// LLM is the callLLM capability: a tool loop with kernel defaults.
type LLM struct {
	loop     *Loop
	defaults Defaults
}

// NewLLM creates an LLM over loop.
func NewLLM(loop *Loop, defaults Defaults) *LLM {
	return &LLM{loop: loop, defaults: defaults}
}

// Loop returns the underlying tool loop.
func (l *LLM) Loop() *Loop {
	return l.loop
}

// Request builds the request callLLM would send for messages and opts.
func (l *LLM) Request(messages []provider.Message, opts LLMOptions) *provider.Request {
	req := &provider.Request{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		Messages:  messages,
		Tools:     opts.Tools,
	}
	if req.Model == "" && l.defaults.Model != nil {
		req.Model = l.defaults.Model()
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if opts.System != "" {
		req.System = opts.System
	} else if l.defaults.Constitution != nil {
		if c := l.defaults.Constitution(); c != "" {
			req.System = c
		}
	}
	if req.Tools == nil && l.defaults.Tools != nil {
		req.Tools = l.defaults.Tools()
	}
	if !opts.NoThinking {
		budget := opts.ThinkingBudget
		if budget <= 0 {
			budget = DefaultThinkingBudget
		}
		req.Thinking = provider.EnabledThinking(budget)
	}
	req.Temperature = opts.Temperature
	return req
}

// Call runs the loop and returns the final response.
func (l *LLM) Call(ctx context.Context, messages []provider.Message, opts LLMOptions) (*provider.Response, error) {
	res, err := l.loop.Run(ctx, l.Request(messages, opts), RunOptions{MaxLoops: opts.MaxLoops, OnStatus: opts.OnStatus})
	if err != nil {
		return nil, err
	}
	return res.Response, nil
}

// Text runs the loop and joins the response's text blocks with newlines.
func (l *LLM) Text(ctx context.Context, messages []provider.Message, opts LLMOptions) (string, error) {
	resp, err := l.Call(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
