// Package agent runs the tool-use loop against a Completer and builds the
// chat turn on top of it.
package agent

import (
	"context"
	"encoding/json"

	"hermitcrab/config"
	"hermitcrab/provider"
	"hermitcrab/tools"
)

// DefaultMaxLoops bounds tool rounds per call
const DefaultMaxLoops = 10

// ToolRunner executes one client tool and always answers with text.
type ToolRunner interface {
	Execute(ctx context.Context, name string, input json.RawMessage) string
}

// Loop submits requests and answers tool_use rounds until the model stops
// asking, or the round budget runs out.
type Loop struct {
	completer provider.Completer
	tools     ToolRunner
}

// RunOptions tune one Run call
type RunOptions struct {
	MaxLoops int
	OnStatus func(string)
}

// Result is the final response plus every message the loop appended.
type Result struct {
	Response *provider.Response
	Messages []provider.Message
	Loops    int
}

// NewLoop creates a loop over completer and tools.
func NewLoop(completer provider.Completer, tools ToolRunner) *Loop {
	return &Loop{completer: completer, tools: tools}
}

// Run submits req and drives tool rounds. req is not modified; each
// resubmission carries the grown conversation. Hitting the round limit
// returns the last response as-is. Transport and vendor errors propagate.
func (l *Loop) Run(ctx context.Context, req *provider.Request, opts RunOptions) (*Result, error) {
	maxLoops := opts.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	current := req.Clone()
	result := &Result{}

	resp, err := l.completer.Complete(ctx, current)
	if err != nil {
		return nil, err
	}

	paused := false
	for {
		if resp.StopReason == provider.StopPauseTurn {
			// one resume per pause; a second pause in a row ends the call
			if paused {
				break
			}
			paused = true
			l.append(current, result, provider.BlocksMessage("assistant", resp.Content))
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Loop] pause_turn, resuming")
			}
			resp, err = l.completer.Complete(ctx, current)
			if err != nil {
				return nil, err
			}
			continue
		}
		paused = false

		if resp.StopReason != provider.StopToolUse || result.Loops >= maxLoops {
			break
		}

		uses := resp.ToolUses()
		if len(uses) == 0 {
			break
		}
		result.Loops++

		for _, use := range uses {
			if opts.OnStatus != nil {
				opts.OnStatus(tools.StatusLine(use.Name, use.Input))
			}
		}

		results := make([]provider.ContentBlock, 0, len(uses))
		for _, use := range uses {
			out := l.tools.Execute(ctx, use.Name, use.Input)
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Loop] round %d tool %s -> %s", result.Loops, use.Name, preview(out, 200))
			}
			results = append(results, provider.ToolResultBlock(use.ID, out))
		}

		l.append(current, result,
			provider.BlocksMessage("assistant", resp.Content),
			provider.BlocksMessage("user", results),
		)

		resp, err = l.completer.Complete(ctx, current)
		if err != nil {
			return nil, err
		}
	}

	result.Response = resp
	return result, nil
}

func (l *Loop) append(req *provider.Request, result *Result, msgs ...provider.Message) {
	req.Messages = append(req.Messages, msgs...)
	result.Messages = append(result.Messages, msgs...)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
