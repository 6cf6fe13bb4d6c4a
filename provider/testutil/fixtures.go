package testutil

import (
	"encoding/json"

	"hermitcrab/provider"
)

// TextResponse returns an end_turn response with one text block
func TextResponse(text string) *provider.Response {
	return &provider.Response{
		Type:       "message",
		Role:       "assistant",
		Content:    []provider.ContentBlock{provider.TextBlock(text)},
		StopReason: provider.StopEndTurn,
	}
}

// ToolCall is one tool_use block to script
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// ToolUseResponse returns a tool_use response, optionally led by text
func ToolUseResponse(text string, calls ...ToolCall) *provider.Response {
	var blocks []provider.ContentBlock
	if text != "" {
		blocks = append(blocks, provider.TextBlock(text))
	}
	for _, c := range calls {
		input := c.Input
		if input == "" {
			input = "{}"
		}
		blocks = append(blocks, provider.ContentBlock{
			Type:  provider.BlockToolUse,
			ID:    c.ID,
			Name:  c.Name,
			Input: json.RawMessage(input),
		})
	}
	return &provider.Response{
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		StopReason: provider.StopToolUse,
	}
}

// DecodedResponse parses a raw vendor body, so blocks carry raw JSON
// the way they do off the wire. It panics on malformed input.
func DecodedResponse(body string) *provider.Response {
	resp, err := provider.DecodeResponse([]byte(body))
	if err != nil {
		panic(err)
	}
	return resp
}

// JSXFence wraps src in a jsx code fence
func JSXFence(src string) string {
	return "```jsx\n" + src + "\n```"
}
