package provider

import (
	"strings"

	"github.com/openai/openai-go/v3"
)

// FlatMessage is a role and plain text, for backends without content blocks.
type FlatMessage struct {
	Role string
	Text string
}

// FlattenMessages reduces block content to text. Tool results are kept as
// text so a local model still sees what a tool returned; thinking and
// tool_use blocks are dropped. Messages that end up empty are skipped.
func FlattenMessages(messages []Message) []FlatMessage {
	out := make([]FlatMessage, 0, len(messages))
	for _, m := range messages {
		blocks, err := m.Blocks()
		if err != nil {
			continue
		}

		var parts []string
		for _, b := range blocks {
			switch b.Type {
			case BlockText:
				parts = append(parts, b.Text)
			case BlockToolResult:
				parts = append(parts, b.Content)
			}
		}

		text := strings.Join(parts, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, FlatMessage{Role: m.Role, Text: text})
	}
	return out
}

// ConvertToOpenAIMessages builds chat completion messages with the system
// prompt first.
func ConvertToOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range FlattenMessages(messages) {
		switch m.Role {
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Text))
		default:
			out = append(out, openai.UserMessage(m.Text))
		}
	}
	return out
}
