package provider

import (
	"encoding/json"
	"strings"
)

// Stop reasons the loop branches on
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopPauseTurn = "pause_turn"
	StopMaxTokens = "max_tokens"
)

// Block types
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one typed block of message content. Blocks decoded from
// a response keep their raw JSON and marshal back byte for byte, so
// thinking signatures and server tool blocks survive the round trip.
type ContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	raw json.RawMessage
}

func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type plain ContentBlock
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = ContentBlock(p)
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b ContentBlock) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	type plain ContentBlock
	return json.Marshal(plain(b))
}

// TextBlock builds a text block
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock answers the tool_use with id
func ToolResultBlock(toolUseID, content string) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
}

// Message is one conversation turn. Content is either a JSON string or
// an array of blocks, as the vendor accepts both.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// TextMessage builds a message with plain string content
func TextMessage(role, text string) Message {
	data, _ := json.Marshal(text)
	return Message{Role: role, Content: data}
}

// BlocksMessage builds a message with block content
func BlocksMessage(role string, blocks []ContentBlock) Message {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	data, _ := json.Marshal(blocks)
	return Message{Role: role, Content: data}
}

// IsText reports whether the content is a plain string.
func (m Message) IsText() bool {
	return strings.HasPrefix(strings.TrimSpace(string(m.Content)), `"`)
}

// Blocks decodes block content. Plain string content becomes one text block.
func (m Message) Blocks() ([]ContentBlock, error) {
	if m.IsText() {
		var s string
		if err := json.Unmarshal(m.Content, &s); err != nil {
			return nil, err
		}
		return []ContentBlock{TextBlock(s)}, nil
	}
	var blocks []ContentBlock
	if len(m.Content) == 0 {
		return nil, nil
	}
	err := json.Unmarshal(m.Content, &blocks)
	return blocks, err
}

// Text returns the message's text, joining text blocks with sep.
func (m Message) Text(sep string) string {
	blocks, err := m.Blocks()
	if err != nil {
		return ""
	}
	return JoinText(blocks, sep)
}

// Thinking configures extended reasoning
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// EnabledThinking returns an enabled thinking config with budget
func EnabledThinking(budget int) *Thinking {
	return &Thinking{Type: "enabled", BudgetTokens: budget}
}

// Request is a completion request in the vendor's shape. System and
// ToolChoice stay untyped since callers pass strings or block arrays.
type Request struct {
	Model         string         `json:"model,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	System        any            `json:"system,omitempty"`
	Messages      []Message      `json:"messages"`
	Tools         []any          `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Thinking      *Thinking      `json:"thinking,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	TopK          *int           `json:"top_k,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone copies the request with its own message slice.
func (r *Request) Clone() *Request {
	c := *r
	c.Messages = append([]Message(nil), r.Messages...)
	return &c
}

// SystemText flattens the system prompt whether it is a string or blocks.
func (r *Request) SystemText() string {
	switch s := r.System.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		var text string
		if json.Unmarshal(data, &text) == nil {
			return text
		}
		var blocks []ContentBlock
		if json.Unmarshal(data, &blocks) != nil {
			return ""
		}
		return JoinText(blocks, "\n")
	}
}

// Usage is token accounting
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completion response.
type Response struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type,omitempty"`
	Role       string         `json:"role,omitempty"`
	Model      string         `json:"model,omitempty"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *Usage         `json:"usage,omitempty"`

	// Error is set when the body is a vendor error envelope
	Error json.RawMessage `json:"error,omitempty"`
}

// Text joins the response's text blocks with newlines.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return JoinText(r.Content, "\n")
}

// ToolUses returns the tool_use blocks in order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// JoinText joins the text of text blocks with sep.
func JoinText(blocks []ContentBlock, sep string) string {
	var texts []string
	for _, b := range blocks {
		if b.Type == BlockText {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, sep)
}
