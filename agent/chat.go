package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"hermitcrab/config"
	"hermitcrab/provider"
	"hermitcrab/storage"
)

// ErrNoMessages is returned when sanitizing leaves nothing to send.
var ErrNoMessages = errors.New("no messages")

// ErrEmptyReply is returned when a turn ends without any text, typically
// because the loop ran out of rounds while the model still wanted tools.
var ErrEmptyReply = errors.New("no reply text")

// Chat is the conversational surface: a persisted history, the tool loop
// and background memory crystallization.
type Chat struct {
	llm          *LLM
	history      *storage.History
	crystallizer *Crystallizer
	base         LLMOptions

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewChat creates a chat. base supplies per-call options such as the tool
// list; crystallizer may be nil.
func NewChat(llm *LLM, history *storage.History, crystallizer *Crystallizer, base LLMOptions) *Chat {
	return &Chat{llm: llm, history: history, crystallizer: crystallizer, base: base}
}

// History returns the persisted conversation.
func (c *Chat) History() *storage.History {
	return c.history
}

// Send runs one turn. On failure the user message is withdrawn so the
// turn can be retried as-is.
func (c *Chat) Send(ctx context.Context, text string, onStatus func(string)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.Append("user", text)
	msgs := SanitizeMessages(c.history.Messages)
	if len(msgs) == 0 {
		c.history.Pop()
		return "", ErrNoMessages
	}

	opts := c.base
	opts.OnStatus = onStatus
	resp, err := c.llm.Call(ctx, msgs, opts)
	if err != nil {
		c.history.Pop()
		return "", err
	}

	reply := resp.Text()
	if strings.TrimSpace(reply) == "" {
		c.history.Pop()
		if resp.StopReason == provider.StopToolUse {
			return "", fmt.Errorf("%w: tool budget exhausted", ErrEmptyReply)
		}
		return "", fmt.Errorf("%w (stop reason %q)", ErrEmptyReply, resp.StopReason)
	}
	c.history.Append("assistant", reply)
	if err := c.history.CompleteTurn(); err != nil {
		return reply, fmt.Errorf("failed to persist history: %w", err)
	}

	if c.crystallizer != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.crystallizer.Crystallize(context.WithoutCancel(ctx), text, reply); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("[Loop] crystallization failed: %v", err)
			}
		}()
	}

	return reply, nil
}

// Wait blocks until background crystallization has finished.
func (c *Chat) Wait() {
	c.wg.Wait()
}

// SanitizeMessages prepares history for the vendor: leading assistant
// messages are dropped and consecutive same-role messages are merged with
// a blank line.
func SanitizeMessages(history []storage.Message) []provider.Message {
	i := 0
	for i < len(history) && history[i].Role == "assistant" {
		i++
	}

	type turn struct {
		role, text string
	}
	var merged []turn
	for _, m := range history[i:] {
		if n := len(merged); n > 0 && merged[n-1].role == m.Role {
			merged[n-1].text += "\n\n" + m.Content
			continue
		}
		merged = append(merged, turn{m.Role, m.Content})
	}

	out := make([]provider.Message, len(merged))
	for i, t := range merged {
		out[i] = provider.TextMessage(t.role, t.text)
	}
	return out
}
