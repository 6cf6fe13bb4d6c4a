package provider

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"hermitcrab/ollama"
)

// OllamaClient implements Completer against a local Ollama server. Tools
// and thinking are not forwarded; the reply is a single text block.
type OllamaClient struct {
	client *ollama.Client
}

// NewOllamaClient creates a new Ollama completer.
//
// Parameters:
//   - baseURL: the Ollama server URL, "http://localhost:11434" when empty
//   - model: the model name, "llama3.1:latest" when empty
func NewOllamaClient(baseURL, model string) (*OllamaClient, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaClient{client: client}, nil
}

// Complete implements Completer. req.Model is ignored in favour of the
// configured local model.
func (c *OllamaClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.client.Chat(ctx, toOllamaMessages(req), req.MaxTokens)
	if err != nil {
		return nil, err
	}

	stop := StopEndTurn
	if resp.DoneReason == "length" {
		stop = StopMaxTokens
	}

	return &Response{
		Type:       "message",
		Role:       "assistant",
		Model:      c.client.GetModel(),
		Content:    []ContentBlock{TextBlock(resp.Message.Content)},
		StopReason: stop,
		Usage:      &Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}, nil
}

// Ping checks that the server answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func toOllamaMessages(req *Request) []api.Message {
	var out []api.Message
	if system := req.SystemText(); system != "" {
		out = append(out, api.Message{Role: "system", Content: system})
	}
	for _, m := range FlattenMessages(req.Messages) {
		out = append(out, api.Message{Role: m.Role, Content: m.Text})
	}
	return out
}
