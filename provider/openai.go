package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultLocalEndpoint = "http://localhost:11434/v1"

// LocalClient implements Completer against an OpenAI-compatible endpoint
// (llama.cpp, vLLM, LM Studio, Ollama's /v1). It uses the official OpenAI
// Go SDK. Tools and thinking are not forwarded.
type LocalClient struct {
	client  openai.Client
	model   string
	baseURL string
}

// NewLocalClient creates a local completer.
//
// Parameters:
//   - baseURL: endpoint base URL, DefaultLocalEndpoint when empty
//   - apiKey: sent as a bearer token; most local servers ignore it
//   - model: model name, required
func NewLocalClient(baseURL, apiKey, model string) (*LocalClient, error) {
	if baseURL == "" {
		baseURL = DefaultLocalEndpoint
	}
	if model == "" {
		return nil, fmt.Errorf("local model name is required")
	}
	if apiKey == "" {
		apiKey = "local"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &LocalClient{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Complete implements Completer.
func (c *LocalClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(req.SystemText(), req.Messages),
		Model:    openai.ChatModel(c.model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil && req.Thinking == nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("local completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("local completion returned no choices")
	}

	choice := completion.Choices[0]
	stop := StopEndTurn
	if choice.FinishReason == "length" {
		stop = StopMaxTokens
	}

	return &Response{
		ID:         completion.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      completion.Model,
		Content:    []ContentBlock{TextBlock(choice.Message.Content)},
		StopReason: stop,
		Usage: &Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// Ping lists models to check the endpoint answers.
func (c *LocalClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("local endpoint ping failed: %w", err)
	}
	return nil
}
