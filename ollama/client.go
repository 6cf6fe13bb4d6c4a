package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.1:latest"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		baseURL: baseURL,
	}, nil
}

// Chat sends one non-streaming chat request. numPredict <= 0 leaves the
// server's default output cap.
func (c *Client) Chat(ctx context.Context, messages []api.Message, numPredict int) (*api.ChatResponse, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}
	if numPredict > 0 {
		req.Options = map[string]any{"num_predict": numPredict}
	}

	var final *api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if final == nil {
			final = &resp
			return nil
		}
		// some servers stream regardless of the flag
		final.Message.Content += resp.Message.Content
		final.Done = resp.Done
		final.DoneReason = resp.DoneReason
		final.PromptEvalCount = resp.PromptEvalCount
		final.EvalCount = resp.EvalCount
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("ollama chat returned no response")
	}
	return final, nil
}

// ListModels returns the names of locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, len(resp.Models))
	for i, m := range resp.Models {
		names[i] = m.Name
	}
	return names, nil
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}
