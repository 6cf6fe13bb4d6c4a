package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"hermitcrab/config"
)

// Prober pings models through the relay with the official Anthropic SDK.
// The relay serves the SDK's /v1/messages path, so only the base URL and
// the key header change.
type Prober struct {
	client anthropic.Client
}

// NewProber creates a prober against the relay at baseURL.
func NewProber(baseURL, apiKey string) *Prober {
	client := anthropic.NewClient(
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithAPIKey(apiKey),
		option.WithHeader("X-API-Key", apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(30*time.Second),
	)
	return &Prober{client: client}
}

// Ping asks model for a tiny reply and reports whether it answered with content.
func (p *Prober) Ping(ctx context.Context, model string) error {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 32,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return err
	}
	if len(msg.Content) == 0 {
		return fmt.Errorf("%s returned no content", model)
	}
	return nil
}

// ProbeModel walks chain in order and returns the first model that
// answers. When none does, the last model in the chain is returned.
func ProbeModel(ctx context.Context, p *Prober, chain []string, onStatus func(string)) string {
	if len(chain) == 0 {
		chain = config.DefaultModelChain
	}
	status := func(msg string) {
		if onStatus != nil {
			onStatus(msg)
		}
	}

	for _, model := range chain {
		err := p.Ping(ctx, model)
		if err == nil {
			status(fmt.Sprintf("using %s for all calls", model))
			return model
		}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] probe %s failed: %v", model, err)
		}
		status(fmt.Sprintf("%s — not available, trying next...", model))
	}

	return chain[len(chain)-1]
}
