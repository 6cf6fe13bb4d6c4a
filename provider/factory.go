package provider

import (
	"context"
	"fmt"
	"strings"

	"hermitcrab/config"
)

// NewCompleter creates the completer for the configured backend.
//
// Supported backends:
//   - config.BackendClaude: the relay, authenticated with apiKey
//   - config.BackendLocal: an OpenAI-compatible endpoint
//   - config.BackendOllama: a local Ollama server
//
// Returns an error for an unknown backend, or when the claude backend has
// no valid key.
func NewCompleter(cfg *config.Config, apiKey string) (Completer, error) {
	switch cfg.Backend {
	case config.BackendClaude, "":
		if err := config.ValidateAPIKey(apiKey); err != nil {
			return nil, err
		}
		return NewRelayClient(cfg.Relay.URL, apiKey), nil
	case config.BackendLocal:
		return NewLocalClient(cfg.Model.LocalEndpoint, "", cfg.Model.LocalModel)
	case config.BackendOllama:
		return NewOllamaClient(ollamaBaseURL(cfg.Model.LocalEndpoint), cfg.Model.LocalModel)
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

// ResolveBootModel probes the model chain on the claude backend. Local
// backends answer to their configured model name.
func ResolveBootModel(ctx context.Context, cfg *config.Config, apiKey string, onStatus func(string)) string {
	if cfg.Backend != config.BackendClaude && cfg.Backend != "" {
		if onStatus != nil {
			onStatus(fmt.Sprintf("using %s for all calls", cfg.Model.LocalModel))
		}
		return cfg.Model.LocalModel
	}
	return ProbeModel(ctx, NewProber(cfg.Relay.URL, apiKey), cfg.Model.Chain, onStatus)
}

// ollamaBaseURL strips the OpenAI-compatible /v1 suffix the local
// endpoint setting usually carries.
func ollamaBaseURL(endpoint string) string {
	return strings.TrimSuffix(strings.TrimRight(endpoint, "/"), "/v1")
}
