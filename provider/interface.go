// Package provider defines the completion contract the kernel talks to.
//
// hermitcrab reaches its model through a Completer. The default backend is
// the relay, which holds no state and forwards vendor requests with the
// user's own credential. Local OpenAI-compatible servers and Ollama can
// stand in for offline use, at the cost of tool use and extended thinking.
//
// # Why a Completer?
//
// The loop, the synthesis pipeline and the kernel all speak the vendor's
// message shape (typed content blocks, stop reasons, tool_use ids). Keeping
// that shape behind one small interface lets them:
//   - stay backend-agnostic
//   - be tested with a scripted completer (see testutil)
//   - echo assistant content verbatim, whatever block types it carries
//
// # Architecture
//
//   - provider.Completer defines the contract
//   - provider.RelayClient posts to <relay>/relay/completion
//   - provider.LocalClient talks to an OpenAI-compatible endpoint
//   - provider.OllamaClient talks to a local Ollama server
//   - provider.NewCompleter() builds one from config
//   - provider.ProbeModel() picks the boot model from the chain
//
// # Usage
//
//	c, err := provider.NewCompleter(cfg, apiKey)
//	if err != nil {
//	    // handle error
//	}
//	resp, err := c.Complete(ctx, &provider.Request{
//	    Model:     "claude-sonnet-4-20250514",
//	    MaxTokens: 4096,
//	    Messages:  []provider.Message{provider.TextMessage("user", "hello")},
//	})
package provider

import "context"

// Completer sends one completion request and returns the vendor response.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req *Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
