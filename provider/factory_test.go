package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermitcrab/config"
)

func TestNewCompleter(t *testing.T) {
	tests := []struct {
		name        string
		backend     config.Backend
		apiKey      string
		expectError error
		expectType  any
	}{
		{"claude with key", config.BackendClaude, "sk-ant-abc", nil, &RelayClient{}},
		{"claude missing key", config.BackendClaude, "", config.ErrAPIKeyMissing, nil},
		{"claude bad prefix", config.BackendClaude, "sk-xyz", config.ErrAPIKeyFormat, nil},
		{"local", config.BackendLocal, "", nil, &LocalClient{}},
		{"ollama", config.BackendOllama, "", nil, &OllamaClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{UserConfig: *config.DefaultUserConfig()}
			cfg.Backend = tt.backend

			c, err := NewCompleter(cfg, tt.apiKey)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expectType, c)
		})
	}

	_, err := NewCompleter(&config.Config{UserConfig: config.UserConfig{Backend: "carrier-pigeon"}}, "")
	assert.EqualError(t, err, "unknown backend: carrier-pigeon")
}

func TestOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", ollamaBaseURL("http://localhost:11434/v1"))
	assert.Equal(t, "http://localhost:11434", ollamaBaseURL("http://localhost:11434/v1/"))
	assert.Equal(t, "http://host:1", ollamaBaseURL("http://host:1"))
}

func TestProbeModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-API-Key"))

		var body struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, 32, body.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		if body.Model != "claude-b" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"not_found_error","message":"model not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-b","content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	var statuses []string
	onStatus := func(s string) { statuses = append(statuses, s) }
	p := NewProber(srv.URL, "sk-ant-test")

	got := ProbeModel(context.Background(), p, []string{"claude-a", "claude-b", "claude-c"}, onStatus)
	assert.Equal(t, "claude-b", got)
	assert.Equal(t, []string{
		"claude-a — not available, trying next...",
		"using claude-b for all calls",
	}, statuses)

	statuses = nil
	got = ProbeModel(context.Background(), p, []string{"claude-x", "claude-y"}, onStatus)
	assert.Equal(t, "claude-y", got, "falls back to the last model in the chain")
	assert.Len(t, statuses, 2)
}

func TestLocalClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tiny", body.Model)
		if !assert.Len(t, body.Messages, 3) {
			return
		}
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "you are a crab", body.Messages[0].Content)
		assert.Equal(t, "tool said ok", body.Messages[2].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"tiny","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	c, err := NewLocalClient(srv.URL+"/v1", "", "tiny")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &Request{
		System: "you are a crab",
		Messages: []Message{
			TextMessage("user", "hello"),
			BlocksMessage("user", []ContentBlock{ToolResultBlock("tu_1", "tool said ok")}),
		},
		Thinking: EnabledThinking(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text())
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.Equal(t, 3, resp.Usage.InputTokens)
}

func TestNewLocalClientRequiresModel(t *testing.T) {
	_, err := NewLocalClient("", "", "")
	assert.Error(t, err)
}

func TestOllamaClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Stream   *bool  `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.NotNil(t, body.Stream) {
			assert.False(t, *body.Stream)
		}
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
		}

		_, _ = w.Write([]byte(`{"model":"llama","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"hello"},"done":true,"done_reason":"length","prompt_eval_count":4,"eval_count":2}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, "llama")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &Request{System: "sys", Messages: []Message{TextMessage("user", "hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, StopMaxTokens, resp.StopReason)
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}

func TestFlattenMessagesSkipsEmpty(t *testing.T) {
	flat := FlattenMessages([]Message{
		TextMessage("user", "a"),
		BlocksMessage("assistant", []ContentBlock{{Type: BlockToolUse, ID: "x", Name: "t", Input: json.RawMessage(`{}`)}}),
		TextMessage("user", "b"),
	})
	assert.Equal(t, []FlatMessage{{Role: "user", Text: "a"}, {Role: "user", Text: "b"}}, flat)
}
