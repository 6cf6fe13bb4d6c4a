package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hermitcrab/config"
	"hermitcrab/tools"
)

// forwarded only when truthy
var truthyFields = []string{"system", "tools", "tool_choice", "thinking", "stop_sequences", "metadata"}

// forwarded whenever present
var presentFields = []string{"temperature", "top_p", "top_k"}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		_ = json.Unmarshal(body["apiKey"], &apiKey)
	}
	switch err := config.ValidateAPIKey(apiKey); {
	case errors.Is(err, config.ErrAPIKeyMissing):
		writeError(w, http.StatusBadRequest, "API key required. Provide your Anthropic API key via X-API-Key header.")
		return
	case errors.Is(err, config.ErrAPIKeyFormat):
		writeError(w, http.StatusBadRequest, "Invalid API key format. Anthropic keys start with "+config.APIKeyPrefix)
		return
	}

	payload, err := json.Marshal(upstreamBody(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.opts.UpstreamURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		s.proxyError(w, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", strings.TrimSpace(apiKey))
	req.Header.Set("anthropic-version", AnthropicVersion)
	req.Header.Set("anthropic-beta", AnthropicBeta)

	start := time.Now()
	resp, err := s.client.Do(req)
	s.metrics.upstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.proxyError(w, err)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Printf("[Relay] copy upstream body: %v", err)
	}
}

func (s *Server) proxyError(w http.ResponseWriter, err error) {
	s.logger.Printf("[Relay] proxy error: %v", err)
	writeError(w, http.StatusInternalServerError, "Proxy error")
}

// upstreamBody rebuilds the request from the fields the messages API
// accepts, so client-only fields such as apiKey never leave the relay.
func upstreamBody(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := map[string]json.RawMessage{
		"model":      mustJSON(DefaultModel),
		"max_tokens": mustJSON(DefaultMaxTokens),
	}
	if truthy(in["model"]) {
		out["model"] = in["model"]
	}
	if truthy(in["max_tokens"]) {
		out["max_tokens"] = in["max_tokens"]
	}
	if raw, ok := in["messages"]; ok {
		out["messages"] = raw
	}
	for _, name := range truthyFields {
		if truthy(in[name]) {
			out[name] = in[name]
		}
	}
	for _, name := range presentFields {
		if raw, ok := in[name]; ok {
			out[name] = raw
		}
	}
	return out
}

func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var in struct {
		URL any `json:"url"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&in)
	target, ok := in.URL.(string)
	if !ok || target == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	writeJSON(w, http.StatusOK, s.fetch(r.Context(), target))
}

// fetch GETs target and never fails: errors come back as status 0.
func (s *Server) fetch(ctx context.Context, target string) tools.FetchResult {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return tools.FetchResult{Error: err.Error()}
	}
	req.Header.Set("User-Agent", FetchUserAgent)
	req.Header.Set("Accept", FetchAccept)

	resp, err := s.fetchClient.Do(req)
	if err != nil {
		return tools.FetchResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return tools.FetchResult{Error: err.Error()}
	}
	s.metrics.fetchBytes.Add(float64(len(body)))

	contentType := resp.Header.Get("Content-Type")
	return tools.FetchResult{
		Status:      resp.StatusCode,
		ContentType: contentType,
		Length:      len(body),
		Content:     tools.Truncate(string(body), s.opts.FetchLimit),
		Title:       pageTitle(contentType, body),
	}
}

func pageTitle(contentType string, body []byte) string {
	if !strings.Contains(contentType, "html") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
