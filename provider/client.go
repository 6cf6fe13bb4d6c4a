package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hermitcrab/config"
)

// CompletionPath is the relay's completion endpoint
const CompletionPath = "/relay/completion"

// APIError is a non-2xx reply from the relay or upstream.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API %d: %s", e.StatusCode, e.Body)
}

// VendorError is a 2xx body carrying the vendor's error envelope.
type VendorError struct {
	Message string
}

func (e *VendorError) Error() string {
	return "Claude API: " + e.Message
}

// RelayClient posts completion requests to the relay with the user's key.
type RelayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRelayClient creates a client for the relay at baseURL.
func NewRelayClient(baseURL, apiKey string) *RelayClient {
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Complete implements Completer.
func (c *RelayClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, err := CleanParams(req)
	if err != nil {
		return nil, err
	}
	SanitizeThinking(params)

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CompletionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s -> %d (%d bytes, %s)", params["model"], resp.StatusCode, len(data), time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	return DecodeResponse(data)
}

// DecodeResponse parses a vendor body, raising the error envelope as VendorError.
func DecodeResponse(data []byte) (*Response, error) {
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Type == "error" {
		return nil, vendorError(out.Error)
	}
	return &out, nil
}

func vendorError(raw json.RawMessage) *VendorError {
	var env struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		return &VendorError{Message: env.Message}
	}
	return &VendorError{Message: string(raw)}
}

// CleanParams flattens a request into the outgoing field map, dropping
// absent and null values.
func CleanParams(req *Request) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to flatten request: %w", err)
	}
	for k, v := range params {
		if v == nil {
			delete(params, k)
		}
	}
	return params, nil
}

// SanitizeThinking drops sampling params the vendor rejects alongside
// extended thinking: temperature and top_k always, top_p below 0.95.
func SanitizeThinking(params map[string]any) {
	thinking, ok := params["thinking"].(map[string]any)
	if !ok || thinking["type"] != "enabled" {
		return
	}
	delete(params, "temperature")
	delete(params, "top_k")
	if topP, ok := params["top_p"].(float64); ok && topP < 0.95 {
		delete(params, "top_p")
	}
}
