package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// TruncationMarker is appended to content cut at the byte budget
const TruncationMarker = "\n\n[TRUNCATED]"

const (
	DefaultFetchLimit   = 50000
	DefaultFetchTimeout = 10 * time.Second
)

// FetchResult is the relay's /relay/fetch response body.
type FetchResult struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Length      int    `json:"length,omitempty"`
	Content     string `json:"content,omitempty"`
	Title       string `json:"title,omitempty"`
	Error       string `json:"error,omitempty"`
}

type WebFetchInput struct {
	URL string `json:"url" jsonschema_description:"The full URL to fetch (including https://)"`
}

// Fetcher performs web_fetch through the relay so the request leaves
// from the relay's network position with its headers.
type Fetcher struct {
	RelayURL string
	Limit    int
	Client   *http.Client
}

func NewFetcher(relayURL string, limit int, timeout time.Duration) *Fetcher {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		RelayURL: strings.TrimRight(relayURL, "/"),
		Limit:    limit,
		// relay timeout plus headroom for the hop itself
		Client: &http.Client{Timeout: timeout + 5*time.Second},
	}
}

// Fetch asks the relay to GET url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.RelayURL+"/relay/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid relay response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &result, nil
}

// Tool exposes the fetcher as web_fetch. Failures are reported as text.
func (f *Fetcher) Tool() Tool {
	return Tool{
		Name:        "web_fetch",
		Description: "Fetch the contents of a URL directly. Use this to visit specific pages, read documentation, or check if a site exists. Returns HTTP status, content type, and page content.",
		InputSchema: GenerateSchema[WebFetchInput](),
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			in, err := decode[WebFetchInput](input)
			if err != nil {
				return "", err
			}
			data, err := f.Fetch(ctx, in.URL)
			if err != nil {
				return "web_fetch failed: " + err.Error(), nil
			}
			if data.Error != "" {
				return "Fetch error: " + data.Error, nil
			}
			return fmt.Sprintf("HTTP %d (%s, %d bytes):\n%s",
				data.Status, data.ContentType, data.Length, Truncate(data.Content, f.Limit)), nil
		},
	}
}

// Truncate cuts s to at most limit bytes on a rune boundary and marks it.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncationMarker
}
