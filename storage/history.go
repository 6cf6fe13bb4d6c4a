package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const historyKey = "hc:history"

// ExportVersion is stamped into conversation exports.
const ExportVersion = "hermitcrab-0.2"

// Message is one displayed chat message. Tool traffic inside a loop is
// not part of the history, only the user text and the final answer.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the persisted conversation: a bounded message window and a
// monotonically increasing turn counter.
type History struct {
	SessionID string    `json:"session_id"`
	TurnCount int       `json:"turn_count"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	kv     KV
	window int
}

// LoadHistory reads the stored history, or starts a new one.
func LoadHistory(kv KV, window int) (*History, error) {
	h := &History{kv: kv, window: window}

	raw, ok, err := kv.Get(historyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if !ok {
		h.SessionID = uuid.New().String()
		h.CreatedAt = time.Now()
		h.UpdatedAt = h.CreatedAt
		return h, nil
	}

	if err := json.Unmarshal([]byte(raw), h); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if h.SessionID == "" {
		h.SessionID = uuid.New().String()
	}
	return h, nil
}

// Append adds a message and trims to the retained window.
func (h *History) Append(role, content string) {
	h.Messages = append(h.Messages, Message{Role: role, Content: content, Timestamp: time.Now()})
	if h.window > 0 && len(h.Messages) > h.window {
		h.Messages = append([]Message(nil), h.Messages[len(h.Messages)-h.window:]...)
	}
	h.UpdatedAt = time.Now()
}

// Pop removes the newest message, if any.
func (h *History) Pop() {
	if len(h.Messages) > 0 {
		h.Messages = h.Messages[:len(h.Messages)-1]
	}
}

// CompleteTurn bumps the turn counter and persists.
func (h *History) CompleteTurn() error {
	h.TurnCount++
	return h.Save()
}

func (h *History) Save() error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return h.kv.Set(historyKey, string(data))
}

// Reset starts a fresh session, keeping nothing.
func (h *History) Reset() error {
	h.SessionID = uuid.New().String()
	h.TurnCount = 0
	h.Messages = nil
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	return h.Save()
}

// Export is the archival document written on demand.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	TurnCount  int       `json:"turnCount"`
	Messages   []Message `json:"messages"`
}

func (h *History) Export() Export {
	return Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		TurnCount:  h.TurnCount,
		Messages:   append([]Message(nil), h.Messages...),
	}
}

// GenerateExportPath returns a timestamped file under dir (~/Downloads by default).
func GenerateExportPath(dir string) string {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, "Downloads")
	}
	return filepath.Join(dir, fmt.Sprintf("hermitcrab-export-%s.json", time.Now().Format("20060102-150405")))
}

// ExportToJSON writes the export with 0600 permissions.
func (h *History) ExportToJSON(path string) error {
	data, err := json.MarshalIndent(h.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ToMarkdown renders the history as a transcript.
func (h *History) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# hermitcrab session %s\n\n", h.SessionID)
	for _, m := range h.Messages {
		fmt.Fprintf(&b, "## %s · %s\n\n%s\n\n", m.Role, m.Timestamp.Format(time.RFC3339), m.Content)
	}
	return b.String()
}
