package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"hermitcrab/config"
	"hermitcrab/provider"
	"hermitcrab/pscale"
)

const (
	CrystalPrompt   = "Compress this exchange into one solid paragraph, max 150 words. Facts only — what was said, learned, decided. No meta-commentary. If trivial, respond: SKIP"
	SummarizePrompt = "Compress these entries into one summary paragraph, max 200 words. Preserve all key facts, decisions, names, coordinates. Lose nothing important."

	crystalMaxTokens   = 300
	summaryMaxTokens   = 400
	crystalExcerptSize = 2000
)

// Summarizer rolls memory groups up with a short completion. It
// satisfies pscale.Summarizer.
type Summarizer struct {
	completer provider.Completer
	model     string
}

// NewSummarizer creates an LLM summarizer using model.
func NewSummarizer(completer provider.Completer, model string) *Summarizer {
	return &Summarizer{completer: completer, model: model}
}

// Summarize implements pscale.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, entries []pscale.Entry) (string, error) {
	return s.compress(ctx, SummarizePrompt, pscale.FormatBlock(entries), summaryMaxTokens)
}

func (s *Summarizer) compress(ctx context.Context, system, text string, maxTokens int) (string, error) {
	resp, err := s.completer.Complete(ctx, &provider.Request{
		Model:     s.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []provider.Message{provider.TextMessage("user", text)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Crystallizer turns a finished exchange into one memory entry.
type Crystallizer struct {
	summarizer *Summarizer
	memories   *pscale.Log
}

// NewCrystallizer writes crystals into memories using summarizer's model.
func NewCrystallizer(summarizer *Summarizer, memories *pscale.Log) *Crystallizer {
	return &Crystallizer{summarizer: summarizer, memories: memories}
}

// Crystallize compresses the exchange and appends it to the memory log.
// Trivial exchanges and SKIP answers write nothing; the returned number
// is 0 in that case.
func (c *Crystallizer) Crystallize(ctx context.Context, user, assistant string) (int, error) {
	if utf8.RuneCountInString(user) < 10 && utf8.RuneCountInString(assistant) < 50 {
		return 0, nil
	}

	exchange := fmt.Sprintf("HUMAN: %s\n\nINSTANCE: %s",
		preview(user, crystalExcerptSize), preview(assistant, crystalExcerptSize))

	crystal, err := c.summarizer.compress(ctx, CrystalPrompt, exchange, crystalMaxTokens)
	if err != nil {
		return 0, err
	}
	if crystal == "" || crystal == "SKIP" {
		return 0, nil
	}

	n, err := c.memories.Write(ctx, crystal)
	if err != nil {
		return 0, err
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Loop] memory #%d crystallized (%d chars)", n, len(crystal))
	}
	return n, nil
}
