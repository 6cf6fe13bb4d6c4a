package pscale

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed seed/constitution.md
var DefaultConstitution string

//go:embed seed/kernel.md
var DefaultKernel string

// RelayDescription is seeded at S:0.13
const RelayDescription = "Local relay at /relay/completion (aliases /api/claude, /v1/messages). " +
	"Forwards requests to api.anthropic.com with the user's API key from the X-API-Key header. " +
	"Passthrough, no modification. /relay/fetch performs server-side GETs for web_fetch."

var indexTable = strings.Join([]string{
	"# Platform Index (S:0.1)",
	"",
	"| Coordinate | Content |",
	"|-----------|---------|",
	"| S:0.11 | kernel — boot sequence (T:0.1) |",
	"| S:0.12 | constitution.md — system prompt |",
	"| S:0.13 | relay — /relay/completion passthrough |",
	"| S:0.2 | Current running interface (JSX) |",
	"| S:0.2N | Interface version history |",
}, "\n")

// Seeded reports whether the platform coordinates exist.
func (s *Store) Seeded() (bool, error) {
	_, ok, err := s.Read(CoordKernel)
	return ok, err
}

// Seed writes the platform coordinates on first boot. Empty arguments
// fall back to the embedded documents.
func (s *Store) Seed(kernelDoc, constitution string) error {
	if kernelDoc == "" {
		kernelDoc = DefaultKernel
	}
	if constitution == "" {
		constitution = DefaultConstitution
	}

	entries := []struct{ coord, content string }{
		{CoordKernel, kernelDoc},
		{CoordConstitution, constitution},
		{CoordIndex, indexTable},
		{CoordRelay, RelayDescription},
	}
	for _, e := range entries {
		if _, err := s.Write(e.coord, e.content); err != nil {
			return fmt.Errorf("failed to seed %s: %w", e.coord, err)
		}
	}
	return nil
}

// Constitution reads S:0.12, restoring the embedded default when it is
// missing or empty. The bool reports whether it had to be restored.
func (s *Store) Constitution() (string, bool, error) {
	c, ok, err := s.Read(CoordConstitution)
	if err != nil {
		return "", false, err
	}
	if ok && c != "" {
		return c, false, nil
	}
	if _, err := s.Write(CoordConstitution, DefaultConstitution); err != nil {
		return "", false, err
	}
	return DefaultConstitution, true, nil
}
