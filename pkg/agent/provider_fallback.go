package agent

import (
	"context"
	"strings"
)

// FallbackProvider is the deterministic generator used when no real
// model boundary is available. It never requests tools and always
// produces a completed answer, so queries degrade to a coherent
// response instead of failing outright.
type FallbackProvider struct{}

// NewFallbackProvider creates the deterministic fallback.
func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

// Name returns the provider name.
func (p *FallbackProvider) Name() string {
	return "fallback"
}

// Available is always true; the fallback is the last resort.
func (p *FallbackProvider) Available() bool {
	return true
}

// GenerateResponse produces a deterministic completion for the prompt.
func (p *FallbackProvider) GenerateResponse(_ context.Context, prompt string) (string, error) {
	query := lastQueryLine(prompt)
	if query == "" {
		return "I have completed the request. No language model is currently available, so no tools were invoked.", nil
	}
	return "I have completed processing. The language model is currently unavailable, so I could not reason about \"" +
		query + "\" or invoke tools on your behalf. Please retry once a model backend is configured.", nil
}

// lastQueryLine pulls the trailing non-empty line out of a prompt,
// which is where the orchestrator places the user query.
func lastQueryLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return ""
}
