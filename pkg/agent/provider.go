package agent

import (
	"context"
	"fmt"
)

// Provider is the language-model boundary: given a prompt, return
// generated text. The orchestrator must function deterministically when
// no provider is available, via the fallback.
type Provider interface {
	// GenerateResponse returns model text for a prompt.
	GenerateResponse(ctx context.Context, prompt string) (string, error)

	// Available reports whether the provider can serve requests.
	Available() bool

	// Name returns the provider name.
	Name() string
}

// ContextRetriever supplies background text appended to prompts. The
// retrieval pipeline itself lives outside this module; its output is
// consumed as opaque text.
type ContextRetriever interface {
	RetrieveContext(ctx context.Context, query string) (string, error)
}

// AuthProfile holds credentials for a provider backend.
type AuthProfile struct {
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
}

// NewProvider creates a provider from an auth profile.
func NewProvider(profile AuthProfile) (Provider, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey, profile.Model), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey, profile.Model), nil
	case "fallback", "":
		return NewFallbackProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
