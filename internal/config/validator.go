package config

import (
	"fmt"
	"strings"
)

// Validator checks configuration values before the daemon starts.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the whole configuration and returns the first error.
func (v *Validator) Validate(cfg *Config) error {
	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		return err
	}
	if cfg.LLM.Provider != "fallback" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			return err
		}
	}
	if cfg.Orchestrator.MaxIterations < 0 {
		return fmt.Errorf("orchestrator.max_iterations cannot be negative")
	}
	if cfg.Orchestrator.ToolTimeoutSec <= 0 {
		return fmt.Errorf("orchestrator.tool_timeout_sec must be positive")
	}
	if cfg.Security.ApprovalTimeoutSec <= 0 {
		return fmt.Errorf("security.approval_timeout_sec must be positive")
	}
	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
			return fmt.Errorf("gateway.port must be in 1..65535")
		}
		if cfg.Gateway.SharedSecret == "" {
			return fmt.Errorf("gateway.shared_secret is required when the gateway is enabled")
		}
	}
	return nil
}

// ValidateProvider checks the model provider name.
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "", "anthropic", "openai", "fallback":
		return nil
	default:
		return fmt.Errorf("unknown llm provider %q (expected anthropic, openai or fallback)", provider)
	}
}

// ValidateAPIKey checks an API key's shape for the given provider.
func (v *Validator) ValidateAPIKey(key, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
