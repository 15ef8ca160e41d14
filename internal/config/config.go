package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config is the main toolgate configuration.
type Config struct {
	// Security engine settings
	Security SecurityConfig `json:"security" mapstructure:"security"`

	// Orchestrator settings
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Model provider settings
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Approval gateway settings
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging settings
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory for the audit database, backups and logs
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Workspace path bounding the filesystem tools
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`
}

// SecurityConfig holds security engine configuration.
type SecurityConfig struct {
	// AuditDB is the SQLite database path; empty keeps audit in memory.
	AuditDB string `json:"audit_db" mapstructure:"audit_db"`

	// BackupDir holds pre-modification file copies.
	BackupDir string `json:"backup_dir" mapstructure:"backup_dir"`

	// SettingsFile is an optional JSON file of per-user permission
	// settings, hot-reloaded on change.
	SettingsFile string `json:"settings_file" mapstructure:"settings_file"`

	// ApprovalTimeoutSec bounds the human approval round-trip.
	ApprovalTimeoutSec int `json:"approval_timeout_sec" mapstructure:"approval_timeout_sec"`

	// ApprovalValidityMin is how long remembered approvals stay valid.
	ApprovalValidityMin int `json:"approval_validity_min" mapstructure:"approval_validity_min"`

	// SweepSchedule is the cron spec for expired-approval pruning.
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// OrchestratorConfig holds ReAct loop configuration.
type OrchestratorConfig struct {
	MaxIterations  int    `json:"max_iterations" mapstructure:"max_iterations"`
	ToolTimeoutSec int    `json:"tool_timeout_sec" mapstructure:"tool_timeout_sec"`
	ClientID       string `json:"client_id" mapstructure:"client_id"`
}

// LLMConfig holds model provider configuration.
type LLMConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, fallback
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
}

// GatewayConfig holds approval gateway configuration. AuthAttempts
// bounds failed handshake signatures per connection; zero keeps the
// gateway's default.
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
	AuthAttempts int    `json:"auth_attempts" mapstructure:"auth_attempts"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Console    bool   `json:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Security: SecurityConfig{
			ApprovalTimeoutSec:  60,
			ApprovalValidityMin: 30,
			SweepSchedule:       "@every 1m",
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:  5,
			ToolTimeoutSec: 30,
			ClientID:       "toolgate",
		},
		LLM: LLMConfig{
			Provider: "fallback",
		},
		Gateway: GatewayConfig{
			Port: 8799,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Redaction: true,
		},
	}
}

// ApprovalTimeout returns the approval timeout as a duration.
func (c *SecurityConfig) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSec) * time.Second
}

// ApprovalValidity returns the remembered-approval validity as a duration.
func (c *SecurityConfig) ApprovalValidity() time.Duration {
	return time.Duration(c.ApprovalValidityMin) * time.Minute
}

// ToolTimeout returns the per-tool execution timeout as a duration.
func (c *OrchestratorConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// String renders the config as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "***"
	}
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
