package security

import (
	"time"
)

// CheckResult is the outcome of a composite security check. Computed
// fresh per invocation, never persisted.
type CheckResult struct {
	IsAllowed       bool     `json:"is_allowed"`
	DenialReason    string   `json:"denial_reason,omitempty"`
	RequiredActions []string `json:"required_actions,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// ApprovalResult records one human approval decision. Remembered
// decisions are reusable until ApprovalTime + ValidityDuration.
type ApprovalResult struct {
	IsApproved       bool          `json:"is_approved"`
	ApprovalID       string        `json:"approval_id"`
	ApprovalTime     time.Time     `json:"approval_time"`
	Comments         string        `json:"comments,omitempty"`
	ValidityDuration time.Duration `json:"validity_duration,omitempty"`
	RememberDecision bool          `json:"remember_decision"`
}

// Expired reports whether a remembered approval is past its validity.
func (a *ApprovalResult) Expired(now time.Time) bool {
	if a.ValidityDuration <= 0 {
		return true
	}
	return !now.Before(a.ApprovalTime.Add(a.ValidityDuration))
}

// AuditEntry is an immutable record of one execution attempt. Appended
// only, never mutated or deleted.
type AuditEntry struct {
	AuditID          string                 `json:"audit_id"`
	UserID           string                 `json:"user_id"`
	ToolName         string                 `json:"tool_name"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	ResultSummary    string                 `json:"result_summary,omitempty"`
	IsSuccess        bool                   `json:"is_success"`
	Timestamp        time.Time              `json:"timestamp"`
	Duration         time.Duration          `json:"duration"`
	ModifiedFiles    []string               `json:"modified_files,omitempty"`
	BackupID         string                 `json:"backup_id,omitempty"`
	ClientID         string                 `json:"client_id,omitempty"`
	RequiredApproval bool                   `json:"required_approval"`
	ApprovalObtained bool                   `json:"approval_obtained"`
	ApprovalID       string                 `json:"approval_id,omitempty"`
}

// AuditFilter narrows an audit trail query. All set fields are
// conjunctive.
type AuditFilter struct {
	UserID   string
	FromDate *time.Time
	ToDate   *time.Time
}

// BackupInfo describes state captured before a modifying execution.
type BackupInfo struct {
	BackupID     string    `json:"backup_id"`
	CreatedAt    time.Time `json:"created_at"`
	Files        []string  `json:"files,omitempty"`
	RegistryKeys []string  `json:"registry_keys,omitempty"`
	Description  string    `json:"description"`
	CanRestore   bool      `json:"can_restore"`
}
