package security

import (
	"time"

	"github.com/toolgate/toolgate/pkg/tool"
)

// UserPermissionSettings holds the per-user access policy. One per
// user, mutated only by explicit permission changes.
type UserPermissionSettings struct {
	UserID                      string               `json:"user_id"`
	PermissionLevel             tool.PermissionLevel `json:"permission_level"`
	AllowedCategories           []tool.Category      `json:"allowed_categories"`
	ExplicitlyAllowedTools      []string             `json:"explicitly_allowed_tools,omitempty"`
	ExplicitlyDeniedTools       []string             `json:"explicitly_denied_tools,omitempty"`
	RememberApprovals           bool                 `json:"remember_approvals"`
	ApprovalValidity            time.Duration        `json:"approval_validity"`
	MaxModifiedFiles            int                  `json:"max_modified_files"`
	RequireApprovalForModifying bool                 `json:"require_approval_for_modifying"`
	AutoCreateBackups           bool                 `json:"auto_create_backups"`
}

// DefaultSettings returns the safe default policy applied on first
// reference to an unknown user.
func DefaultSettings(userID string) *UserPermissionSettings {
	return &UserPermissionSettings{
		UserID:                      userID,
		PermissionLevel:             tool.LevelUser,
		AllowedCategories:           CategoriesForLevel(tool.LevelUser),
		RememberApprovals:           true,
		ApprovalValidity:            30 * time.Minute,
		MaxModifiedFiles:            16,
		RequireApprovalForModifying: true,
		AutoCreateBackups:           true,
	}
}

// CategoriesForLevel is the fixed level-to-categories policy mapping.
// Not user-configurable; explicit per-tool allow/deny entries layer on
// top of it.
func CategoriesForLevel(level tool.PermissionLevel) []tool.Category {
	switch level {
	case tool.LevelRead:
		return []tool.Category{tool.CategoryInformation}
	case tool.LevelUser:
		return []tool.Category{
			tool.CategoryInformation,
			tool.CategoryFileSystem,
			tool.CategoryNetwork,
		}
	case tool.LevelElevated:
		return []tool.Category{
			tool.CategoryInformation,
			tool.CategoryFileSystem,
			tool.CategoryNetwork,
			tool.CategoryConfiguration,
			tool.CategorySystem,
		}
	case tool.LevelAdministrator:
		return tool.AllCategories()
	default:
		return []tool.Category{tool.CategoryInformation}
	}
}

// CategoryAllowed checks the settings' category set.
func (s *UserPermissionSettings) CategoryAllowed(category tool.Category) bool {
	for _, c := range s.AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ToolExplicitlyAllowed checks the explicit allow-list.
func (s *UserPermissionSettings) ToolExplicitlyAllowed(name string) bool {
	for _, t := range s.ExplicitlyAllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// ToolExplicitlyDenied checks the explicit deny-list. Deny always wins
// over category membership and explicit allows.
func (s *UserPermissionSettings) ToolExplicitlyDenied(name string) bool {
	for _, t := range s.ExplicitlyDeniedTools {
		if t == name {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never share mutable slices with
// the manager's state.
func (s *UserPermissionSettings) clone() *UserPermissionSettings {
	cp := *s
	cp.AllowedCategories = append([]tool.Category(nil), s.AllowedCategories...)
	cp.ExplicitlyAllowedTools = append([]string(nil), s.ExplicitlyAllowedTools...)
	cp.ExplicitlyDeniedTools = append([]string(nil), s.ExplicitlyDeniedTools...)
	return &cp
}
