package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PermissionLevel is an ordered tier bounding which tools a user may invoke.
type PermissionLevel int

const (
	LevelRead PermissionLevel = iota
	LevelUser
	LevelElevated
	LevelAdministrator
)

// String returns the canonical name of the permission level.
func (l PermissionLevel) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelUser:
		return "user"
	case LevelElevated:
		return "elevated"
	case LevelAdministrator:
		return "administrator"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseLevel parses a permission level name.
func ParseLevel(s string) (PermissionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return LevelRead, nil
	case "user":
		return LevelUser, nil
	case "elevated":
		return LevelElevated, nil
	case "administrator", "admin":
		return LevelAdministrator, nil
	default:
		return LevelRead, fmt.Errorf("unknown permission level: %s", s)
	}
}

// Category classifies a tool by the kind of system surface it touches.
type Category string

const (
	CategoryInformation    Category = "information"
	CategoryFileSystem     Category = "filesystem"
	CategoryConfiguration  Category = "configuration"
	CategoryNetwork        Category = "network"
	CategoryRegistry       Category = "registry"
	CategorySystem         Category = "system"
	CategoryAdministrative Category = "administrative"
)

// AllCategories returns all valid tool categories.
func AllCategories() []Category {
	return []Category{
		CategoryInformation,
		CategoryFileSystem,
		CategoryConfiguration,
		CategoryNetwork,
		CategoryRegistry,
		CategorySystem,
		CategoryAdministrative,
	}
}

// IsValidCategory checks if a category is valid.
func IsValidCategory(category string) bool {
	cat := Category(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// Parameter defines a single tool parameter. Format further constrains
// a string parameter; "url" marks a value that must be an absolute
// http(s) URL, which the security scan checks with URL-aware rules
// instead of the path-oriented injection patterns.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Format      string      `json:"format,omitempty"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// FormatURL marks a string parameter as an absolute http(s) URL.
const FormatURL = "url"

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, execCtx *ExecutionContext) (interface{}, error)

// Previewer renders a human-readable description of what an execution
// with the given parameters would do. Used for approval prompts.
type Previewer func(params map[string]interface{}) string

// Definition describes a tool: its identity, gating metadata, parameter
// contract and execution entry point. Immutable once registered.
type Definition struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Category           Category        `json:"category"`
	RequiredPermission PermissionLevel `json:"required_permission"`
	RequiresApproval   bool            `json:"requires_approval"`
	IsModifying        bool            `json:"is_modifying"`
	Parameters         []Parameter     `json:"parameters"`
	Handler            Handler         `json:"-"`
	Previewer          Previewer       `json:"-"`
}

// URLParameters returns the names of parameters declared with the URL
// format.
func (d *Definition) URLParameters() map[string]bool {
	var urls map[string]bool
	for _, param := range d.Parameters {
		if param.Format == FormatURL {
			if urls == nil {
				urls = make(map[string]bool)
			}
			urls[param.Name] = true
		}
	}
	return urls
}

// Preview returns a human-readable execution preview for the given
// parameters, falling back to a generic rendering when the tool does
// not supply its own previewer.
func (d *Definition) Preview(params map[string]interface{}) string {
	if d.Previewer != nil {
		return d.Previewer(params)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(parts, ", "))
}

// ExecutionContext carries per-invocation state. Created per call,
// discarded after use.
type ExecutionContext struct {
	Params          map[string]interface{}
	UserID          string
	ExecutionID     string
	ApprovalGranted bool
	WorkingDir      string
	Timeout         time.Duration
}

// StringParam extracts a string parameter, returning the fallback when
// absent or of a different type.
func (c *ExecutionContext) StringParam(name, fallback string) string {
	if v, ok := c.Params[name].(string); ok {
		return v
	}
	return fallback
}

// Result is the immutable outcome of one tool execution.
type Result struct {
	Success       bool          `json:"success"`
	Data          interface{}   `json:"data,omitempty"`
	Message       string        `json:"message,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Err           error         `json:"-"`
	ExecutionTime time.Duration `json:"execution_time"`
	ModifiedFiles []string      `json:"modified_files,omitempty"`
	BackupID      string        `json:"backup_id,omitempty"`
}

// Failure builds a failed result with the given message.
func Failure(format string, args ...interface{}) Result {
	msg := fmt.Sprintf(format, args...)
	return Result{Success: false, Message: msg, ErrorMessage: msg}
}
