package security

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/pkg/tool"
)

func newTestManager(t *testing.T, provider ApprovalProvider) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Store:            NewMemoryStore(),
		ApprovalProvider: provider,
		ApprovalTimeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return m
}

func modifyingTool(name string) *tool.Definition {
	return &tool.Definition{
		Name:               name,
		Description:        "modifying " + name,
		Category:           tool.CategoryFileSystem,
		RequiredPermission: tool.LevelUser,
		RequiresApproval:   true,
		IsModifying:        true,
		Handler:            func(_ context.Context, _ *tool.ExecutionContext) (interface{}, error) { return nil, nil },
	}
}

func readOnlyTool(name string, category tool.Category, level tool.PermissionLevel) *tool.Definition {
	return &tool.Definition{
		Name:               name,
		Description:        "read-only " + name,
		Category:           category,
		RequiredPermission: level,
		Handler:            func(_ context.Context, _ *tool.ExecutionContext) (interface{}, error) { return nil, nil },
	}
}

// recordingProvider counts round-trips and returns a scripted decision.
type recordingProvider struct {
	mu       sync.Mutex
	calls    int
	decision ApprovalDecision
	delay    time.Duration
}

func (p *recordingProvider) RequestApproval(ctx context.Context, _ ApprovalRequest) (ApprovalDecision, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ApprovalDecision{}, ctx.Err()
		}
	}
	return p.decision, nil
}

func (p *recordingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// TestManager_DefaultLevel tests that unknown users start at User level
func TestManager_DefaultLevel(t *testing.T) {
	m := newTestManager(t, nil)

	assert.Equal(t, tool.LevelUser, m.GetUserPermissionLevel("alice"))

	settings := m.GetUserSettings("alice")
	assert.True(t, settings.RememberApprovals)
	assert.True(t, settings.RequireApprovalForModifying)
	assert.True(t, settings.AutoCreateBackups)
}

// TestManager_HasPermission tests the layered permission evaluation
func TestManager_HasPermission(t *testing.T) {
	m := newTestManager(t, nil)

	fsTool := readOnlyTool("read_file", tool.CategoryFileSystem, tool.LevelUser)
	sysTool := readOnlyTool("restart_service", tool.CategorySystem, tool.LevelElevated)

	// User level covers filesystem but not system tools
	assert.True(t, m.HasPermission("alice", fsTool))
	assert.False(t, m.HasPermission("alice", sysTool))

	// Raising the level unlocks the system category
	m.SetUserPermissionLevel("alice", tool.LevelElevated)
	assert.True(t, m.HasPermission("alice", sysTool))

	// Level alone is insufficient when the category is not allowed:
	// an Elevated user does not get administrative tools
	adminTool := readOnlyTool("manage_users", tool.CategoryAdministrative, tool.LevelElevated)
	assert.False(t, m.HasPermission("alice", adminTool))

	// An explicit allow grants a single tool across the category gap
	m.AddAllowedTool("alice", "manage_users")
	assert.True(t, m.HasPermission("alice", adminTool))
}

// TestManager_DenyWins tests that explicit denial overrides everything
func TestManager_DenyWins(t *testing.T) {
	m := newTestManager(t, nil)
	def := readOnlyTool("read_file", tool.CategoryFileSystem, tool.LevelUser)

	m.SetUserPermissionLevel("bob", tool.LevelAdministrator)
	m.AddAllowedTool("bob", "read_file")
	m.AddDeniedTool("bob", "read_file")

	assert.False(t, m.HasPermission("bob", def))
}

// TestManager_LevelChangeResetsCategories tests the category reset on level change
func TestManager_LevelChangeResetsCategories(t *testing.T) {
	m := newTestManager(t, nil)

	m.AddDeniedTool("carol", "write_file")
	m.SetUserPermissionLevel("carol", tool.LevelRead)

	settings := m.GetUserSettings("carol")
	assert.Equal(t, CategoriesForLevel(tool.LevelRead), settings.AllowedCategories)
	// Explicit lists survive the reset
	assert.True(t, settings.ToolExplicitlyDenied("write_file"))
}

// TestScanParameters tests the parameter injection scan
func TestScanParameters(t *testing.T) {
	tests := []struct {
		name       string
		params     map[string]interface{}
		violations int
	}{
		{"clean", map[string]interface{}{"path": "notes.txt", "count": 3}, 0},
		{"traversal", map[string]interface{}{"path": "../etc/passwd"}, 1},
		{"shell metachars", map[string]interface{}{"cmd": "ls; rm -rf"}, 1},
		{"pipe and ampersand", map[string]interface{}{"cmd": "a | b & c"}, 2},
		{"script tag", map[string]interface{}{"html": "<SCRIPT>alert(1)</script>"}, 1},
		{"javascript url", map[string]interface{}{"url": "JavaScript:void(0)"}, 1},
		{"nested object", map[string]interface{}{"outer": map[string]interface{}{"inner": "..\\win"}}, 2},
		{"array element", map[string]interface{}{"items": []interface{}{"ok", "bad//path"}}, 1},
		{"non-string values ignored", map[string]interface{}{"n": 42.0, "b": true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ScanParameters(tt.params), tt.violations)
		})
	}
}

// TestScanURLParameter tests URL-aware scanning for declared URL params
func TestScanURLParameter(t *testing.T) {
	tests := []struct {
		name       string
		value      interface{}
		violations int
	}{
		{"plain https", "https://example.com/status", 0},
		{"http with query", "http://example.com/search?q=go&page=2", 0},
		{"javascript scheme", "javascript:alert(1)", 1},
		{"relative path", "/etc/passwd", 1},
		{"no host", "https://", 1},
		{"script marker", "https://example.com/<script>", 1},
		{"non-string left to schema", 42.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ScanURLParameter("url", tt.value), tt.violations)
		})
	}
}

// TestManager_URLParameterScan tests that a declared URL parameter is
// not rejected for the "//" every well-formed URL carries
func TestManager_URLParameterScan(t *testing.T) {
	m := newTestManager(t, nil)

	fetch := &tool.Definition{
		Name:               "http_get",
		Description:        "fetch a URL",
		Category:           tool.CategoryNetwork,
		RequiredPermission: tool.LevelUser,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Format: tool.FormatURL, Description: "URL to fetch", Required: true},
			{Name: "note", Type: "string", Description: "free text"},
		},
		Handler: func(_ context.Context, _ *tool.ExecutionContext) (interface{}, error) { return nil, nil },
	}

	check := m.ValidateExecution("alice", fetch, map[string]interface{}{"url": "https://example.com/status"})
	assert.True(t, check.IsAllowed, "denied: %s", check.DenialReason)

	// Non-http(s) values are still rejected
	check = m.ValidateExecution("alice", fetch, map[string]interface{}{"url": "javascript:alert(1)"})
	assert.False(t, check.IsAllowed)
	assert.Contains(t, check.DenialReason, "http(s) URL")

	// Other parameters of the same tool keep the full pattern set
	check = m.ValidateExecution("alice", fetch, map[string]interface{}{
		"url":  "https://example.com/",
		"note": "../../etc/passwd",
	})
	assert.False(t, check.IsAllowed)
	assert.Contains(t, check.DenialReason, "disallowed sequence")
}

// TestManager_ValidateExecution tests the composite security check
func TestManager_ValidateExecution(t *testing.T) {
	m := newTestManager(t, nil)

	// Permission denial carries the reason
	sysTool := readOnlyTool("restart_service", tool.CategorySystem, tool.LevelElevated)
	check := m.ValidateExecution("alice", sysTool, nil)
	assert.False(t, check.IsAllowed)
	assert.Contains(t, check.DenialReason, "insufficient permissions")

	// Injection scan denial
	fsTool := readOnlyTool("read_file", tool.CategoryFileSystem, tool.LevelUser)
	check = m.ValidateExecution("alice", fsTool, map[string]interface{}{"path": "../secret"})
	assert.False(t, check.IsAllowed)
	assert.Contains(t, check.DenialReason, "security violation")

	// Modifying tools pass with warnings and required actions
	check = m.ValidateExecution("alice", modifyingTool("write_file"), map[string]interface{}{"path": "a.txt"})
	assert.True(t, check.IsAllowed)
	assert.NotEmpty(t, check.Warnings)
	assert.Contains(t, check.RequiredActions, "backup")
	assert.Contains(t, check.RequiredActions, "approval")
}

// TestManager_SimulatedApprovalPolicy tests the default provider policy
func TestManager_SimulatedApprovalPolicy(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	// Read-only tools auto-approve
	result, err := m.RequestApproval(ctx, "alice", readOnlyTool("read_file", tool.CategoryFileSystem, tool.LevelUser), nil)
	require.NoError(t, err)
	assert.True(t, result.IsApproved)
	assert.NotEmpty(t, result.ApprovalID)

	// Modifying tools are denied by default
	result, err = m.RequestApproval(ctx, "alice", modifyingTool("write_file"), map[string]interface{}{"path": "a.txt"})
	require.NoError(t, err)
	assert.False(t, result.IsApproved)
}

// TestManager_RememberedApproval tests the approval cache round-trip
func TestManager_RememberedApproval(t *testing.T) {
	provider := &recordingProvider{decision: ApprovalDecision{
		Approved:         true,
		RememberDecision: true,
		ValidityDuration: time.Hour,
	}}
	m := newTestManager(t, provider)
	ctx := context.Background()
	def := modifyingTool("write_file")
	params := map[string]interface{}{"path": "a.txt", "content": "x"}

	first, err := m.RequestApproval(ctx, "alice", def, params)
	require.NoError(t, err)
	require.True(t, first.IsApproved)
	assert.Equal(t, 1, provider.callCount())

	// Identical signature reuses the remembered decision
	second, err := m.RequestApproval(ctx, "alice", def, params)
	require.NoError(t, err)
	assert.True(t, second.IsApproved)
	assert.Equal(t, first.ApprovalID, second.ApprovalID)
	assert.Equal(t, 1, provider.callCount())

	// Key order does not matter, values do
	reordered := map[string]interface{}{"content": "x", "path": "a.txt"}
	third, err := m.RequestApproval(ctx, "alice", def, reordered)
	require.NoError(t, err)
	assert.Equal(t, first.ApprovalID, third.ApprovalID)
	assert.Equal(t, 1, provider.callCount())

	// Different parameters trigger a fresh round-trip
	_, err = m.RequestApproval(ctx, "alice", def, map[string]interface{}{"path": "b.txt", "content": "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())

	// A different user never reuses another user's approval
	_, err = m.RequestApproval(ctx, "bob", def, params)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.callCount())
}

// TestManager_ApprovalExpiry tests that expired approvals are not reused
func TestManager_ApprovalExpiry(t *testing.T) {
	provider := &recordingProvider{decision: ApprovalDecision{
		Approved:         true,
		RememberDecision: true,
		ValidityDuration: 10 * time.Millisecond,
	}}
	m := newTestManager(t, provider)
	ctx := context.Background()
	def := modifyingTool("write_file")
	params := map[string]interface{}{"path": "a.txt"}

	_, err := m.RequestApproval(ctx, "alice", def, params)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = m.RequestApproval(ctx, "alice", def, params)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount())

	// The sweeper path removes the stale entry from the store
	removed, err := m.PruneExpiredApprovals(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)
}

// TestManager_ConcurrentApprovalDedup tests that identical concurrent
// requests share one provider round-trip
func TestManager_ConcurrentApprovalDedup(t *testing.T) {
	provider := &recordingProvider{
		decision: ApprovalDecision{Approved: true},
		delay:    50 * time.Millisecond,
	}
	m := newTestManager(t, provider)
	def := modifyingTool("write_file")
	params := map[string]interface{}{"path": "a.txt"}

	var wg sync.WaitGroup
	results := make([]ApprovalResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			result, err := m.RequestApproval(context.Background(), "alice", def, params)
			assert.NoError(t, err)
			results[idx] = result
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, provider.callCount())
	for _, result := range results {
		assert.True(t, result.IsApproved)
		assert.Equal(t, results[0].ApprovalID, result.ApprovalID)
	}
}

// TestManager_ApprovalTimeout tests that a slow approver means denial
func TestManager_ApprovalTimeout(t *testing.T) {
	provider := &recordingProvider{
		decision: ApprovalDecision{Approved: true},
		delay:    5 * time.Second,
	}
	m, err := NewManager(ManagerConfig{
		Store:            NewMemoryStore(),
		ApprovalProvider: provider,
		ApprovalTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := m.RequestApproval(context.Background(), "alice", modifyingTool("write_file"), nil)
	require.NoError(t, err)
	assert.False(t, result.IsApproved)
	assert.Contains(t, result.Comments, "timed out")
}

// TestManager_BackupAndRestore tests the pre-modification backup cycle
func TestManager_BackupAndRestore(t *testing.T) {
	workDir := t.TempDir()
	target := filepath.Join(workDir, "data.txt")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	backupper, err := NewFileBackupper(t.TempDir())
	require.NoError(t, err)

	m, err := NewManager(ManagerConfig{
		Store:     NewMemoryStore(),
		Backupper: backupper,
	})
	require.NoError(t, err)

	ctx := context.Background()
	info, err := m.CreateBackup(ctx, modifyingTool("write_file"), map[string]interface{}{"path": target})
	require.NoError(t, err)
	assert.True(t, info.CanRestore)
	require.Len(t, info.Files, 1)

	// Clobber the file, then restore
	require.NoError(t, os.WriteFile(target, []byte("clobbered"), 0644))
	require.NoError(t, m.RestoreBackup(ctx, info.BackupID))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

// TestManager_RestoreUnknownBackup tests restore failure modes
func TestManager_RestoreUnknownBackup(t *testing.T) {
	m := newTestManager(t, nil)

	err := m.RestoreBackup(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backup")
}

// TestManager_BackupWithoutFiles tests that a backup of nonexistent
// paths is recorded but marked non-restorable
func TestManager_BackupWithoutFiles(t *testing.T) {
	backupper, err := NewFileBackupper(t.TempDir())
	require.NoError(t, err)

	m, err := NewManager(ManagerConfig{Store: NewMemoryStore(), Backupper: backupper})
	require.NoError(t, err)

	info, err := m.CreateBackup(context.Background(), modifyingTool("write_file"),
		map[string]interface{}{"path": "/definitely/not/here.txt"})
	require.NoError(t, err)
	assert.False(t, info.CanRestore)
	assert.Empty(t, info.Files)
}

// TestManager_AuditTrail tests append and filtered reads
func TestManager_AuditTrail(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	entries := []AuditEntry{
		{UserID: "alice", ToolName: "read_file", IsSuccess: true, Timestamp: base},
		{UserID: "bob", ToolName: "write_file", IsSuccess: false, Timestamp: base.Add(10 * time.Minute)},
		{UserID: "alice", ToolName: "http_get", IsSuccess: true, Timestamp: base.Add(20 * time.Minute)},
	}
	for _, entry := range entries {
		require.NoError(t, m.LogExecution(ctx, entry))
	}

	// Unfiltered, newest first
	all, err := m.GetAuditTrail(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "http_get", all[0].ToolName)
	// Every entry got an id assigned
	for _, entry := range all {
		assert.NotEmpty(t, entry.AuditID)
	}

	// User filter
	mine, err := m.GetAuditTrail(ctx, AuditFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	// Time window
	from := base.Add(5 * time.Minute)
	to := base.Add(15 * time.Minute)
	windowed, err := m.GetAuditTrail(ctx, AuditFilter{FromDate: &from, ToDate: &to})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "write_file", windowed[0].ToolName)

	// Reads are idempotent
	again, err := m.GetAuditTrail(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

// TestApprovalCacheKey tests canonical signature properties
func TestApprovalCacheKey(t *testing.T) {
	a := approvalCacheKey("alice", "write_file", map[string]interface{}{"x": 1, "y": "z"})
	b := approvalCacheKey("alice", "write_file", map[string]interface{}{"y": "z", "x": 1})
	assert.Equal(t, a, b)

	// Value, tool and user all participate in the key
	assert.NotEqual(t, a, approvalCacheKey("alice", "write_file", map[string]interface{}{"x": 2, "y": "z"}))
	assert.NotEqual(t, a, approvalCacheKey("alice", "delete_file", map[string]interface{}{"x": 1, "y": "z"}))
	assert.NotEqual(t, a, approvalCacheKey("bob", "write_file", map[string]interface{}{"x": 1, "y": "z"}))
}
