package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/toolgate/toolgate/internal/observability"
	"github.com/toolgate/toolgate/pkg/tool"
)

// Manager is the security gatekeeper: per-user permission settings,
// approval round-trips with a remembered cache, backups before
// modifying executions, and the append-only audit trail.
//
// All mutable state is guarded by a single manager-wide mutex; the
// blocking part of an approval round-trip runs outside it.
type Manager struct {
	store     Store
	provider  ApprovalProvider
	backupper *FileBackupper

	approvalTimeout time.Duration
	defaultValidity time.Duration

	mu       sync.Mutex
	settings map[string]*UserPermissionSettings
	inflight map[string]*inflightApproval
}

type inflightApproval struct {
	done   chan struct{}
	result ApprovalResult
	err    error
}

// ManagerConfig configures a security manager.
type ManagerConfig struct {
	Store            Store
	ApprovalProvider ApprovalProvider
	Backupper        *FileBackupper
	ApprovalTimeout  time.Duration
	DefaultValidity  time.Duration
}

// NewManager creates a security manager. Store is required; the
// approval provider defaults to the simulated policy and the approval
// timeout to 60s.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	provider := cfg.ApprovalProvider
	if provider == nil {
		provider = &SimulatedApprovalProvider{}
	}

	timeout := cfg.ApprovalTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	validity := cfg.DefaultValidity
	if validity <= 0 {
		validity = 30 * time.Minute
	}

	m := &Manager{
		store:           cfg.Store,
		provider:        provider,
		backupper:       cfg.Backupper,
		approvalTimeout: timeout,
		defaultValidity: validity,
		settings:        make(map[string]*UserPermissionSettings),
		inflight:        make(map[string]*inflightApproval),
	}

	log.Info().Dur("approval_timeout", timeout).Msg("Security manager initialized")
	return m, nil
}

// SetApprovalProvider swaps the approval provider. Used at startup to
// inject the gateway once it exists; round-trips already in flight keep
// the provider they started with.
func (m *Manager) SetApprovalProvider(provider ApprovalProvider) {
	if provider == nil {
		return
	}
	m.mu.Lock()
	m.provider = provider
	m.mu.Unlock()
}

// settingsLocked returns (creating on first reference) the settings for
// a user. Caller holds the lock.
func (m *Manager) settingsLocked(userID string) *UserPermissionSettings {
	s, ok := m.settings[userID]
	if !ok {
		s = DefaultSettings(userID)
		m.settings[userID] = s
		log.Debug().Str("user", userID).Msg("Created default permission settings")
	}
	return s
}

// GetUserSettings returns a copy of the user's settings.
func (m *Manager) GetUserSettings(userID string) *UserPermissionSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(userID).clone()
}

// SetUserSettings replaces a user's settings wholesale. Used by the
// settings file loader.
func (m *Manager) SetUserSettings(s *UserPermissionSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.UserID] = s.clone()
}

// GetUserPermissionLevel returns the user's current level.
func (m *Manager) GetUserPermissionLevel(userID string) tool.PermissionLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(userID).PermissionLevel
}

// SetUserPermissionLevel changes a user's level and resets its allowed
// categories to the fixed policy mapping for that level. Explicit
// per-tool allow/deny entries survive the reset.
func (m *Manager) SetUserPermissionLevel(userID string, level tool.PermissionLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.settingsLocked(userID)
	s.PermissionLevel = level
	s.AllowedCategories = CategoriesForLevel(level)

	log.Info().
		Str("user", userID).
		Str("level", level.String()).
		Msg("Permission level changed")
}

// AddAllowedTool appends a per-tool allow entry.
func (m *Manager) AddAllowedTool(userID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settingsLocked(userID)
	if !s.ToolExplicitlyAllowed(toolName) {
		s.ExplicitlyAllowedTools = append(s.ExplicitlyAllowedTools, toolName)
	}
}

// AddDeniedTool appends a per-tool deny entry. Deny always wins.
func (m *Manager) AddDeniedTool(userID, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.settingsLocked(userID)
	if !s.ToolExplicitlyDenied(toolName) {
		s.ExplicitlyDeniedTools = append(s.ExplicitlyDeniedTools, toolName)
	}
}

// HasPermission evaluates whether the user may invoke the tool: level
// ordering, then category membership or explicit allow, with the
// explicit deny-list overriding both.
func (m *Manager) HasPermission(userID string, def *tool.Definition) bool {
	m.mu.Lock()
	s := m.settingsLocked(userID)
	m.mu.Unlock()

	if s.ToolExplicitlyDenied(def.Name) {
		return false
	}
	if s.PermissionLevel < def.RequiredPermission {
		return false
	}
	return s.CategoryAllowed(def.Category) || s.ToolExplicitlyAllowed(def.Name)
}

// scanWithDefinition runs the injection scan with the tool's parameter
// contract in hand: parameters declared URL-formatted get URL-aware
// rules, everything else the full pattern set.
func scanWithDefinition(def *tool.Definition, params map[string]interface{}) []string {
	urls := def.URLParameters()
	if len(urls) == 0 {
		return ScanParameters(params)
	}

	violations := []string{}
	rest := make(map[string]interface{}, len(params))
	for key, value := range params {
		if urls[key] {
			violations = append(violations, ScanURLParameter(key, value)...)
			continue
		}
		rest[key] = value
	}
	return append(violations, ScanParameters(rest)...)
}

// ValidateExecution runs the composite security check: permission,
// parameter injection scan, and modifying-tool warnings. The first
// failing sub-check short-circuits with its denial reason.
func (m *Manager) ValidateExecution(userID string, def *tool.Definition, params map[string]interface{}) CheckResult {
	if !m.HasPermission(userID, def) {
		level := m.GetUserPermissionLevel(userID)
		reason := fmt.Sprintf("insufficient permissions: tool %s requires %s, user %s has %s",
			def.Name, def.RequiredPermission, userID, level)
		observability.RecordSecurityDenial("permission")
		log.Warn().Str("user", userID).Str("tool", def.Name).Msg("Execution denied by permission check")
		return CheckResult{IsAllowed: false, DenialReason: reason}
	}

	if violations := scanWithDefinition(def, params); len(violations) > 0 {
		observability.RecordSecurityDenial("injection")
		log.Warn().
			Str("user", userID).
			Str("tool", def.Name).
			Strs("violations", violations).
			Msg("Execution denied by parameter scan")
		return CheckResult{
			IsAllowed:    false,
			DenialReason: fmt.Sprintf("security violation: %s", violations[0]),
			Warnings:     violations,
		}
	}

	result := CheckResult{IsAllowed: true}
	if def.IsModifying {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("tool %s modifies system state", def.Name))
		result.RequiredActions = append(result.RequiredActions, "backup")
		if def.RequiresApproval {
			result.RequiredActions = append(result.RequiredActions, "approval")
		}
	}

	return result
}

// RequestApproval conducts (or reuses) an approval round-trip for the
// invocation. Remembered decisions are keyed by (user, tool, canonical
// parameter signature) and honored until expiry; concurrent requests
// for an identical signature share a single round-trip.
func (m *Manager) RequestApproval(ctx context.Context, userID string, def *tool.Definition, params map[string]interface{}) (ApprovalResult, error) {
	key := approvalCacheKey(userID, def.Name, params)

	m.mu.Lock()
	remember := m.settingsLocked(userID).RememberApprovals
	validity := m.settingsLocked(userID).ApprovalValidity
	if validity <= 0 {
		validity = m.defaultValidity
	}

	// Remembered-approval lookup and in-flight registration happen
	// under the same lock so two callers cannot both miss the cache
	// and both prompt the approver.
	if remember {
		cached, err := m.store.GetApproval(ctx, key)
		if err == nil && cached != nil && !cached.Expired(time.Now()) {
			m.mu.Unlock()
			log.Debug().Str("tool", def.Name).Str("approval_id", cached.ApprovalID).Msg("Reusing remembered approval")
			return *cached, nil
		}
	}

	if pending, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		select {
		case <-pending.done:
			return pending.result, pending.err
		case <-ctx.Done():
			return ApprovalResult{}, ctx.Err()
		}
	}

	pending := &inflightApproval{done: make(chan struct{})}
	m.inflight[key] = pending
	m.mu.Unlock()

	result, err := m.performApproval(ctx, userID, def, params, validity)

	m.mu.Lock()
	pending.result = result
	pending.err = err
	delete(m.inflight, key)

	if err == nil && remember && result.RememberDecision {
		if storeErr := m.store.PutApproval(ctx, key, result); storeErr != nil {
			log.Error().Err(storeErr).Msg("Failed to remember approval")
		}
	}
	m.mu.Unlock()
	close(pending.done)

	return result, err
}

// performApproval runs one provider round-trip bounded by the approval
// timeout. A timeout is a denial, not an indefinite block.
func (m *Manager) performApproval(ctx context.Context, userID string, def *tool.Definition, params map[string]interface{}, validity time.Duration) (ApprovalResult, error) {
	req := ApprovalRequest{
		UserID:      userID,
		ToolName:    def.Name,
		Category:    def.Category,
		IsModifying: def.IsModifying,
		Parameters:  params,
		Preview:     def.Preview(params),
		Timeout:     m.approvalTimeout,
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.approvalTimeout)
	defer cancel()

	log.Info().
		Str("user", userID).
		Str("tool", def.Name).
		Str("preview", req.Preview).
		Msg("Requesting approval")

	m.mu.Lock()
	provider := m.provider
	m.mu.Unlock()

	type response struct {
		decision ApprovalDecision
		err      error
	}
	respChan := make(chan response, 1)
	go func() {
		decision, err := provider.RequestApproval(timeoutCtx, req)
		respChan <- response{decision, err}
	}()

	var decision ApprovalDecision
	select {
	case resp := <-respChan:
		if resp.err != nil {
			observability.RecordApproval("error")
			return ApprovalResult{}, fmt.Errorf("approval request failed: %w", resp.err)
		}
		decision = resp.decision
	case <-timeoutCtx.Done():
		observability.RecordApproval("timeout")
		log.Warn().Str("tool", def.Name).Dur("timeout", m.approvalTimeout).Msg("Approval request timed out")
		decision = ApprovalDecision{
			Approved: false,
			Comments: fmt.Sprintf("approval request timed out after %v", m.approvalTimeout),
		}
	}

	result := ApprovalResult{
		IsApproved:       decision.Approved,
		ApprovalID:       uuid.NewString(),
		ApprovalTime:     time.Now(),
		Comments:         decision.Comments,
		RememberDecision: decision.RememberDecision,
		ValidityDuration: decision.ValidityDuration,
	}
	if result.RememberDecision && result.ValidityDuration <= 0 {
		result.ValidityDuration = validity
	}

	if decision.Approved {
		observability.RecordApproval("approved")
		log.Info().Str("tool", def.Name).Str("comments", decision.Comments).Msg("Approval granted")
	} else {
		observability.RecordApproval("denied")
		log.Warn().Str("tool", def.Name).Str("comments", decision.Comments).Msg("Approval denied")
	}

	return result, nil
}

// CreateBackup captures state before a modifying execution and records
// its metadata. The file capture mechanics come from the backupper
// collaborator; without one the backup is metadata-only and marked
// non-restorable.
func (m *Manager) CreateBackup(ctx context.Context, def *tool.Definition, params map[string]interface{}) (BackupInfo, error) {
	info := BackupInfo{
		BackupID:    uuid.NewString(),
		CreatedAt:   time.Now(),
		Description: fmt.Sprintf("pre-execution backup for %s", def.Name),
	}

	if m.backupper != nil {
		captured, err := m.backupper.Capture(info.BackupID, CandidatePaths(params))
		if err != nil {
			return BackupInfo{}, fmt.Errorf("backup capture failed: %w", err)
		}
		info.Files = captured
		info.CanRestore = len(captured) > 0
	}

	if err := m.store.PutBackup(ctx, info); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to record backup: %w", err)
	}

	log.Info().
		Str("backup_id", info.BackupID).
		Str("tool", def.Name).
		Int("files", len(info.Files)).
		Msg("Backup created")

	return info, nil
}

// RestoreBackup restores a previously captured backup. Fails when the
// id is unknown or the backup cannot be restored.
func (m *Manager) RestoreBackup(ctx context.Context, backupID string) error {
	info, err := m.store.GetBackup(ctx, backupID)
	if err != nil {
		return fmt.Errorf("failed to look up backup: %w", err)
	}
	if info == nil {
		return fmt.Errorf("unknown backup: %s", backupID)
	}
	if !info.CanRestore {
		return fmt.Errorf("backup %s cannot be restored", backupID)
	}
	if m.backupper == nil {
		return fmt.Errorf("no backup mechanics configured")
	}

	return m.backupper.Restore(info)
}

// LogExecution appends one immutable entry to the audit trail.
func (m *Manager) LogExecution(ctx context.Context, entry AuditEntry) error {
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.mu.Lock()
	err := m.store.AppendAudit(ctx, entry)
	m.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("tool", entry.ToolName).Msg("Failed to append audit entry")
		return err
	}

	observability.RecordAuditAppend()
	log.Debug().
		Str("audit_id", entry.AuditID).
		Str("tool", entry.ToolName).
		Bool("success", entry.IsSuccess).
		Msg("Audit entry appended")
	return nil
}

// GetAuditTrail returns audit entries matching the filter, ordered
// descending by execution time. Reads never mutate the trail.
func (m *Manager) GetAuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return m.store.AuditTrail(ctx, filter)
}

// PruneExpiredApprovals removes remembered approvals past expiry.
func (m *Manager) PruneExpiredApprovals(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.DeleteExpiredApprovals(ctx, time.Now())
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
