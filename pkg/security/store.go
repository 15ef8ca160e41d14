package security

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists the security manager's durable state: the append-only
// audit trail, the backup index and the remembered-approval cache.
type Store interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	PutBackup(ctx context.Context, info BackupInfo) error
	GetBackup(ctx context.Context, backupID string) (*BackupInfo, error)

	PutApproval(ctx context.Context, key string, approval ApprovalResult) error
	GetApproval(ctx context.Context, key string) (*ApprovalResult, error)
	DeleteExpiredApprovals(ctx context.Context, now time.Time) (int, error)

	Close() error
}

// MemoryStore is an in-process Store used in tests and as the default
// when no database path is configured.
type MemoryStore struct {
	mu        sync.Mutex
	audit     []AuditEntry
	backups   map[string]BackupInfo
	approvals map[string]ApprovalResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		backups:   make(map[string]BackupInfo),
		approvals: make(map[string]ApprovalResult),
	}
}

// AppendAudit appends an entry to the trail.
func (m *MemoryStore) AppendAudit(_ context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// AuditTrail returns matching entries ordered descending by timestamp.
// Reads never mutate the trail.
func (m *MemoryStore) AuditTrail(_ context.Context, filter AuditFilter) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []AuditEntry{}
	for _, entry := range m.audit {
		if !matchesFilter(entry, filter) {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out, nil
}

// PutBackup records backup metadata.
func (m *MemoryStore) PutBackup(_ context.Context, info BackupInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[info.BackupID] = info
	return nil
}

// GetBackup returns backup metadata, or nil when unknown.
func (m *MemoryStore) GetBackup(_ context.Context, backupID string) (*BackupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.backups[backupID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// PutApproval stores a remembered approval under its signature key.
func (m *MemoryStore) PutApproval(_ context.Context, key string, approval ApprovalResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[key] = approval
	return nil
}

// GetApproval returns a remembered approval, or nil when absent.
func (m *MemoryStore) GetApproval(_ context.Context, key string) (*ApprovalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	approval, ok := m.approvals[key]
	if !ok {
		return nil, nil
	}
	return &approval, nil
}

// DeleteExpiredApprovals prunes approvals past their validity.
func (m *MemoryStore) DeleteExpiredApprovals(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, approval := range m.approvals {
		if approval.Expired(now) {
			delete(m.approvals, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

func matchesFilter(entry AuditEntry, filter AuditFilter) bool {
	if filter.UserID != "" && entry.UserID != filter.UserID {
		return false
	}
	if filter.FromDate != nil && entry.Timestamp.Before(*filter.FromDate) {
		return false
	}
	if filter.ToDate != nil && entry.Timestamp.After(*filter.ToDate) {
		return false
	}
	return true
}
