package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists security state in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and prepares
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_log (
		audit_id          TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		tool_name         TEXT NOT NULL,
		parameters        TEXT,
		result_summary    TEXT,
		is_success        INTEGER NOT NULL,
		timestamp         INTEGER NOT NULL,
		duration_ms       INTEGER NOT NULL,
		modified_files    TEXT,
		backup_id         TEXT,
		client_id         TEXT,
		required_approval INTEGER NOT NULL,
		approval_obtained INTEGER NOT NULL,
		approval_id       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_user_time ON audit_log(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS backups (
		backup_id     TEXT PRIMARY KEY,
		created_at    INTEGER NOT NULL,
		files         TEXT,
		registry_keys TEXT,
		description   TEXT,
		can_restore   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS approvals (
		cache_key         TEXT PRIMARY KEY,
		approval_id       TEXT NOT NULL,
		is_approved       INTEGER NOT NULL,
		approval_time     INTEGER NOT NULL,
		comments          TEXT,
		validity_ms       INTEGER NOT NULL,
		remember_decision INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendAudit inserts one immutable audit row.
func (s *SQLiteStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	params, err := json.Marshal(entry.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			audit_id, user_id, tool_name, parameters, result_summary,
			is_success, timestamp, duration_ms, modified_files, backup_id,
			client_id, required_approval, approval_obtained, approval_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AuditID,
		entry.UserID,
		entry.ToolName,
		string(params),
		entry.ResultSummary,
		boolInt(entry.IsSuccess),
		entry.Timestamp.UnixMilli(),
		entry.Duration.Milliseconds(),
		strings.Join(entry.ModifiedFiles, "\n"),
		entry.BackupID,
		entry.ClientID,
		boolInt(entry.RequiredApproval),
		boolInt(entry.ApprovalObtained),
		entry.ApprovalID,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditTrail queries entries ordered descending by timestamp.
func (s *SQLiteStore) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	query := `SELECT audit_id, user_id, tool_name, parameters, result_summary,
		is_success, timestamp, duration_ms, modified_files, backup_id,
		client_id, required_approval, approval_obtained, approval_id
		FROM audit_log WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.FromDate != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.FromDate.UnixMilli())
	}
	if filter.ToDate != nil {
		query += " AND timestamp <= ?"
		args = append(args, filter.ToDate.UnixMilli())
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var entry AuditEntry
		var params, modifiedFiles string
		var success, requiredApproval, approvalObtained int
		var timestamp, durationMs int64

		if err := rows.Scan(
			&entry.AuditID, &entry.UserID, &entry.ToolName, &params,
			&entry.ResultSummary, &success, &timestamp, &durationMs,
			&modifiedFiles, &entry.BackupID, &entry.ClientID,
			&requiredApproval, &approvalObtained, &entry.ApprovalID,
		); err != nil {
			return nil, err
		}

		if params != "" && params != "null" {
			if err := json.Unmarshal([]byte(params), &entry.Parameters); err != nil {
				return nil, fmt.Errorf("failed to decode parameters: %w", err)
			}
		}
		if modifiedFiles != "" {
			entry.ModifiedFiles = strings.Split(modifiedFiles, "\n")
		}
		entry.IsSuccess = success != 0
		entry.RequiredApproval = requiredApproval != 0
		entry.ApprovalObtained = approvalObtained != 0
		entry.Timestamp = time.UnixMilli(timestamp)
		entry.Duration = time.Duration(durationMs) * time.Millisecond

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// PutBackup upserts backup metadata.
func (s *SQLiteStore) PutBackup(ctx context.Context, info BackupInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (backup_id, created_at, files, registry_keys, description, can_restore)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(backup_id) DO UPDATE SET can_restore = excluded.can_restore`,
		info.BackupID,
		info.CreatedAt.UnixMilli(),
		strings.Join(info.Files, "\n"),
		strings.Join(info.RegistryKeys, "\n"),
		info.Description,
		boolInt(info.CanRestore),
	)
	if err != nil {
		return fmt.Errorf("failed to store backup: %w", err)
	}
	return nil
}

// GetBackup returns backup metadata, or nil when unknown.
func (s *SQLiteStore) GetBackup(ctx context.Context, backupID string) (*BackupInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT backup_id, created_at, files, registry_keys, description, can_restore
		FROM backups WHERE backup_id = ?`, backupID)

	var info BackupInfo
	var files, registryKeys string
	var createdAt int64
	var canRestore int

	err := row.Scan(&info.BackupID, &createdAt, &files, &registryKeys, &info.Description, &canRestore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info.CreatedAt = time.UnixMilli(createdAt)
	if files != "" {
		info.Files = strings.Split(files, "\n")
	}
	if registryKeys != "" {
		info.RegistryKeys = strings.Split(registryKeys, "\n")
	}
	info.CanRestore = canRestore != 0

	return &info, nil
}

// PutApproval upserts a remembered approval by cache key.
func (s *SQLiteStore) PutApproval(ctx context.Context, key string, approval ApprovalResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (cache_key, approval_id, is_approved, approval_time, comments, validity_ms, remember_decision)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			approval_id = excluded.approval_id,
			is_approved = excluded.is_approved,
			approval_time = excluded.approval_time,
			comments = excluded.comments,
			validity_ms = excluded.validity_ms,
			remember_decision = excluded.remember_decision`,
		key,
		approval.ApprovalID,
		boolInt(approval.IsApproved),
		approval.ApprovalTime.UnixMilli(),
		approval.Comments,
		approval.ValidityDuration.Milliseconds(),
		boolInt(approval.RememberDecision),
	)
	if err != nil {
		return fmt.Errorf("failed to store approval: %w", err)
	}
	return nil
}

// GetApproval returns a remembered approval, or nil when absent.
func (s *SQLiteStore) GetApproval(ctx context.Context, key string) (*ApprovalResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT approval_id, is_approved, approval_time, comments, validity_ms, remember_decision
		FROM approvals WHERE cache_key = ?`, key)

	var approval ApprovalResult
	var approved, remember int
	var approvalTime, validityMs int64

	err := row.Scan(&approval.ApprovalID, &approved, &approvalTime, &approval.Comments, &validityMs, &remember)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	approval.IsApproved = approved != 0
	approval.ApprovalTime = time.UnixMilli(approvalTime)
	approval.ValidityDuration = time.Duration(validityMs) * time.Millisecond
	approval.RememberDecision = remember != 0

	return &approval, nil
}

// DeleteExpiredApprovals prunes approvals past their validity window.
func (s *SQLiteStore) DeleteExpiredApprovals(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM approvals WHERE approval_time + validity_ms <= ?`,
		now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune approvals: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned approvals: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
