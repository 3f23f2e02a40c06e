package approval

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Audit event types emitted by the approval engine.
const (
	EventApprovalCreated   = "approval.created"
	EventApprovalResponded = "approval.responded"
	EventApprovalDeleted   = "approval.deleted"
)

// AuditEventRecord is an immutable record of something that happened to an
// approval.
type AuditEventRecord struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	SubjectKey string    `gorm:"column:subject_key;index:idx_audit_subject;not null"`
	ApprovalID string    `gorm:"column:approval_id;index:idx_audit_approval"`
	EventType  string    `gorm:"column:event_type;index:idx_audit_type;not null"`
	Actor      string    `gorm:"column:actor"`
	Outcome    string    `gorm:"column:outcome"`
	Reason     string    `gorm:"column:reason"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (AuditEventRecord) TableName() string { return "approval_events" }

// AuditStore provides append-only operations for approval audit events.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// AutoMigrate creates or updates the audit table.
func (s *AuditStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AuditEventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate approval_events: %w", err)
	}
	return nil
}

// Append creates a new immutable audit event record.
func (s *AuditStore) Append(event *AuditEventRecord) error {
	if err := s.db.Create(event).Error; err != nil {
		return fmt.Errorf("append approval event: %w", err)
	}
	return nil
}

// ListBySubject returns paginated audit events for a subject, newest first.
// pageToken is an RFC3339Nano timestamp; events older than it are returned.
func (s *AuditStore) ListBySubject(subjectKey string, pageSize int, pageToken string) ([]AuditEventRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.Where("subject_key = ?", subjectKey).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []AuditEventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list approval events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, nil
}

// DeleteOlderThan deletes audit events created before the cutoff.
// Returns the number of deleted records.
func (s *AuditStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&AuditEventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old approval events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
