package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/onecrazygenius/bailo/pkg/entity"
)

// Store provides persistence for approvals. The find-or-create upsert on the
// (subject, approver set, type) tuple is the sole synchronization point for
// concurrent submissions.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the approval tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate approvals: %w", err)
	}
	if err := s.db.AutoMigrate(&ApproverRecord{}); err != nil {
		return fmt.Errorf("auto-migrate approval_approvers: %w", err)
	}
	return nil
}

// FindOrCreate inserts an approval for the given subject and approver set
// unless an equivalent one already exists, in which case the existing record
// is returned unchanged. The insert relies on the unique index over
// (subject_key, approver_key, approval_type), so two concurrent submissions
// cannot both create.
func (s *Store) FindOrCreate(subject Subject, requester string, approvers []entity.Entity, approvalType Type) (*Record, bool, error) {
	rec := &Record{
		ID:          uuid.New().String(),
		SubjectKey:  subject.Key(),
		SubjectName: subject.Name,
		ApproverKey: approverKey(approvers),
		Type:        approvalType,
		Category:    subject.Category(),
		Status:      StatusNoResponse,
		Requester:   requester,
	}
	switch subject.Kind {
	case SubjectVersion:
		id := subject.ID
		rec.VersionID = &id
	case SubjectDeployment:
		id := subject.ID
		rec.DeploymentID = &id
	default:
		return nil, false, fmt.Errorf("unknown subject kind %q", subject.Kind)
	}

	var created bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_key"}, {Name: "approver_key"}, {Name: "approval_type"}},
			DoNothing: true,
		}).Create(rec)
		if result.Error != nil {
			return fmt.Errorf("create approval: %w", result.Error)
		}
		created = result.RowsAffected > 0

		if created {
			rows := make([]ApproverRecord, len(approvers))
			for i, e := range approvers {
				rows[i] = ApproverRecord{
					ID:         uuid.New().String(),
					ApprovalID: rec.ID,
					Kind:       e.Kind,
					EntityID:   e.ID,
				}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("create approval approvers: %w", err)
			}
			return nil
		}

		// The tuple already exists; load it into a fresh destination so the
		// generated id above does not leak into the query conditions.
		var existing Record
		if err := tx.Where(
			"subject_key = ? AND approver_key = ? AND approval_type = ?",
			rec.SubjectKey, rec.ApproverKey, string(approvalType),
		).First(&existing).Error; err != nil {
			return fmt.Errorf("load existing approval: %w", err)
		}
		*rec = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, created, nil
}

// Get retrieves an approval and its approver rows by id.
// Returns nil, nil, nil if no approval exists.
func (s *Store) Get(id string) (*Record, []ApproverRecord, error) {
	var rec Record
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get approval: %w", err)
	}
	approvers, err := s.approversFor(rec.ID)
	if err != nil {
		return nil, nil, err
	}
	return &rec, approvers, nil
}

func (s *Store) approversFor(approvalID string) ([]ApproverRecord, error) {
	var approvers []ApproverRecord
	if err := s.db.Where("approval_id = ?", approvalID).Find(&approvers).Error; err != nil {
		return nil, fmt.Errorf("get approval approvers: %w", err)
	}
	return approvers, nil
}

// Approvers returns the approver rows for an approval.
func (s *Store) Approvers(approvalID string) ([]ApproverRecord, error) {
	return s.approversFor(approvalID)
}

// membershipSubquery builds a subquery selecting approval ids whose approver
// set contains any of the given entities.
func (s *Store) membershipSubquery(entities []entity.Entity) *gorm.DB {
	cond := s.db.Where("kind = ? AND entity_id = ?", string(entities[0].Kind), entities[0].ID)
	for _, e := range entities[1:] {
		cond = cond.Or("kind = ? AND entity_id = ?", string(e.Kind), e.ID)
	}
	return s.db.Model(&ApproverRecord{}).Select("approval_id").Where(cond)
}

// List returns paginated approvals for a category, optionally restricted to
// approvals whose approver set names any of the given entities. Pending
// approvals (status "No Response") are returned unless includeArchived, in
// which case only resolved ones are.
func (s *Store) List(category Category, approverEntities []entity.Entity, includeArchived bool, pageSize int, pageToken string) ([]Record, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	applyFilters := func(q *gorm.DB) *gorm.DB {
		q = q.Where("approval_category = ?", string(category))
		if includeArchived {
			q = q.Where("status <> ?", string(StatusNoResponse))
		} else {
			q = q.Where("status = ?", string(StatusNoResponse))
		}
		if len(approverEntities) > 0 {
			q = q.Where("id IN (?)", s.membershipSubquery(approverEntities))
		}
		return q
	}

	var totalSize int64
	if err := applyFilters(s.db.Model(&Record{})).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count approvals: %w", err)
	}

	query := applyFilters(s.db.Model(&Record{})).Order("created_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list approvals: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// CountPending counts approvals still awaiting a response whose approver set
// names any of the given entities.
func (s *Store) CountPending(approverEntities []entity.Entity) (int64, error) {
	if len(approverEntities) == 0 {
		return 0, nil
	}
	var count int64
	err := s.db.Model(&Record{}).
		Where("status = ?", string(StatusNoResponse)).
		Where("id IN (?)", s.membershipSubquery(approverEntities)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending approvals: %w", err)
	}
	return count, nil
}

// UpdateDecision records a reviewer decision on an approval.
func (s *Store) UpdateDecision(id string, status Status, reviewedBy, comment string) error {
	now := time.Now()
	result := s.db.Model(&Record{}).Where("id = ?", id).Updates(map[string]any{
		"status":         string(status),
		"reviewed_by":    reviewedBy,
		"review_comment": comment,
		"reviewed_at":    &now,
	})
	if result.Error != nil {
		return fmt.Errorf("update approval decision: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "approval", ID: id}
	}
	return nil
}

// DeleteForSubject removes every approval referencing the subject, along
// with its approver rows. Called synchronously when the subject document is
// deleted so no orphaned approvals remain.
func (s *Store) DeleteForSubject(subject Subject) (int64, error) {
	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&Record{}).Where("subject_key = ?", subject.Key()).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("find approvals for subject: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("approval_id IN ?", ids).Delete(&ApproverRecord{}).Error; err != nil {
			return fmt.Errorf("delete approval approvers: %w", err)
		}
		result := tx.Where("id IN ?", ids).Delete(&Record{})
		if result.Error != nil {
			return fmt.Errorf("delete approvals: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}
