// Package approval implements the review/approval workflow engine: approval
// records keyed on a subject document, idempotent creation per approver
// group, reviewer decisions, and the notification fan-out around both.
package approval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/onecrazygenius/bailo/pkg/entity"
)

// Type distinguishes which approver group an approval belongs to.
type Type string

const (
	TypeManager  Type = "Manager"
	TypeReviewer Type = "Reviewer"
)

// Category distinguishes what kind of submission is being reviewed.
type Category string

const (
	CategoryUpload     Category = "Upload"
	CategoryDeployment Category = "Deployment"
)

// Status is the review state of an approval.
type Status string

const (
	StatusNoResponse Status = "No Response"
	StatusAccepted   Status = "Accepted"
	StatusDeclined   Status = "Declined"
)

// SubjectKind identifies the document type an approval references.
type SubjectKind string

const (
	SubjectVersion    SubjectKind = "version"
	SubjectDeployment SubjectKind = "deployment"
)

// Subject is the document an approval refers to. Exactly one subject backs
// each approval; the reference is immutable after creation.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
	// Name is the human-readable document name used in notifications.
	Name string `json:"name,omitempty"`
}

// Key returns the canonical subject key used in the uniqueness tuple.
func (s Subject) Key() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Category returns the approval category implied by the subject kind.
func (s Subject) Category() Category {
	if s.Kind == SubjectDeployment {
		return CategoryDeployment
	}
	return CategoryUpload
}

// Record is the persisted approval. Exactly one of VersionID and
// DeploymentID is populated.
type Record struct {
	ID            string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	VersionID     *string    `gorm:"column:version_id;index:idx_approval_version"`
	DeploymentID  *string    `gorm:"column:deployment_id;index:idx_approval_deployment"`
	SubjectKey    string     `gorm:"column:subject_key;uniqueIndex:idx_approval_tuple;not null"`
	SubjectName   string     `gorm:"column:subject_name"`
	ApproverKey   string     `gorm:"column:approver_key;uniqueIndex:idx_approval_tuple;not null"`
	Type          Type       `gorm:"column:approval_type;uniqueIndex:idx_approval_tuple;not null"`
	Category      Category   `gorm:"column:approval_category;index:idx_approval_category;not null"`
	Status        Status     `gorm:"column:status;index:idx_approval_status;not null"`
	Requester     string     `gorm:"column:requester"`
	ReviewedBy    string     `gorm:"column:reviewed_by"`
	ReviewComment string     `gorm:"column:review_comment"`
	ReviewedAt    *time.Time `gorm:"column:reviewed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "approvals" }

// Subject reconstructs the subject reference of the record.
func (r *Record) Subject() Subject {
	if r.DeploymentID != nil {
		return Subject{Kind: SubjectDeployment, ID: *r.DeploymentID, Name: r.SubjectName}
	}
	var id string
	if r.VersionID != nil {
		id = *r.VersionID
	}
	return Subject{Kind: SubjectVersion, ID: id, Name: r.SubjectName}
}

// ApproverRecord is one entity in an approval's approver set, normalized so
// membership queries stay relational.
type ApproverRecord struct {
	ID         string      `gorm:"primaryKey;column:id;type:varchar(36)"`
	ApprovalID string      `gorm:"column:approval_id;index:idx_approver_approval;not null"`
	Kind       entity.Kind `gorm:"column:kind;index:idx_approver_entity;not null"`
	EntityID   string      `gorm:"column:entity_id;index:idx_approver_entity;not null"`
}

// TableName returns the GORM table name.
func (ApproverRecord) TableName() string { return "approval_approvers" }

// Approval is the API-facing approval type.
type Approval struct {
	ID            string   `json:"id"`
	Subject       Subject  `json:"subject"`
	Approvers     []string `json:"approvers"`
	Type          Type     `json:"approvalType"`
	Category      Category `json:"approvalCategory"`
	Status        Status   `json:"status"`
	Requester     string   `json:"requester,omitempty"`
	ReviewedBy    string   `json:"reviewedBy,omitempty"`
	ReviewComment string   `json:"reviewComment,omitempty"`
	ReviewedAt    string   `json:"reviewedAt,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

// ApprovalList is a paginated list of approvals.
type ApprovalList struct {
	Approvals     []Approval `json:"approvals"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
	TotalSize     int        `json:"totalSize"`
}

// approverKey derives the canonical key for an approver set: the sorted,
// comma-joined wire forms. Two lists naming the same set produce the same
// key regardless of order.
func approverKey(entities []entity.Entity) string {
	ss := entity.Strings(entities)
	sort.Strings(ss)
	return strings.Join(ss, ",")
}

// recordToApproval converts a record and its approver rows to the API type.
func recordToApproval(rec *Record, approvers []ApproverRecord) Approval {
	a := Approval{
		ID:            rec.ID,
		Subject:       rec.Subject(),
		Type:          rec.Type,
		Category:      rec.Category,
		Status:        rec.Status,
		Requester:     rec.Requester,
		ReviewedBy:    rec.ReviewedBy,
		ReviewComment: rec.ReviewComment,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.ReviewedAt != nil {
		a.ReviewedAt = rec.ReviewedAt.Format(time.RFC3339)
	}
	a.Approvers = make([]string, len(approvers))
	for i, ap := range approvers {
		a.Approvers[i] = entity.Entity{Kind: ap.Kind, ID: ap.EntityID}.String()
	}
	sort.Strings(a.Approvers)
	return a
}
