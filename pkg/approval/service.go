package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/onecrazygenius/bailo/pkg/entity"
	"github.com/onecrazygenius/bailo/pkg/notify"
)

// Service coordinates approval creation, reviewer decisions, and the
// notifications around both.
type Service struct {
	store    *Store
	audit    *AuditStore
	resolver *entity.Resolver
	notifier notify.Notifier
	appBase  string
	logger   *slog.Logger
}

// NewService creates a Service. appBase is the externally visible base URL
// used to build review links in notifications.
func NewService(store *Store, audit *AuditStore, resolver *entity.Resolver, notifier notify.Notifier, appBase string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		audit:    audit,
		resolver: resolver,
		notifier: notifier,
		appBase:  appBase,
		logger:   logger,
	}
}

// RequestApprovals creates one approval per approver group for the subject.
// Every group is validated before anything is persisted, so a malformed
// entry rejects the whole request without side effects. Creation is
// idempotent: an equivalent existing approval is returned unchanged and its
// approvers are not re-notified. Newly created approvals notify each
// resolved approver exactly once; notification failure degrades to partial
// delivery and never fails the operation.
func (s *Service) RequestApprovals(ctx context.Context, subject Subject, requester string, groups map[Type][]string) ([]Approval, error) {
	if subject.ID == "" {
		return nil, &ValidationError{Field: "subject", Message: "subject id is empty"}
	}
	if subject.Kind != SubjectVersion && subject.Kind != SubjectDeployment {
		return nil, &ValidationError{Field: "subject", Message: fmt.Sprintf("unknown subject kind %q", subject.Kind)}
	}
	if len(groups) == 0 {
		return nil, &ValidationError{Field: "approvers", Message: "no approver groups given"}
	}

	// Validate everything up front; nothing persists on failure.
	parsed := make(map[Type][]entity.Entity, len(groups))
	for approvalType, list := range groups {
		if approvalType != TypeManager && approvalType != TypeReviewer {
			return nil, &ValidationError{Field: "approvalType", Message: fmt.Sprintf("unknown approval type %q", approvalType)}
		}
		if result := entity.Validate(list); !result.Valid {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("%s approvers", approvalType),
				Message: result.Reason,
			}
		}
		entities, err := entity.ParseList(list)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("%s approvers", approvalType), Message: err.Error()}
		}
		parsed[approvalType] = entities
	}

	// Deterministic creation order.
	types := make([]Type, 0, len(parsed))
	for t := range parsed {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	approvals := make([]Approval, 0, len(types))
	for _, approvalType := range types {
		approvers := parsed[approvalType]

		rec, created, err := s.store.FindOrCreate(subject, requester, approvers, approvalType)
		if err != nil {
			return nil, err
		}

		if created {
			s.auditEvent(subject, rec.ID, EventApprovalCreated, requester, "success", string(approvalType))
			s.notifyApprovers(ctx, subject, approvalType, approvers)
		}

		rows, err := s.store.Approvers(rec.ID)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, recordToApproval(rec, rows))
	}

	return approvals, nil
}

// RequestVersionApprovals creates the Manager and Reviewer approvals for a
// newly submitted model version.
func (s *Service) RequestVersionApprovals(ctx context.Context, version Subject, requester string, managers, reviewers []string) ([]Approval, error) {
	version.Kind = SubjectVersion
	return s.RequestApprovals(ctx, version, requester, map[Type][]string{
		TypeManager:  managers,
		TypeReviewer: reviewers,
	})
}

// RequestDeploymentApprovals creates the Manager approval for a newly
// requested deployment; deployments are signed off by the model owners only.
func (s *Service) RequestDeploymentApprovals(ctx context.Context, deployment Subject, requester string, owners []string) ([]Approval, error) {
	deployment.Kind = SubjectDeployment
	return s.RequestApprovals(ctx, deployment, requester, map[Type][]string{
		TypeManager: owners,
	})
}

// notifyApprovers resolves the approver entities and delivers one message
// per resolved user with an email address. Users without an address are
// skipped silently. The batch is awaited in full before returning.
func (s *Service) notifyApprovers(ctx context.Context, subject Subject, approvalType Type, approvers []entity.Entity) {
	users, err := s.resolver.ResolveUsers(ctx, approvers)
	if err != nil {
		// Directory trouble degrades notification, never the approval itself.
		s.logger.Error("resolving approvers for notification failed",
			"subject", subject.Key(), "approvalType", approvalType, "error", err)
		return
	}

	msg := reviewRequestMessage(s.appBase, subject, subject.Category(), approvalType)
	var msgs []notify.Message
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		m := msg
		m.To = u.Email
		msgs = append(msgs, m)
	}

	sent, failed := notify.Dispatch(ctx, s.notifier, s.logger, msgs)
	s.logger.Info("approver notifications dispatched",
		"subject", subject.Key(), "approvalType", approvalType, "sent", sent, "failed", failed)
}

// Respond records a reviewer decision. The reviewer must be named by the
// approval's approver set, directly or through group membership, and the
// decision must be a terminal status. Decisions are revisable: any covered
// approver may respond again and the latest decision wins, with the previous
// one preserved in the audit trail.
func (s *Service) Respond(ctx context.Context, approvalID, reviewerID string, decision Status, comment string) (*Approval, error) {
	if decision != StatusAccepted && decision != StatusDeclined {
		return nil, &ValidationError{Field: "decision", Message: fmt.Sprintf("decision must be %q or %q", StatusAccepted, StatusDeclined)}
	}

	rec, approverRows, err := s.store.Get(approvalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{Resource: "approval", ID: approvalID}
	}

	ok, err := s.isApprover(ctx, reviewerID, approverRows)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ForbiddenError{
			Code:    "not_an_approver",
			Message: fmt.Sprintf("user %q is not named by this approval's approver set", reviewerID),
			Context: map[string]any{"approvalId": approvalID, "user": reviewerID},
		}
	}

	if err := s.store.UpdateDecision(approvalID, decision, reviewerID, comment); err != nil {
		return nil, err
	}

	subject := rec.Subject()
	s.auditEvent(subject, rec.ID, EventApprovalResponded, reviewerID, string(decision), comment)
	s.notifyRequester(ctx, rec, subject, decision, reviewerID)

	updated, rows, err := s.store.Get(approvalID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Deleted between the decision write and the reload.
		return nil, &NotFoundError{Resource: "approval", ID: approvalID}
	}
	approval := recordToApproval(updated, rows)
	return &approval, nil
}

// isApprover reports whether the user is covered by the approver rows,
// either directly or via group membership.
func (s *Service) isApprover(ctx context.Context, userID string, approvers []ApproverRecord) (bool, error) {
	userEntities, err := s.resolver.EntitiesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	covered := make(map[string]bool, len(userEntities))
	for _, e := range userEntities {
		covered[e.String()] = true
	}
	for _, a := range approvers {
		if covered[entity.Entity{Kind: a.Kind, ID: a.EntityID}.String()] {
			return true, nil
		}
	}
	return false, nil
}

// notifyRequester tells the original requester their submission was
// reviewed. Best effort: failures are logged only.
func (s *Service) notifyRequester(ctx context.Context, rec *Record, subject Subject, decision Status, reviewedBy string) {
	if rec.Requester == "" {
		return
	}
	users, err := s.resolver.ResolveUsers(ctx, []entity.Entity{{Kind: entity.KindUser, ID: rec.Requester}})
	if err != nil {
		s.logger.Error("resolving requester for notification failed", "requester", rec.Requester, "error", err)
		return
	}
	msg := reviewedMessage(s.appBase, subject, rec.Category, decision, reviewedBy)
	var msgs []notify.Message
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		m := msg
		m.To = u.Email
		msgs = append(msgs, m)
	}
	notify.Dispatch(ctx, s.notifier, s.logger, msgs)
}

// GetApproval retrieves one approval by id.
func (s *Service) GetApproval(ctx context.Context, id string) (*Approval, error) {
	rec, rows, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{Resource: "approval", ID: id}
	}
	approval := recordToApproval(rec, rows)
	return &approval, nil
}

// ListApprovals returns approvals for a category. When forUser is set, only
// approvals whose approver set names the user (directly or via a group) are
// returned. Pending approvals unless includeArchived.
func (s *Service) ListApprovals(ctx context.Context, category Category, forUser string, includeArchived bool, pageSize int, pageToken string) (*ApprovalList, error) {
	if category != CategoryUpload && category != CategoryDeployment {
		return nil, &ValidationError{Field: "category", Message: fmt.Sprintf("unknown approval category %q", category)}
	}

	var approverEntities []entity.Entity
	if forUser != "" {
		var err error
		approverEntities, err = s.resolver.EntitiesForUser(ctx, forUser)
		if err != nil {
			return nil, err
		}
	}

	records, nextToken, total, err := s.store.List(category, approverEntities, includeArchived, pageSize, pageToken)
	if err != nil {
		return nil, err
	}

	list := &ApprovalList{
		Approvals:     make([]Approval, len(records)),
		NextPageToken: nextToken,
		TotalSize:     total,
	}
	for i := range records {
		rows, err := s.store.Approvers(records[i].ID)
		if err != nil {
			return nil, err
		}
		list.Approvals[i] = recordToApproval(&records[i], rows)
	}
	return list, nil
}

// CountPendingForUser counts approvals awaiting the given user's response.
func (s *Service) CountPendingForUser(ctx context.Context, userID string) (int64, error) {
	entities, err := s.resolver.EntitiesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.store.CountPending(entities)
}

// DeleteForSubject cascades subject deletion into the approval store.
func (s *Service) DeleteForSubject(ctx context.Context, subject Subject, actor string) (int64, error) {
	deleted, err := s.store.DeleteForSubject(subject)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.auditEvent(subject, "", EventApprovalDeleted, actor, "success", fmt.Sprintf("%d approvals removed", deleted))
	}
	return deleted, nil
}

// auditEvent appends an audit record. Best effort: a failed audit write is
// logged, not surfaced.
func (s *Service) auditEvent(subject Subject, approvalID, eventType, actor, outcome, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Append(&AuditEventRecord{
		ID:         uuid.New().String(),
		SubjectKey: subject.Key(),
		ApprovalID: approvalID,
		EventType:  eventType,
		Actor:      actor,
		Outcome:    outcome,
		Reason:     reason,
	})
	if err != nil {
		s.logger.Error("audit append failed", "eventType", eventType, "subject", subject.Key(), "error", err)
	}
}
