package approval

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/onecrazygenius/bailo/pkg/identity"
)

// requestUser extracts the requesting user from the request context.
func requestUser(r *http.Request) string {
	if id, ok := identity.FromContext(r.Context()); ok {
		return id.User
	}
	return ""
}

// createApprovalsHandler returns a handler that creates the approvals for a
// submitted subject document.
// POST /approvals
func createApprovalsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Subject   Subject           `json:"subject"`
			Approvers map[Type][]string `json:"approvers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		approvals, err := svc.RequestApprovals(r.Context(), body.Subject, requestUser(r), body.Approvers)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"approvals": approvals})
	}
}

// listApprovalsHandler returns a handler that lists approvals for a category.
// GET /approvals?approvalCategory=Upload&archived=false&filter=user&pageSize=20&pageToken=...
func listApprovalsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := Category(r.URL.Query().Get("approvalCategory"))
		archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

		// filter=user restricts the listing to approvals awaiting the
		// requesting user; anything else lists the whole category.
		var forUser string
		if r.URL.Query().Get("filter") == "user" {
			forUser = requestUser(r)
			if forUser == "" {
				writeError(w, http.StatusUnauthorized, "no requesting user")
				return
			}
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		list, err := svc.ListApprovals(r.Context(), category, forUser, archived, pageSize, pageToken)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// countApprovalsHandler returns a handler that counts pending approvals for
// the requesting user.
// GET /approvals/count
func countApprovalsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		if user == "" {
			writeError(w, http.StatusUnauthorized, "no requesting user")
			return
		}

		count, err := svc.CountPendingForUser(r.Context(), user)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int64{"count": count})
	}
}

// getApprovalHandler returns a handler that retrieves one approval.
// GET /approvals/{id}
func getApprovalHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		approval, err := svc.GetApproval(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, approval)
	}
}

// respondHandler returns a handler that records a reviewer decision.
// POST /approvals/{id}/respond
func respondHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requestUser(r)
		if user == "" {
			writeError(w, http.StatusUnauthorized, "no requesting user")
			return
		}

		var body struct {
			Decision Status `json:"decision"`
			Comment  string `json:"comment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		approval, err := svc.Respond(r.Context(), chi.URLParam(r, "id"), user, body.Decision, body.Comment)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, approval)
	}
}

// deleteSubjectApprovalsHandler returns a handler that cascades subject
// deletion into the approval store.
// DELETE /subjects/{kind}/{id}/approvals
func deleteSubjectApprovalsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := Subject{
			Kind: SubjectKind(chi.URLParam(r, "kind")),
			ID:   chi.URLParam(r, "id"),
		}
		if subject.Kind != SubjectVersion && subject.Kind != SubjectDeployment {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown subject kind %q", subject.Kind))
			return
		}

		deleted, err := svc.DeleteForSubject(r.Context(), subject, requestUser(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
	}
}

// listSubjectEventsHandler returns a handler that lists audit events for a
// subject, newest first.
// GET /subjects/{kind}/{id}/events
func listSubjectEventsHandler(audit *AuditStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := Subject{
			Kind: SubjectKind(chi.URLParam(r, "kind")),
			ID:   chi.URLParam(r, "id"),
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		events, nextToken, err := audit.ListBySubject(subject.Key(), pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list events: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
		})
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case IsForbidden(err):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
