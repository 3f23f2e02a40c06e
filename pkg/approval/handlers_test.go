package approval

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onecrazygenius/bailo/pkg/identity"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _, audit := newTestService(t)

	r := identity.Middleware()(NewRouter(svc, audit))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, user string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-Remote-User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createTestApprovals(t *testing.T, srv *httptest.Server) []Approval {
	t.Helper()
	resp, data := doRequest(t, srv, http.MethodPost, "/approvals", "uploader", `{
		"subject": {"kind": "version", "id": "v1", "name": "resnet v1"},
		"approvers": {
			"Manager": ["group:managers"],
			"Reviewer": ["group:reviewers"]
		}
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var body struct {
		Approvals []Approval `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Approvals, 2)
	return body.Approvals
}

func TestCreateApprovalsHandler(t *testing.T) {
	srv := newTestServer(t)

	approvals := createTestApprovals(t, srv)
	assert.Equal(t, TypeManager, approvals[0].Type)
	assert.Equal(t, TypeReviewer, approvals[1].Type)
	for _, a := range approvals {
		assert.Equal(t, StatusNoResponse, a.Status)
		assert.Equal(t, "uploader", a.Requester)
	}

	// Malformed approver entities are a 400.
	resp, data := doRequest(t, srv, http.MethodPost, "/approvals", "uploader", `{
		"subject": {"kind": "version", "id": "v2"},
		"approvers": {"Reviewer": ["nonsense"]}
	}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "Reviewer approvers")

	resp, _ = doRequest(t, srv, http.MethodPost, "/approvals", "uploader", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListApprovalsHandler(t *testing.T) {
	srv := newTestServer(t)
	createTestApprovals(t, srv)

	resp, data := doRequest(t, srv, http.MethodGet, "/approvals?approvalCategory=Upload", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list ApprovalList
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 2, list.TotalSize)

	// filter=user restricts to the requesting user's approvals.
	resp, data = doRequest(t, srv, http.MethodGet, "/approvals?approvalCategory=Upload&filter=user", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, 1, list.TotalSize)

	// filter=user without an identity is a 401.
	resp, _ = doRequest(t, srv, http.MethodGet, "/approvals?approvalCategory=Upload&filter=user", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Unknown categories are a 400.
	resp, _ = doRequest(t, srv, http.MethodGet, "/approvals?approvalCategory=Everything", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCountApprovalsHandler(t *testing.T) {
	srv := newTestServer(t)
	createTestApprovals(t, srv)

	resp, data := doRequest(t, srv, http.MethodGet, "/approvals/count", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int64
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, 2, body["count"])

	resp, _ = doRequest(t, srv, http.MethodGet, "/approvals/count", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRespondHandler(t *testing.T) {
	srv := newTestServer(t)
	approvals := createTestApprovals(t, srv)
	reviewerApproval := approvals[1]

	respond := func(id, user, body string) (*http.Response, []byte) {
		return doRequest(t, srv, http.MethodPost, fmt.Sprintf("/approvals/%s/respond", id), user, body)
	}

	// Without an identity the endpoint refuses outright.
	resp, _ := respond(reviewerApproval.ID, "", `{"decision": "Accepted"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A non-approver is a 403.
	resp, _ = respond(reviewerApproval.ID, "stranger", `{"decision": "Accepted"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// An invalid decision is a 400.
	resp, _ = respond(reviewerApproval.ID, "bob", `{"decision": "Maybe"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown approvals are a 404.
	resp, _ = respond("missing", "bob", `{"decision": "Accepted"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// A reviewer covered by group membership succeeds.
	resp, data := respond(reviewerApproval.ID, "bob", `{"decision": "Accepted", "comment": "ship it"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var updated Approval
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, StatusAccepted, updated.Status)
	assert.Equal(t, "bob", updated.ReviewedBy)
	assert.Equal(t, "ship it", updated.ReviewComment)
}

func TestGetApprovalHandler(t *testing.T) {
	srv := newTestServer(t)
	approvals := createTestApprovals(t, srv)

	resp, data := doRequest(t, srv, http.MethodGet, "/approvals/"+approvals[0].ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got Approval
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, approvals[0].ID, got.ID)
	assert.Equal(t, []string{"group:managers"}, got.Approvers)

	resp, _ = doRequest(t, srv, http.MethodGet, "/approvals/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSubjectApprovalsHandler(t *testing.T) {
	srv := newTestServer(t)
	createTestApprovals(t, srv)

	resp, data := doRequest(t, srv, http.MethodDelete, "/subjects/version/v1/approvals", "admin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int64
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, 2, body["deleted"])

	resp, _ = doRequest(t, srv, http.MethodDelete, "/subjects/widget/v1/approvals", "admin", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListSubjectEventsHandler(t *testing.T) {
	srv := newTestServer(t)
	createTestApprovals(t, srv)

	resp, data := doRequest(t, srv, http.MethodGet, "/subjects/version/v1/events", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []AuditEventRecord `json:"events"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Events, 2)
	for _, e := range body.Events {
		assert.Equal(t, EventApprovalCreated, e.EventType)
		assert.Equal(t, "version:v1", e.SubjectKey)
	}
}
