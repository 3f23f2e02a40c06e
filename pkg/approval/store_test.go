package approval

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onecrazygenius/bailo/pkg/entity"
)

// newTestDB creates an in-memory SQLite DB with approval tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, NewAuditStore(db).AutoMigrate())
	return db
}

func entities(t *testing.T, ss ...string) []entity.Entity {
	t.Helper()
	out, err := entity.ParseList(ss)
	require.NoError(t, err)
	return out
}

func TestStore_FindOrCreate_Idempotent(t *testing.T) {
	store := NewStore(newTestDB(t))
	subject := Subject{Kind: SubjectVersion, ID: "v1", Name: "resnet"}
	approvers := entities(t, "user:alice", "group:reviewers")

	rec, created, err := store.FindOrCreate(subject, "uploader", approvers, TypeReviewer)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, StatusNoResponse, rec.Status)
	require.NotNil(t, rec.VersionID)
	assert.Equal(t, "v1", *rec.VersionID)
	assert.Nil(t, rec.DeploymentID)

	// Same tuple again: the existing record is returned unchanged.
	again, created, err := store.FindOrCreate(subject, "uploader", approvers, TypeReviewer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)

	// Approver order does not change the tuple.
	reordered := entities(t, "group:reviewers", "user:alice")
	same, created, err := store.FindOrCreate(subject, "uploader", reordered, TypeReviewer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, same.ID)

	// A different approval type is a new record.
	_, created, err = store.FindOrCreate(subject, "uploader", approvers, TypeManager)
	require.NoError(t, err)
	assert.True(t, created)

	// A different subject is a new record.
	_, created, err = store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v2"}, "uploader", approvers, TypeReviewer)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_FindOrCreate_StoresApprovers(t *testing.T) {
	store := NewStore(newTestDB(t))
	subject := Subject{Kind: SubjectDeployment, ID: "d1"}

	rec, created, err := store.FindOrCreate(subject, "requester", entities(t, "user:alice", "user:bob"), TypeManager)
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, rec.DeploymentID)
	assert.Equal(t, CategoryDeployment, rec.Category)

	rows, err := store.Approvers(rec.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestStore_List_FiltersByMembershipAndStatus(t *testing.T) {
	store := NewStore(newTestDB(t))

	aliceOnly := entities(t, "user:alice")
	bobOnly := entities(t, "user:bob")

	recA, _, err := store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v1"}, "u", aliceOnly, TypeReviewer)
	require.NoError(t, err)
	_, _, err = store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v2"}, "u", bobOnly, TypeReviewer)
	require.NoError(t, err)
	_, _, err = store.FindOrCreate(Subject{Kind: SubjectDeployment, ID: "d1"}, "u", aliceOnly, TypeManager)
	require.NoError(t, err)

	// Category filter.
	records, _, total, err := store.List(CategoryUpload, nil, false, 20, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, records, 2)

	// Membership filter.
	records, _, total, err = store.List(CategoryUpload, aliceOnly, false, 20, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, recA.ID, records[0].ID)

	// Resolved approvals only appear when archived is requested.
	require.NoError(t, store.UpdateDecision(recA.ID, StatusAccepted, "alice", "fine"))

	records, _, _, err = store.List(CategoryUpload, aliceOnly, false, 20, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, _, _, err = store.List(CategoryUpload, aliceOnly, true, 20, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusAccepted, records[0].Status)
}

func TestStore_CountPending(t *testing.T) {
	store := NewStore(newTestDB(t))

	group := entities(t, "group:reviewers")
	_, _, err := store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v1"}, "u", group, TypeReviewer)
	require.NoError(t, err)
	rec, _, err := store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v2"}, "u", group, TypeReviewer)
	require.NoError(t, err)

	// Matching via the group entity.
	count, err := store.CountPending(entities(t, "user:alice", "group:reviewers"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// No entity overlap, no results.
	count, err = store.CountPending(entities(t, "user:alice"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Resolved approvals stop counting.
	require.NoError(t, store.UpdateDecision(rec.ID, StatusDeclined, "alice", ""))
	count, err = store.CountPending(group)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestStore_DeleteForSubject_Cascades(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)
	subject := Subject{Kind: SubjectVersion, ID: "v1"}

	_, _, err := store.FindOrCreate(subject, "u", entities(t, "user:alice"), TypeManager)
	require.NoError(t, err)
	_, _, err = store.FindOrCreate(subject, "u", entities(t, "user:bob"), TypeReviewer)
	require.NoError(t, err)
	keep, _, err := store.FindOrCreate(Subject{Kind: SubjectVersion, ID: "v2"}, "u", entities(t, "user:alice"), TypeManager)
	require.NoError(t, err)

	deleted, err := store.DeleteForSubject(subject)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	// Nothing referencing the subject remains queryable.
	var count int64
	require.NoError(t, db.Model(&Record{}).Where("subject_key = ?", subject.Key()).Count(&count).Error)
	assert.Zero(t, count)

	// Approver rows went with their approvals.
	var approverCount int64
	require.NoError(t, db.Model(&ApproverRecord{}).Count(&approverCount).Error)
	assert.EqualValues(t, 1, approverCount)

	// Unrelated subjects are untouched.
	got, _, err := store.Get(keep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Deleting again is a no-op.
	deleted, err = store.DeleteForSubject(subject)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStore_UpdateDecision_NotFound(t *testing.T) {
	store := NewStore(newTestDB(t))
	err := store.UpdateDecision("missing", StatusAccepted, "alice", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}
