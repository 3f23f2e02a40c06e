package entity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestDirectory() *StaticDirectory {
	return NewStaticDirectory(DirectoryFile{
		Users: []DirectoryUser{
			{ID: "alice", Email: "alice@example.com", PasswordSHA256: sha256hex("hunter2")},
			{ID: "bob", Email: "bob@example.com"},
			{ID: "carol"}, // no email
			{ID: "root", Email: "root@example.com", PasswordSHA256: sha256hex("toor"), Admin: true},
		},
		Groups: []DirectoryGroup{
			{ID: "reviewers", Members: []string{"alice", "bob"}},
			{ID: "managers", Members: []string{"alice", "carol"}},
		},
	}, nil)
}

func TestResolver_ResolveUsers(t *testing.T) {
	r := NewResolver(newTestDirectory())
	ctx := context.Background()

	// A user entity resolves to itself.
	users, err := r.ResolveUsers(ctx, []Entity{{Kind: KindUser, ID: "alice"}})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "alice@example.com", users[0].Email)

	// A group entity resolves to its members.
	users, err = r.ResolveUsers(ctx, []Entity{{Kind: KindGroup, ID: "reviewers"}})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "bob", users[1].ID)

	// Overlapping entities de-duplicate, order follows first appearance.
	users, err = r.ResolveUsers(ctx, []Entity{
		{Kind: KindUser, ID: "bob"},
		{Kind: KindGroup, ID: "managers"},
	})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "bob", users[0].ID)
	assert.Equal(t, "alice", users[1].ID)
	assert.Equal(t, "carol", users[2].ID)
	assert.Empty(t, users[2].Email)

	// Unknown groups fail.
	_, err = r.ResolveUsers(ctx, []Entity{{Kind: KindGroup, ID: "nobody"}})
	require.Error(t, err)
}

func TestResolver_ExpandGroup(t *testing.T) {
	r := NewResolver(newTestDirectory())
	ctx := context.Background()

	members, err := r.ExpandGroup(ctx, Entity{Kind: KindGroup, ID: "reviewers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"user:alice", "user:bob"}, Strings(members))

	_, err = r.ExpandGroup(ctx, Entity{Kind: KindUser, ID: "alice"})
	require.Error(t, err)
}

func TestResolver_EntitiesForUser(t *testing.T) {
	r := NewResolver(newTestDirectory())
	ctx := context.Background()

	entities, err := r.EntitiesForUser(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"user:alice", "group:reviewers", "group:managers"},
		Strings(entities))

	// Users with no memberships still resolve to their own entity.
	entities, err = r.EntitiesForUser(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:stranger"}, Strings(entities))
}

func TestStaticDirectory_Authenticate(t *testing.T) {
	dir := newTestDirectory()
	ctx := context.Background()

	ok, err := dir.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Users without a stored credential never authenticate.
	ok, err = dir.Authenticate(ctx, "bob", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dir.Authenticate(ctx, "nobody", "hunter2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticDirectory_IsAdmin(t *testing.T) {
	dir := newTestDirectory()
	ctx := context.Background()

	admin, err := dir.IsAdmin(ctx, "root")
	require.NoError(t, err)
	assert.True(t, admin)

	admin, err = dir.IsAdmin(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, admin)
}

func TestStaticDirectory_GroupMembers(t *testing.T) {
	dir := newTestDirectory()
	ctx := context.Background()

	members, err := dir.GroupMembers(ctx, "reviewers")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	_, err = dir.GroupMembers(ctx, "ghosts")
	require.Error(t, err)
}
