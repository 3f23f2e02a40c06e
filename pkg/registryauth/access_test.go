package registryauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		want    []Access
		wantErr bool
	}{
		{
			name:  "single entry",
			scope: "repository:alice/model:pull",
			want:  []Access{{Type: "repository", Name: "alice/model", Actions: []string{"pull"}}},
		},
		{
			name:  "multiple actions",
			scope: "repository:alice/model:pull,push",
			want:  []Access{{Type: "repository", Name: "alice/model", Actions: []string{"pull", "push"}}},
		},
		{
			name:  "multiple entries",
			scope: "repository:a/x:pull repository:a/y:pull",
			want: []Access{
				{Type: "repository", Name: "a/x", Actions: []string{"pull"}},
				{Type: "repository", Name: "a/y", Actions: []string{"pull"}},
			},
		},
		{
			name:  "trailing colon segments are dropped",
			scope: "repository:alice/model:pull:extra",
			want:  []Access{{Type: "repository", Name: "alice/model", Actions: []string{"pull"}}},
		},
		{name: "empty scope", scope: "", want: []Access{}},
		{name: "missing actions", scope: "repository:alice/model", wantErr: true},
		{name: "empty type", scope: ":alice/model:pull", wantErr: true},
		{name: "empty name", scope: "repository::pull", wantErr: true},
		{name: "empty actions", scope: "repository:alice/model:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScope(tt.scope)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		name   string
		access Access
		user   string
		want   bool
	}{
		{
			name:   "pull own repository",
			access: Access{Type: "repository", Name: "alice/model", Actions: []string{"pull"}},
			user:   "alice",
			want:   true,
		},
		{
			name:   "wrong type",
			access: Access{Type: "registry", Name: "alice/model", Actions: []string{"pull"}},
			user:   "alice",
			want:   false,
		},
		{
			name:   "someone else's repository",
			access: Access{Type: "repository", Name: "bob/model", Actions: []string{"pull"}},
			user:   "alice",
			want:   false,
		},
		{
			name:   "prefix must include the slash",
			access: Access{Type: "repository", Name: "alicesmith/model", Actions: []string{"pull"}},
			user:   "alice",
			want:   false,
		},
		{
			name:   "push is refused",
			access: Access{Type: "repository", Name: "alice/model", Actions: []string{"push"}},
			user:   "alice",
			want:   false,
		},
		{
			name:   "pull plus push is refused",
			access: Access{Type: "repository", Name: "alice/model", Actions: []string{"pull", "push"}},
			user:   "alice",
			want:   false,
		},
		{
			name:   "empty actions",
			access: Access{Type: "repository", Name: "alice/model", Actions: nil},
			user:   "alice",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAccess(tt.access, tt.user))
		})
	}
}
