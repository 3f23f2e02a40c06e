package registryauth

import (
	"fmt"
	"strings"
)

// Access is one requested set of actions against a named registry resource.
type Access struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// ParseScope parses a space-delimited list of "type:name:action1,action2"
// triples as presented by registry clients. Segments beyond the third are
// discarded, so stray colons never reach the action list of a signed token.
func ParseScope(scope string) ([]Access, error) {
	parts := strings.Fields(scope)
	accesses := make([]Access, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(part, ":")
		if len(fields) < 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
			return nil, fmt.Errorf("scope entry %q is not a type:name:actions triple", part)
		}
		accesses = append(accesses, Access{
			Type:    fields[0],
			Name:    fields[1],
			Actions: strings.Split(fields[2], ","),
		})
	}
	return accesses, nil
}

// CheckAccess applies the authorization policy for non-admin users: the
// request must target a repository under the user's own prefix, and the
// action set must be exactly {pull}.
func CheckAccess(access Access, userID string) bool {
	if access.Type != "repository" {
		return false
	}
	if !strings.HasPrefix(access.Name, userID+"/") {
		return false
	}
	if len(access.Actions) != 1 || access.Actions[0] != "pull" {
		return false
	}
	return true
}
