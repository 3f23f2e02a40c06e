package entity

import (
	"context"
	"fmt"
)

// Directory is the external collaborator that knows about users and groups.
// Implementations include the static YAML directory and, in deployments that
// have one, an upstream identity provider.
type Directory interface {
	// GroupMembers returns the user ids belonging to a group.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
	// UserEmail returns the user's email address, or "" if the user has none.
	UserEmail(ctx context.Context, userID string) (string, error)
	// UserGroups returns the ids of the groups the user belongs to.
	UserGroups(ctx context.Context, userID string) ([]string, error)
}

// User is a resolved directory user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Resolver expands entity references to concrete users using a Directory.
type Resolver struct {
	dir Directory
}

// NewResolver creates a Resolver over the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// ExpandGroup returns the members of a group entity as user entities.
func (r *Resolver) ExpandGroup(ctx context.Context, e Entity) ([]Entity, error) {
	if e.Kind != KindGroup {
		return nil, fmt.Errorf("entity %q is not a group", e)
	}
	members, err := r.dir.GroupMembers(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("expand group %q: %w", e.ID, err)
	}
	entities := make([]Entity, len(members))
	for i, m := range members {
		entities[i] = Entity{Kind: KindUser, ID: m}
	}
	return entities, nil
}

// ResolveUsers expands the given entities to a de-duplicated list of users.
// User entities resolve to themselves; group entities resolve to their
// membership. Order follows first appearance.
func (r *Resolver) ResolveUsers(ctx context.Context, entities []Entity) ([]User, error) {
	seen := make(map[string]bool)
	var users []User

	addUser := func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		email, err := r.dir.UserEmail(ctx, id)
		if err != nil {
			return fmt.Errorf("look up email for user %q: %w", id, err)
		}
		users = append(users, User{ID: id, Email: email})
		return nil
	}

	for _, e := range entities {
		switch e.Kind {
		case KindUser:
			if err := addUser(e.ID); err != nil {
				return nil, err
			}
		case KindGroup:
			members, err := r.dir.GroupMembers(ctx, e.ID)
			if err != nil {
				return nil, fmt.Errorf("expand group %q: %w", e.ID, err)
			}
			for _, m := range members {
				if err := addUser(m); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("cannot resolve entity of kind %q", e.Kind)
		}
	}

	return users, nil
}

// EntitiesForUser returns every entity that names the given user: the user
// entity itself plus one group entity per group membership. Approval queries
// match against this set.
func (r *Resolver) EntitiesForUser(ctx context.Context, userID string) ([]Entity, error) {
	groups, err := r.dir.UserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up groups for user %q: %w", userID, err)
	}
	entities := make([]Entity, 0, len(groups)+1)
	entities = append(entities, Entity{Kind: KindUser, ID: userID})
	for _, g := range groups {
		entities = append(entities, Entity{Kind: KindGroup, ID: g})
	}
	return entities, nil
}
