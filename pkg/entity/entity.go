// Package entity models the opaque "kind:id" references Bailo uses wherever
// an approver or collaborator is named, and resolves them to concrete users
// via a directory collaborator.
package entity

import (
	"fmt"
	"strings"
)

// Kind identifies what an entity reference points at.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Entity is a parsed "kind:id" reference to a user or group.
type Entity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// String renders the entity back to its wire form.
func (e Entity) String() string {
	return fmt.Sprintf("%s:%s", e.Kind, e.ID)
}

// Parse splits a "kind:id" string into an Entity.
// The kind must be a recognized Kind and the id must be non-empty.
func Parse(s string) (Entity, error) {
	kind, id, found := strings.Cut(s, ":")
	if !found {
		return Entity{}, fmt.Errorf("entity %q is missing a ':' separator", s)
	}
	if id == "" {
		return Entity{}, fmt.Errorf("entity %q has an empty id", s)
	}
	switch Kind(kind) {
	case KindUser, KindGroup:
		return Entity{Kind: Kind(kind), ID: id}, nil
	default:
		return Entity{}, fmt.Errorf("entity %q has unrecognized kind %q", s, kind)
	}
}

// ParseList parses every element of the given list, failing on the first
// malformed entry.
func ParseList(ss []string) ([]Entity, error) {
	entities := make([]Entity, 0, len(ss))
	for _, s := range ss {
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// ValidationResult reports whether an entity list is well formed.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Validate checks that every element of the list parses to a known kind with
// a non-empty value. An empty list is invalid: an approval with no approvers
// can never be actioned.
func Validate(ss []string) ValidationResult {
	if len(ss) == 0 {
		return ValidationResult{Valid: false, Reason: "entity list is empty"}
	}
	for _, s := range ss {
		if _, err := Parse(s); err != nil {
			return ValidationResult{Valid: false, Reason: err.Error()}
		}
	}
	return ValidationResult{Valid: true}
}

// Strings renders a list of entities back to wire form.
func Strings(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.String()
	}
	return out
}
