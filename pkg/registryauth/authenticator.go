package registryauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Authenticator is the external collaborator that turns an Authorization
// header into an authenticated user and an admin flag.
type Authenticator interface {
	UserFromAuthHeader(ctx context.Context, header string) (user *User, admin bool, err error)
}

// CredentialStore is the subset of the directory that basic auth needs.
// Satisfied by entity.StaticDirectory.
type CredentialStore interface {
	Authenticate(ctx context.Context, userID, password string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// BasicAuthenticator authenticates Basic credentials against a credential
// store.
type BasicAuthenticator struct {
	creds CredentialStore
}

// NewBasicAuthenticator creates a BasicAuthenticator.
func NewBasicAuthenticator(creds CredentialStore) *BasicAuthenticator {
	return &BasicAuthenticator{creds: creds}
}

// UserFromAuthHeader implements Authenticator.
func (b *BasicAuthenticator) UserFromAuthHeader(ctx context.Context, header string) (*User, bool, error) {
	scheme, payload, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return nil, false, fmt.Errorf("authorization header is not basic auth")
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, false, fmt.Errorf("decode basic auth payload: %w", err)
	}
	userID, password, found := strings.Cut(string(decoded), ":")
	if !found || userID == "" {
		return nil, false, fmt.Errorf("basic auth payload is not user:password")
	}

	ok, err := b.creds.Authenticate(ctx, userID, password)
	if err != nil {
		return nil, false, fmt.Errorf("authenticate user %q: %w", userID, err)
	}
	if !ok {
		return nil, false, fmt.Errorf("invalid credentials for user %q", userID)
	}

	admin, err := b.creds.IsAdmin(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("look up admin flag for user %q: %w", userID, err)
	}

	return &User{ID: userID}, admin, nil
}
