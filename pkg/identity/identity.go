// Package identity extracts the requesting user from HTTP requests and
// carries it through the request context.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the authenticated user making a request.
type Identity struct {
	User string
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// FromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// Middleware returns HTTP middleware that extracts the user from the
// X-Remote-User header, as set by the fronting auth proxy, and stores it in
// the request context. Requests without the header remain anonymous.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
