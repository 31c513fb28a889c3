// Package auth trusts the identity asserted by the admin gateway in front of
// this service. Sessions and credentials live in the gateway.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"examintel/internal/app/apiresp"
)

type contextKey string

const userContextKey contextKey = "auth_user"

const (
	HeaderAdminUserID = "X-Admin-User-ID"
	HeaderAdminRole   = "X-Admin-Role"
)

const (
	RoleAdmin   = "admin"
	RoleCurator = "curator"
)

type User struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// RequireGatewayUser rejects requests without a positive admin user id header.
// A missing role header defaults to admin.
func RequireGatewayUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromHeaders(r)
		if !ok {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, exists := allowed[user.Role]; !exists {
				apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// ContextWithUser injects an authenticated user into context.
// Useful for tests and the CLI.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromHeaders parses the gateway identity headers without touching the context.
func UserFromHeaders(r *http.Request) (*User, bool) {
	raw := strings.TrimSpace(r.Header.Get(HeaderAdminUserID))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderAdminRole)))
	if role == "" {
		role = RoleAdmin
	}
	return &User{ID: id, Role: role}, true
}
