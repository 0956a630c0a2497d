package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey contextKey = "auth_user_id"
	rolesKey  contextKey = "auth_roles"
)

// WithUser stores the authenticated operator's id and roles in ctx. Services
// read the operator id for audit fields (registered_by, responsible) instead
// of relying on any ambient current-user state.
func WithUser(ctx context.Context, userID uuid.UUID, roles []string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, rolesKey, roles)
}

// UserIDFromContext returns the operator id, or uuid.Nil when unauthenticated.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

// RolesFromContext returns the operator's roles.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey).([]string)
	return roles
}
