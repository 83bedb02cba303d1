package auth

import (
	"context"

	apperrors "github.com/healtheasy/booking-engine/pkg/errors"
)

// Role is the trivial access level attached to a calling session. There is
// no credential handling here; the embedding application authenticates and
// tags the context.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleDoctor Role = "Doctor"
)

type roleKey struct{}

// WithRole tags a context with the caller's role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFrom returns the role tagged on the context, if any.
func RoleFrom(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleKey{}).(Role)
	return role, ok
}

// Require fails with Forbidden when the context carries a role that is not
// in the allowed set. An untagged context passes: callers that do not use
// the role gate are unaffected.
func Require(ctx context.Context, allowed ...Role) error {
	role, ok := RoleFrom(ctx)
	if !ok {
		return nil
	}
	for _, a := range allowed {
		if role == a {
			return nil
		}
	}
	return apperrors.Forbidden("role " + string(role) + " is not permitted to perform this action")
}
