package auth

import (
	"context"

	"github.com/campuscms/campuscms/pkg/contextkeys"
	"github.com/campuscms/campuscms/pkg/rbac"
)

// Identity is the authenticated caller attached to the request context
type Identity struct {
	UserID       int64       `json:"user_id"`
	Email        string      `json:"email"`
	Username     string      `json:"username"`
	Roles        []rbac.Role `json:"roles"`
	DepartmentID *int64      `json:"department_id,omitempty"`
	SessionID    string      `json:"-"`
}

// Subject converts the identity into an rbac subject for access decisions
func (i *Identity) Subject() *rbac.Subject {
	return &rbac.Subject{
		UserID:       i.UserID,
		Roles:        i.Roles,
		DepartmentID: i.DepartmentID,
	}
}

// WithIdentity attaches an identity to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}

// IdentityFromContext returns the authenticated identity, or nil for
// anonymous requests
func IdentityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
