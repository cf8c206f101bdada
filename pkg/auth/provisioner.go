package auth

import (
	"context"
	"fmt"

	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
	"github.com/campuscms/campuscms/pkg/users"
)

// GroupMapping maps an identity provider group to a CMS role name
type GroupMapping struct {
	Group string `yaml:"group"`
	Role  string `yaml:"role"`
}

// Provisioner mirrors identity provider users into the local directory on
// sign-in and assigns roles from group membership.
type Provisioner struct {
	users       *users.Store
	roles       *rbac.Store
	checker     *rbac.Checker
	defaultRole string
	mappings    []GroupMapping
	logger      *observability.Logger
}

// NewProvisioner creates a provisioner. defaultRole is granted to users
// signing in for the first time with no mapped groups; empty disables it.
func NewProvisioner(userStore *users.Store, roleStore *rbac.Store, checker *rbac.Checker, defaultRole string, mappings []GroupMapping, logger *observability.Logger) *Provisioner {
	return &Provisioner{
		users:       userStore,
		roles:       roleStore,
		checker:     checker,
		defaultRole: defaultRole,
		mappings:    mappings,
		logger:      logger,
	}
}

// SignIn provisions the user and returns their resolved identity
func (p *Provisioner) SignIn(ctx context.Context, ext users.ExternalUser, groups []string) (*Identity, error) {
	user, err := p.users.EnsureFromExternal(ctx, ext)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account %s is deactivated", user.Email)
	}

	if err := p.applyGroups(ctx, user.ID, groups); err != nil {
		return nil, err
	}

	// Role assignments may have just changed.
	p.checker.Invalidate(ctx, user.ID)

	subject, err := p.checker.Subject(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:       user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Roles:        subject.Roles,
		DepartmentID: subject.DepartmentID,
	}, nil
}

// IdentityForSession rebuilds the identity for an existing session
func (p *Provisioner) IdentityForSession(ctx context.Context, session *Session) (*Identity, error) {
	user, err := p.users.Get(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account %s is deactivated", user.Email)
	}

	subject, err := p.checker.Subject(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:       user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Roles:        subject.Roles,
		DepartmentID: subject.DepartmentID,
		SessionID:    session.ID,
	}, nil
}

// applyGroups grants roles mapped from IdP groups. Roles granted outside
// the mappings are left alone; sign-in only ever widens access.
func (p *Provisioner) applyGroups(ctx context.Context, userID int64, groups []string) error {
	wanted := make(map[string]bool)
	for _, mapping := range p.mappings {
		for _, group := range groups {
			if group == mapping.Group {
				wanted[mapping.Role] = true
			}
		}
	}

	if len(wanted) == 0 {
		if p.defaultRole == "" {
			return nil
		}
		assignments, err := p.roles.ListAssignments(ctx, userID)
		if err != nil {
			return err
		}
		if len(assignments) > 0 {
			return nil
		}
		wanted[p.defaultRole] = true
	}

	for name := range wanted {
		role, err := p.roles.GetRoleByName(ctx, name)
		if err != nil {
			p.logger.WithError(err).WithField("role", name).Warn("mapped role does not exist, skipping")
			continue
		}
		if err := p.roles.AssignRole(ctx, userID, role.ID, nil); err != nil {
			return fmt.Errorf("failed to assign mapped role %s: %w", name, err)
		}
	}
	return nil
}
