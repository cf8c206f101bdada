package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Resource represents a permission domain in the system
type Resource string

const (
	ResourceBlog            Resource = "blog"
	ResourceDepartment      Resource = "department"
	ResourceStaff           Resource = "staff"
	ResourcePublication     Resource = "publication"
	ResourceReport          Resource = "report"
	ResourceResearch        Resource = "research"
	ResourceSuccessStory    Resource = "success_story"
	ResourceUser            Resource = "user"
	ResourceAcademicProgram Resource = "academic_program"
	ResourceMedia           Resource = "media"
	ResourceRole            Resource = "role"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionPublish Action = "publish"
	ActionAssign  Action = "assign"
)

// Permission is a capability token: either a specific resource:action pair
// or the global wildcard. The zero value is not a valid permission.
type Permission struct {
	Resource Resource `json:"resource,omitempty"`
	Action   Action   `json:"action,omitempty"`
	All      bool     `json:"all,omitempty"`
}

// Wildcard returns the permission granting everything
func Wildcard() Permission {
	return Permission{All: true}
}

// Perm builds a specific resource:action permission
func Perm(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action}
}

// IsWildcard reports whether this is the global wildcard
func (p Permission) IsWildcard() bool {
	return p.All
}

// String returns the wire form: "resource:action" or "*"
func (p Permission) String() string {
	if p.All {
		return "*"
	}
	return string(p.Resource) + ":" + string(p.Action)
}

// Grants reports whether this held permission satisfies the required one.
// Only an exact match or the wildcard grants; there is no prefix matching.
func (p Permission) Grants(required Permission) bool {
	if p.All {
		return true
	}
	return p.Resource == required.Resource && p.Action == required.Action
}

// ParsePermission parses the wire form and validates it against the catalog
func ParsePermission(s string) (Permission, error) {
	if s == "*" {
		return Wildcard(), nil
	}

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("malformed permission %q: want resource:action", s)
	}

	p := Perm(Resource(parts[0]), Action(parts[1]))
	if !InCatalog(p) {
		return Permission{}, fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// catalog is the closed set of permissions the system understands,
// built once at init and never mutated.
var catalog = buildCatalog()

func buildCatalog() map[Permission]struct{} {
	crud := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

	domains := map[Resource][]Action{
		ResourceBlog:            append(crud, ActionPublish),
		ResourceDepartment:      crud,
		ResourceStaff:           crud,
		ResourcePublication:     crud,
		ResourceReport:          crud,
		ResourceResearch:        crud,
		ResourceSuccessStory:    crud,
		ResourceUser:            crud,
		ResourceAcademicProgram: crud,
		ResourceMedia:           {ActionCreate, ActionRead, ActionDelete},
		ResourceRole:            append(crud, ActionAssign),
	}

	set := make(map[Permission]struct{})
	for resource, actions := range domains {
		for _, action := range actions {
			set[Perm(resource, action)] = struct{}{}
		}
	}
	return set
}

// InCatalog reports whether a permission is part of the closed catalog.
// The wildcard is always in catalog.
func InCatalog(p Permission) bool {
	if p.All {
		return true
	}
	_, ok := catalog[p]
	return ok
}

// Catalog returns all specific permissions in the catalog
func Catalog() []Permission {
	perms := make([]Permission, 0, len(catalog))
	for p := range catalog {
		perms = append(perms, p)
	}
	return perms
}

// Role is a named bundle of permissions assignable to users
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`

	// IsAdmin marks a global administrator role: full access to every
	// department including the global (nil) scope.
	IsAdmin bool `json:"is_admin"`

	// IsDepartmentLead restricts department-scoped operations to the
	// holder's own assigned department.
	IsDepartmentLead bool `json:"is_department_lead"`

	IsBuiltIn bool      `json:"is_built_in"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasWildcard reports whether the role carries the global wildcard
func (r *Role) HasWildcard() bool {
	for _, p := range r.Permissions {
		if p.IsWildcard() {
			return true
		}
	}
	return false
}

// RoleAssignment records a role granted to a user
type RoleAssignment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

// Built-in role names
const (
	RoleAdministrator  = "administrator"
	RoleEditor         = "editor"
	RoleDepartmentLead = "department_lead"
	RoleContributor    = "contributor"
	RoleViewer         = "viewer"
)

// BuiltInRoles returns the role definitions seeded at startup
func BuiltInRoles() []Role {
	contentCRUD := func(resources ...Resource) []Permission {
		var perms []Permission
		for _, res := range resources {
			perms = append(perms,
				Perm(res, ActionCreate),
				Perm(res, ActionRead),
				Perm(res, ActionUpdate),
				Perm(res, ActionDelete),
			)
		}
		return perms
	}

	return []Role{
		{
			Name:        RoleAdministrator,
			Description: "Full access to all CMS resources and departments",
			IsAdmin:     true,
			IsBuiltIn:   true,
			Permissions: []Permission{Wildcard()},
		},
		{
			Name:        RoleEditor,
			Description: "Create, edit, publish and delete all site content",
			IsBuiltIn:   true,
			Permissions: append(
				contentCRUD(ResourceBlog, ResourcePublication, ResourceReport,
					ResourceResearch, ResourceSuccessStory, ResourceAcademicProgram),
				Perm(ResourceBlog, ActionPublish),
				Perm(ResourceMedia, ActionCreate),
				Perm(ResourceMedia, ActionRead),
				Perm(ResourceMedia, ActionDelete),
				Perm(ResourceDepartment, ActionRead),
				Perm(ResourceStaff, ActionRead),
			),
		},
		{
			Name:             RoleDepartmentLead,
			Description:      "Manage staff and content for the holder's own department",
			IsDepartmentLead: true,
			IsBuiltIn:        true,
			Permissions: append(
				contentCRUD(ResourceStaff),
				Perm(ResourceDepartment, ActionRead),
				Perm(ResourceDepartment, ActionUpdate),
				Perm(ResourceAcademicProgram, ActionRead),
				Perm(ResourceBlog, ActionRead),
				Perm(ResourceBlog, ActionCreate),
				Perm(ResourceBlog, ActionUpdate),
				Perm(ResourceMedia, ActionCreate),
				Perm(ResourceMedia, ActionRead),
			),
		},
		{
			Name:        RoleContributor,
			Description: "Draft and edit blog posts pending editorial review",
			IsBuiltIn:   true,
			Permissions: []Permission{
				Perm(ResourceBlog, ActionCreate),
				Perm(ResourceBlog, ActionRead),
				Perm(ResourceBlog, ActionUpdate),
				Perm(ResourceMedia, ActionCreate),
				Perm(ResourceMedia, ActionRead),
			},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to CMS content",
			IsBuiltIn:   true,
			Permissions: []Permission{
				Perm(ResourceBlog, ActionRead),
				Perm(ResourceDepartment, ActionRead),
				Perm(ResourceStaff, ActionRead),
				Perm(ResourcePublication, ActionRead),
				Perm(ResourceReport, ActionRead),
				Perm(ResourceResearch, ActionRead),
				Perm(ResourceSuccessStory, ActionRead),
				Perm(ResourceAcademicProgram, ActionRead),
			},
		},
	}
}

// MarshalPermissions serializes a permission list for the JSONB column
func MarshalPermissions(perms []Permission) (string, error) {
	strs := make([]string, 0, len(perms))
	for _, p := range perms {
		strs = append(strs, p.String())
	}
	data, err := json.Marshal(strs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

// UnmarshalPermissions parses the JSONB column back into permissions.
// Unknown tokens are dropped rather than failing the whole role: the
// catalog is the source of truth, not the stored rows.
func UnmarshalPermissions(data string) ([]Permission, error) {
	if data == "" {
		return []Permission{}, nil
	}

	var strs []string
	if err := json.Unmarshal([]byte(data), &strs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}

	perms := make([]Permission, 0, len(strs))
	for _, s := range strs {
		p, err := ParsePermission(s)
		if err != nil {
			continue
		}
		perms = append(perms, p)
	}
	return perms, nil
}
