package rbac

// Grants reports whether any role in the set carries a permission that
// satisfies the required one. Effective permissions are the union across
// roles; a single match grants.
func Grants(roles []Role, required Permission) bool {
	for i := range roles {
		for _, p := range roles[i].Permissions {
			if p.Grants(required) {
				return true
			}
		}
	}
	return false
}

// Subject is a user's resolved authorization state: assigned roles plus
// the department the user belongs to, if any. Subjects are what the
// cache stores and what access decisions are made against.
type Subject struct {
	UserID       int64  `json:"user_id"`
	Roles        []Role `json:"roles"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// HasPermission reports whether the subject holds the required permission
// through any of its roles.
func (s *Subject) HasPermission(required Permission) bool {
	return Grants(s.Roles, required)
}

// IsAdmin reports whether the subject holds an admin role or the global
// wildcard. Either marks a global administrator.
func (s *Subject) IsAdmin() bool {
	for i := range s.Roles {
		if s.Roles[i].IsAdmin || s.Roles[i].HasWildcard() {
			return true
		}
	}
	return false
}

// IsDepartmentLead reports whether any assigned role carries the
// department-lead flag.
func (s *Subject) IsDepartmentLead() bool {
	for i := range s.Roles {
		if s.Roles[i].IsDepartmentLead {
			return true
		}
	}
	return false
}

// CanAccessDepartment decides department-scoped access. target is nil for
// global-scope records (content not tied to any department).
//
// Admins reach every department including the global scope. Department
// leads reach exactly their own department: a lead with no department of
// their own, or a global-scope target, is denied. Everyone else is denied
// regardless of target.
func (s *Subject) CanAccessDepartment(target *int64) bool {
	if s.IsAdmin() {
		return true
	}
	if s.IsDepartmentLead() {
		if target == nil || s.DepartmentID == nil {
			return false
		}
		return *target == *s.DepartmentID
	}
	return false
}
