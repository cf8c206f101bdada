// Package rbac implements role-based access control for the CMS.
//
// Permissions are capability tokens of the form resource:action drawn from a
// closed catalog, plus the single global wildcard "*" that grants everything.
// There is no prefix matching: "blog:*" is not a permission, only the global
// wildcard widens a grant.
//
// A Role bundles permissions together with two capability flags: IsAdmin
// marks global administrators (full department access), IsDepartmentLead
// restricts department-scoped operations to the holder's own department.
// The flags are explicit booleans rather than role-name string comparisons
// so renaming a role cannot silently change its reach.
//
// A user's effective permissions are the union across all assigned roles.
// Resolution is a pure function (Grants, Subject.HasPermission); the Checker
// adds persistence and a Redis-backed subject cache in front of it.
package rbac
