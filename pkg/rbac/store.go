package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists indicates a role with the same name already exists
	ErrRoleExists = errors.New("role already exists")
	// ErrBuiltInRole indicates an attempt to modify or delete a built-in role
	ErrBuiltInRole = errors.New("built-in roles cannot be modified")
	// ErrAssignmentNotFound indicates the user does not hold the role
	ErrAssignmentNotFound = errors.New("role assignment not found")
	// ErrUserNotFound indicates the referenced user does not exist
	ErrUserNotFound = errors.New("user not found")
)

// Store persists roles and role assignments in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a role store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SeedBuiltInRoles inserts the built-in role definitions if missing.
// Existing rows are refreshed so permission changes ship with upgrades.
func (s *Store) SeedBuiltInRoles(ctx context.Context) error {
	for _, role := range BuiltInRoles() {
		perms, err := MarshalPermissions(role.Permissions)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO roles (name, description, permissions, is_admin, is_department_lead, is_built_in, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
			ON CONFLICT (name) DO UPDATE
			SET description = EXCLUDED.description,
			    permissions = EXCLUDED.permissions,
			    is_admin = EXCLUDED.is_admin,
			    is_department_lead = EXCLUDED.is_department_lead,
			    updated_at = NOW()
			WHERE roles.is_built_in = TRUE`

		if _, err := s.db.ExecContext(ctx, query,
			role.Name, role.Description, perms, role.IsAdmin, role.IsDepartmentLead); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

// CreateRole inserts a new custom role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	perms, err := MarshalPermissions(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO roles (name, description, permissions, is_admin, is_department_lead, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err = s.db.QueryRowContext(ctx, query,
		role.Name, role.Description, perms, role.IsAdmin, role.IsDepartmentLead,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRoleExists
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetRole fetches a role by ID
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	query := `
		SELECT id, name, description, permissions, is_admin, is_department_lead, is_built_in, created_at, updated_at
		FROM roles
		WHERE id = $1`

	return s.scanRole(s.db.QueryRowContext(ctx, query, id))
}

// GetRoleByName fetches a role by its unique name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, description, permissions, is_admin, is_department_lead, is_built_in, created_at, updated_at
		FROM roles
		WHERE name = $1`

	return s.scanRole(s.db.QueryRowContext(ctx, query, name))
}

// ListRoles returns all roles ordered by name
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, description, permissions, is_admin, is_department_lead, is_built_in, created_at, updated_at
		FROM roles
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := s.scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// UpdateRole updates a custom role's description and permissions.
// Built-in roles are immutable through the API.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	perms, err := MarshalPermissions(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		UPDATE roles
		SET description = $2, permissions = $3, is_admin = $4, is_department_lead = $5, updated_at = NOW()
		WHERE id = $1 AND is_built_in = FALSE
		RETURNING updated_at`

	err = s.db.QueryRowContext(ctx, query,
		role.ID, role.Description, perms, role.IsAdmin, role.IsDepartmentLead,
	).Scan(&role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or built-in; distinguish for the caller.
		existing, getErr := s.GetRole(ctx, role.ID)
		if getErr != nil {
			return getErr
		}
		if existing.IsBuiltIn {
			return ErrBuiltInRole
		}
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// DeleteRole removes a custom role and all its assignments
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var isBuiltIn bool
	err = tx.QueryRowContext(ctx, `SELECT is_built_in FROM roles WHERE id = $1`, id).Scan(&isBuiltIn)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if isBuiltIn {
		return ErrBuiltInRole
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete role assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return tx.Commit()
}

// AssignRole grants a role to a user. Assigning an already-held role is
// a no-op rather than an error.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64, grantedBy *int64) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, granted_by, granted_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, userID, roleID, grantedBy)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			if pqErr.Constraint == "user_roles_role_id_fkey" {
				return ErrRoleNotFound
			}
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// ListAssignments returns all role assignments for a user
func (s *Store) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_id, granted_by, granted_at
		FROM user_roles
		WHERE user_id = $1
		ORDER BY granted_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// LoadSubject resolves a user's authorization state: department membership
// plus all assigned roles with their permissions.
func (s *Store) LoadSubject(ctx context.Context, userID int64) (*Subject, error) {
	subject := &Subject{UserID: userID, Roles: []Role{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT department_id FROM users WHERE id = $1`, userID,
	).Scan(&subject.DepartmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	query := `
		SELECT r.id, r.name, r.description, r.permissions, r.is_admin, r.is_department_lead, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		role, err := s.scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		subject.Roles = append(subject.Roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subject, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanRole(row rowScanner) (*Role, error) {
	role, err := s.scanRoleRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	return role, err
}

func (s *Store) scanRoleRow(row rowScanner) (*Role, error) {
	var role Role
	var permsJSON string

	err := row.Scan(&role.ID, &role.Name, &role.Description, &permsJSON,
		&role.IsAdmin, &role.IsDepartmentLead, &role.IsBuiltIn,
		&role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}

	role.Permissions, err = UnmarshalPermissions(permsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to parse permissions for role %s: %w", role.Name, err)
	}
	return &role, nil
}
