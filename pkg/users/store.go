package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested user does not exist
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists indicates another user already uses the email address
	ErrEmailExists = errors.New("email already in use")
)

const userColumns = `id, email, username, first_name, last_name, department_id, is_active, external_id, created_at, updated_at, last_login_at`

// Store persists users in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a user store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user
func (s *Store) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (email, username, first_name, last_name, department_id, is_active, external_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		user.Email, user.Username, user.FirstName, user.LastName,
		user.DepartmentID, user.IsActive, user.ExternalID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Get fetches a user by ID
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByEmail fetches a user by email address
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// List returns users ordered by email with pagination
func (s *Store) List(ctx context.Context, limit, offset int64) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY email LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		user, err := s.scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

// Update changes a user's department assignment and active flag
func (s *Store) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, department_id = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRowContext(ctx, query,
		user.ID, user.FirstName, user.LastName, user.DepartmentID, user.IsActive,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// CountByDepartment returns the number of users assigned to a department
func (s *Store) CountByDepartment(ctx context.Context, departmentID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE department_id = $1`, departmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count department users: %w", err)
	}
	return count, nil
}

// EnsureFromExternal provisions or refreshes a user from SSO attributes.
// Matching is by external ID first, then email for accounts created before
// SSO linking. The last login timestamp is updated on every call.
func (s *Store) EnsureFromExternal(ctx context.Context, ext ExternalUser) (*User, error) {
	query := `
		INSERT INTO users (email, username, first_name, last_name, is_active, external_id, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, NOW(), NOW(), NOW())
		ON CONFLICT (email) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    external_id = EXCLUDED.external_id,
		    last_login_at = NOW(),
		    updated_at = NOW()
		RETURNING ` + userColumns

	user, err := s.scanUser(s.db.QueryRowContext(ctx, query,
		ext.Email, ext.Username, ext.FirstName, ext.LastName, ext.ExternalID))
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanUser(row rowScanner) (*User, error) {
	user, err := s.scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return user, err
}

func (s *Store) scanUserRow(row rowScanner) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Username,
		&user.FirstName, &user.LastName, &user.DepartmentID,
		&user.IsActive, &user.ExternalID,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
