package departments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrNameExists indicates a department with the same name already exists
	ErrNameExists = errors.New("department name already exists")
	// ErrSlugExists indicates a department with the same slug already exists
	ErrSlugExists = errors.New("department slug already exists")
	// ErrEmailExists indicates a staff member with the same email already exists
	ErrEmailExists = errors.New("staff email already exists")
)

// Store persists departments, staff and academic sections in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a department store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const departmentColumns = `id, name, slug, description, head_user_id, created_at, updated_at`

// CreateDepartment inserts a new department
func (s *Store) CreateDepartment(ctx context.Context, dept *Department) error {
	query := `
		INSERT INTO departments (name, slug, description, head_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		dept.Name, dept.Slug, dept.Description, dept.HeadUserID,
	).Scan(&dept.ID, &dept.CreatedAt, &dept.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "departments_slug_key" {
				return ErrSlugExists
			}
			return ErrNameExists
		}
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

// GetDepartment fetches a department by ID
func (s *Store) GetDepartment(ctx context.Context, id int64) (*Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	return s.scanDepartment(s.db.QueryRowContext(ctx, query, id))
}

// GetDepartmentBySlug fetches a department by slug
func (s *Store) GetDepartmentBySlug(ctx context.Context, slugStr string) (*Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE slug = $1`
	return s.scanDepartment(s.db.QueryRowContext(ctx, query, slugStr))
}

// ListDepartments returns all departments ordered by name
func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var depts []Department
	for rows.Next() {
		dept, err := s.scanDepartmentRow(rows)
		if err != nil {
			return nil, err
		}
		depts = append(depts, *dept)
	}
	return depts, rows.Err()
}

// DepartmentExists reports whether a department with the given name or
// slug already exists, excluding the given ID (0 for creates)
func (s *Store) DepartmentExists(ctx context.Context, name, slugStr string, excludeID int64) (nameTaken, slugTaken bool, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE LOWER(name) = LOWER($1)),
			COUNT(*) FILTER (WHERE slug = $2)
		FROM departments
		WHERE id <> $3`

	var nameCount, slugCount int64
	err = s.db.QueryRowContext(ctx, query, name, slugStr, excludeID).Scan(&nameCount, &slugCount)
	if err != nil {
		return false, false, fmt.Errorf("failed to check department uniqueness: %w", err)
	}
	return nameCount > 0, slugCount > 0, nil
}

// SlugExists reports whether a department slug is taken
func (s *Store) SlugExists(ctx context.Context, slugStr string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM departments WHERE slug = $1`, slugStr).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check department slug: %w", err)
	}
	return count > 0, nil
}

// UpdateDepartment updates a department's fields
func (s *Store) UpdateDepartment(ctx context.Context, dept *Department) error {
	query := `
		UPDATE departments
		SET name = $2, slug = $3, description = $4, head_user_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRowContext(ctx, query,
		dept.ID, dept.Name, dept.Slug, dept.Description, dept.HeadUserID,
	).Scan(&dept.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update department: %w", err)
	}
	return nil
}

// CountDependents counts the staff members, academic sections and users
// still attached to a department
func (s *Store) CountDependents(ctx context.Context, departmentID int64) (Dependents, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM staff_members WHERE department_id = $1),
			(SELECT COUNT(*) FROM academic_sections WHERE department_id = $1),
			(SELECT COUNT(*) FROM users WHERE department_id = $1)`

	var deps Dependents
	err := s.db.QueryRowContext(ctx, query, departmentID).Scan(&deps.Staff, &deps.Sections, &deps.Users)
	if err != nil {
		return Dependents{}, fmt.Errorf("failed to count department dependents: %w", err)
	}
	return deps, nil
}

// DeleteDepartment removes a department row. The dependent check happens
// in the handler so the rejection can name the blocking counts.
func (s *Store) DeleteDepartment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete department: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const staffColumns = `id, department_id, first_name, last_name, title, email, phone, bio, photo_url, status, display_order, created_at, updated_at`

// CreateStaff inserts a staff member
func (s *Store) CreateStaff(ctx context.Context, staff *StaffMember) error {
	query := `
		INSERT INTO staff_members (department_id, first_name, last_name, title, email, phone, bio, photo_url, status, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		staff.DepartmentID, staff.FirstName, staff.LastName, staff.Title,
		staff.Email, staff.Phone, staff.Bio, staff.PhotoURL,
		staff.Status, staff.DisplayOrder,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create staff member: %w", err)
	}
	return nil
}

// GetStaff fetches a staff member by ID
func (s *Store) GetStaff(ctx context.Context, id int64) (*StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members WHERE id = $1`
	return s.scanStaff(s.db.QueryRowContext(ctx, query, id))
}

// StaffEmailExists reports whether an email is already used by another
// staff member
func (s *Store) StaffEmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM staff_members WHERE LOWER(email) = LOWER($1) AND id <> $2`,
		email, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check staff email: %w", err)
	}
	return count > 0, nil
}

// ListStaff returns staff, optionally filtered to one department, ordered
// for display
func (s *Store) ListStaff(ctx context.Context, departmentID *int64) ([]StaffMember, error) {
	query := `SELECT ` + staffColumns + ` FROM staff_members`
	args := []interface{}{}
	if departmentID != nil {
		query += ` WHERE department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY display_order, last_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []StaffMember
	for rows.Next() {
		member, err := s.scanStaffRow(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, *member)
	}
	return staff, rows.Err()
}

// UpdateStaff updates a staff member
func (s *Store) UpdateStaff(ctx context.Context, staff *StaffMember) error {
	query := `
		UPDATE staff_members
		SET department_id = $2, first_name = $3, last_name = $4, title = $5,
		    email = $6, phone = $7, bio = $8, photo_url = $9, status = $10,
		    display_order = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRowContext(ctx, query,
		staff.ID, staff.DepartmentID, staff.FirstName, staff.LastName, staff.Title,
		staff.Email, staff.Phone, staff.Bio, staff.PhotoURL, staff.Status,
		staff.DisplayOrder,
	).Scan(&staff.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to update staff member: %w", err)
	}
	return nil
}

// DeleteStaff removes a staff member
func (s *Store) DeleteStaff(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM staff_members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete staff member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const sectionColumns = `id, department_id, name, degree, description, display_order, created_at, updated_at`

// CreateSection inserts an academic section
func (s *Store) CreateSection(ctx context.Context, section *AcademicSection) error {
	query := `
		INSERT INTO academic_sections (department_id, name, degree, description, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		section.DepartmentID, section.Name, section.Degree,
		section.Description, section.DisplayOrder,
	).Scan(&section.ID, &section.CreatedAt, &section.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create academic section: %w", err)
	}
	return nil
}

// GetSection fetches an academic section by ID
func (s *Store) GetSection(ctx context.Context, id int64) (*AcademicSection, error) {
	query := `SELECT ` + sectionColumns + ` FROM academic_sections WHERE id = $1`

	var section AcademicSection
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&section.ID, &section.DepartmentID, &section.Name, &section.Degree,
		&section.Description, &section.DisplayOrder,
		&section.CreatedAt, &section.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load academic section: %w", err)
	}
	return &section, nil
}

// ListSections returns a department's academic sections in display order
func (s *Store) ListSections(ctx context.Context, departmentID int64) ([]AcademicSection, error) {
	query := `SELECT ` + sectionColumns + ` FROM academic_sections WHERE department_id = $1 ORDER BY display_order, name`

	rows, err := s.db.QueryContext(ctx, query, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list academic sections: %w", err)
	}
	defer rows.Close()

	var sections []AcademicSection
	for rows.Next() {
		var section AcademicSection
		if err := rows.Scan(&section.ID, &section.DepartmentID, &section.Name,
			&section.Degree, &section.Description, &section.DisplayOrder,
			&section.CreatedAt, &section.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan academic section: %w", err)
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// UpdateSection updates an academic section
func (s *Store) UpdateSection(ctx context.Context, section *AcademicSection) error {
	query := `
		UPDATE academic_sections
		SET name = $2, degree = $3, description = $4, display_order = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := s.db.QueryRowContext(ctx, query,
		section.ID, section.Name, section.Degree, section.Description, section.DisplayOrder,
	).Scan(&section.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update academic section: %w", err)
	}
	return nil
}

// DeleteSection removes an academic section
func (s *Store) DeleteSection(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM academic_sections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete academic section: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanDepartment(row rowScanner) (*Department, error) {
	dept, err := s.scanDepartmentRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return dept, err
}

func (s *Store) scanDepartmentRow(row rowScanner) (*Department, error) {
	var dept Department
	err := row.Scan(&dept.ID, &dept.Name, &dept.Slug, &dept.Description,
		&dept.HeadUserID, &dept.CreatedAt, &dept.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan department: %w", err)
	}
	return &dept, nil
}

func (s *Store) scanStaff(row rowScanner) (*StaffMember, error) {
	staff, err := s.scanStaffRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return staff, err
}

func (s *Store) scanStaffRow(row rowScanner) (*StaffMember, error) {
	var staff StaffMember
	err := row.Scan(&staff.ID, &staff.DepartmentID, &staff.FirstName, &staff.LastName,
		&staff.Title, &staff.Email, &staff.Phone, &staff.Bio, &staff.PhotoURL,
		&staff.Status, &staff.DisplayOrder, &staff.CreatedAt, &staff.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan staff member: %w", err)
	}
	return &staff, nil
}
