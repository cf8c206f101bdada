package departments

import "time"

// Department is a named, slugged organizational unit
type Department struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	HeadUserID  *int64    `json:"head_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StaffStatus marks whether a staff member is shown on the public site
type StaffStatus string

const (
	StaffActive   StaffStatus = "active"
	StaffInactive StaffStatus = "inactive"
)

// StaffMember belongs to exactly one department and is unique by email
type StaffMember struct {
	ID           int64       `json:"id"`
	DepartmentID int64       `json:"department_id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	Title        string      `json:"title,omitempty"`
	Email        string      `json:"email"`
	Phone        string      `json:"phone,omitempty"`
	Bio          string      `json:"bio,omitempty"`
	PhotoURL     string      `json:"photo_url,omitempty"`
	Status       StaffStatus `json:"status"`
	DisplayOrder int         `json:"display_order"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// AcademicSection is a program or course grouping owned by a department
type AcademicSection struct {
	ID           int64     `json:"id"`
	DepartmentID int64     `json:"department_id"`
	Name         string    `json:"name"`
	Degree       string    `json:"degree,omitempty"`
	Description  string    `json:"description,omitempty"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Dependents counts the records that block deleting a department
type Dependents struct {
	Staff    int64
	Sections int64
	Users    int64
}

// Total reports whether anything still references the department
func (d Dependents) Total() int64 {
	return d.Staff + d.Sections + d.Users
}
