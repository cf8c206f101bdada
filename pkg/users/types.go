package users

import "time"

// User represents a CMS account
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	ExternalID   string     `json:"external_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// ExternalUser carries the identity attributes asserted by an SSO provider
type ExternalUser struct {
	ExternalID string
	Email      string
	Username   string
	FirstName  string
	LastName   string
}
