package models

import "time"

// Employee represents a staff member who can hold assets.
// An employee's site is resolved through the linked user account when present.
type Employee struct {
	ID         string    `db:"id" json:"id"`
	Document   string    `db:"document" json:"document"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	Position   *string   `db:"position" json:"position,omitempty"`
	Department *string   `db:"department" json:"department,omitempty"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	SiteID     *string   `db:"site_id" json:"site_id,omitempty"`
	SiteName   *string   `db:"site_name" json:"site_name,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EmployeeFilter captures filtering options for listing employees.
type EmployeeFilter struct {
	Search    string
	SiteID    *string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
