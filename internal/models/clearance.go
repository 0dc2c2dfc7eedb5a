package models

import "time"

// ClearanceStatus is the outcome of a clearance request.
type ClearanceStatus string

const (
	ClearanceIssued   ClearanceStatus = "ISSUED"
	ClearanceRejected ClearanceStatus = "REJECTED"
)

// Clearance is a "paz y salvo" certificate stating an employee has no
// assets pending return. Issued only when the employee holds nothing.
type Clearance struct {
	ID            string          `db:"id" json:"id"`
	EmployeeID    string          `db:"employee_id" json:"employee_id"`
	EmployeeLabel string          `db:"employee_label" json:"employee_label"`
	SiteID        *string         `db:"site_id" json:"site_id,omitempty"`
	Status        ClearanceStatus `db:"status" json:"status"`
	PendingAssets int             `db:"pending_assets" json:"pending_assets"`
	DocumentPath  *string         `db:"document_path" json:"-"`
	IssuedBy      *string         `db:"issued_by" json:"issued_by,omitempty"`
	IssuedByName  *string         `db:"issued_by_name" json:"issued_by_name,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// ClearanceFilter captures filtering options for listing clearances.
type ClearanceFilter struct {
	EmployeeID *string
	Status     *ClearanceStatus
	SiteID     *string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
