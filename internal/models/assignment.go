package models

import "time"

// AssetType identifies which table an assignment row points at.
type AssetType string

const (
	AssetEquipment  AssetType = "EQUIPMENT"
	AssetPeripheral AssetType = "PERIPHERAL"
)

// Assignment end reasons written by the tracker when it closes a period.
const (
	AssignmentEndReassigned     = "automatic reassignment"
	AssignmentEndReturned       = "automatic return"
	AssignmentEndDecommissioned = "return due to decommission"
)

// AssignmentRecord is one custody period of an asset by an employee.
// Labels are denormalized so the ledger stays readable after the asset
// or employee row is gone. EndedAt is nil while the period is open.
// Decommission marks the terminal row appended when the asset leaves
// service; no custody period can follow it.
type AssignmentRecord struct {
	ID               string     `db:"id" json:"id"`
	AssetType        AssetType  `db:"asset_type" json:"asset_type"`
	AssetID          string     `db:"asset_id" json:"asset_id"`
	AssetLabel       string     `db:"asset_label" json:"asset_label"`
	EmployeeID       *string    `db:"employee_id" json:"employee_id,omitempty"`
	EmployeeLabel    string     `db:"employee_label" json:"employee_label"`
	SiteID           *string    `db:"site_id" json:"site_id,omitempty"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	EndedAt          *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	EndReason        *string    `db:"end_reason" json:"end_reason,omitempty"`
	Decommission     bool       `db:"decommission" json:"decommission"`
	DecommissionedAt *time.Time `db:"decommissioned_at" json:"decommissioned_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Open reports whether the custody period is still active.
func (a *AssignmentRecord) Open() bool {
	return a.EndedAt == nil
}

// AssignmentFilter captures filtering options for listing assignments.
type AssignmentFilter struct {
	AssetType  *AssetType
	AssetID    *string
	EmployeeID *string
	SiteID     *string
	OpenOnly   bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
