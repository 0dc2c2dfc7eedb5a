package models

import "time"

// PeripheralType enumerates common peripheral categories.
type PeripheralType string

const (
	PeripheralMouse    PeripheralType = "MOUSE"
	PeripheralKeyboard PeripheralType = "TECLADO"
	PeripheralMonitor  PeripheralType = "MONITOR"
	PeripheralHeadset  PeripheralType = "DIADEMA"
	PeripheralOther    PeripheralType = "OTRO"
)

// Peripheral represents an accessory that may be attached to a piece of
// equipment or handed directly to an employee. Its site is derived from
// the linked equipment when one exists.
type Peripheral struct {
	ID                 string         `db:"id" json:"id"`
	Serial             *string        `db:"serial" json:"serial,omitempty"`
	Name               string         `db:"name" json:"name"`
	Type               PeripheralType `db:"type" json:"type"`
	Brand              *string        `db:"brand" json:"brand,omitempty"`
	State              EquipmentState `db:"state" json:"state"`
	EquipmentID        *string        `db:"equipment_id" json:"equipment_id,omitempty"`
	EquipmentLabel     *string        `db:"equipment_label" json:"equipment_label,omitempty"`
	AssignedEmployeeID *string        `db:"assigned_employee_id" json:"assigned_employee_id,omitempty"`
	AssignedEmployee   *string        `db:"assigned_employee" json:"assigned_employee,omitempty"`
	SiteID             *string        `db:"site_id" json:"site_id,omitempty"`
	Notes              *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// PeripheralFilter captures filtering options for listing peripherals.
type PeripheralFilter struct {
	Search             string
	Type               *PeripheralType
	EquipmentID        *string
	AssignedEmployeeID *string
	SiteID             *string
	Page               int
	PageSize           int
	SortBy             string
	SortOrder          string
}
