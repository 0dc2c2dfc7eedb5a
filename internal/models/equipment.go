package models

import "time"

// EquipmentState describes the technical condition of a device.
type EquipmentState string

const (
	EquipmentStateGood       EquipmentState = "BUENO"
	EquipmentStateRegular    EquipmentState = "REGULAR"
	EquipmentStateBad        EquipmentState = "MALO"
	EquipmentStateOutOfOrder EquipmentState = "FUERA_DE_SERVICIO"
)

// EquipmentAvailability describes whether a device can be handed out.
type EquipmentAvailability string

const (
	EquipmentAvailable      EquipmentAvailability = "DISPONIBLE"
	EquipmentAssigned       EquipmentAvailability = "ASIGNADO"
	EquipmentInMaintenance  EquipmentAvailability = "EN_MANTENIMIENTO"
	EquipmentDecommissioned EquipmentAvailability = "DADO_DE_BAJA"
)

// Equipment represents a tracked device. Serial is unique across sites.
// LastMaintenanceAt and NextMaintenanceAt are denormalized from the
// maintenance history and refreshed when a maintenance finishes.
type Equipment struct {
	ID                 string                `db:"id" json:"id"`
	Serial             string                `db:"serial" json:"serial"`
	InventoryTag       *string               `db:"inventory_tag" json:"inventory_tag,omitempty"`
	Name               string                `db:"name" json:"name"`
	Brand              *string               `db:"brand" json:"brand,omitempty"`
	Model              *string               `db:"model" json:"model,omitempty"`
	Category           *string               `db:"category" json:"category,omitempty"`
	State              EquipmentState        `db:"state" json:"state"`
	Availability       EquipmentAvailability `db:"availability" json:"availability"`
	SiteID             *string               `db:"site_id" json:"site_id,omitempty"`
	SiteName           *string               `db:"site_name" json:"site_name,omitempty"`
	AssignedEmployeeID *string               `db:"assigned_employee_id" json:"assigned_employee_id,omitempty"`
	AssignedEmployee   *string               `db:"assigned_employee" json:"assigned_employee,omitempty"`
	PurchaseDate       *time.Time            `db:"purchase_date" json:"purchase_date,omitempty"`
	WarrantyUntil      *time.Time            `db:"warranty_until" json:"warranty_until,omitempty"`
	LastMaintenanceAt  *time.Time            `db:"last_maintenance_at" json:"last_maintenance_at,omitempty"`
	NextMaintenanceAt  *time.Time            `db:"next_maintenance_at" json:"next_maintenance_at,omitempty"`
	Notes              *string               `db:"notes" json:"notes,omitempty"`
	Active             bool                  `db:"active" json:"active"`
	CreatedAt          time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time             `db:"updated_at" json:"updated_at"`
}

// MaintenanceDue reports whether the equipment's next scheduled
// maintenance date has passed as of the given day.
func (e *Equipment) MaintenanceDue(today time.Time) bool {
	if e.NextMaintenanceAt == nil {
		return false
	}
	return e.NextMaintenanceAt.Before(today)
}

// Maintenance status filters accepted by equipment listings.
const (
	MaintenanceStatusOverdue  = "overdue"
	MaintenanceStatusUpcoming = "upcoming"
)

// EquipmentFilter captures filtering options for listing equipment.
// MaintenanceStatus selects devices by their next maintenance date:
// overdue means the date already passed, upcoming means it falls within
// the next thirty days.
type EquipmentFilter struct {
	Search             string
	SiteID             *string
	State              *EquipmentState
	Availability       *EquipmentAvailability
	Category           *string
	AssignedEmployeeID *string
	Active             *bool
	MaintenanceDueBy   *time.Time
	MaintenanceStatus  string
	Page               int
	PageSize           int
	SortBy             string
	SortOrder          string
}
