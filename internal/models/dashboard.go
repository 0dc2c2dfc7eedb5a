package models

import "time"

// DashboardSummary aggregates the counters shown on the landing page.
// All counts respect the caller's site scope.
type DashboardSummary struct {
	Equipment          EquipmentCounters `json:"equipment"`
	Peripherals        int               `json:"peripherals"`
	Employees          int               `json:"employees"`
	Licenses           int               `json:"licenses"`
	LicensesExpiring   int               `json:"licenses_expiring"`
	MaintenanceOpen    int               `json:"maintenance_open"`
	MaintenanceOverdue int               `json:"maintenance_overdue"`
	MaintenanceDue     int               `json:"maintenance_due"`
	GeneratedAt        time.Time         `json:"generated_at"`
}

// EquipmentCounters breaks equipment down by availability.
type EquipmentCounters struct {
	Total          int `json:"total"`
	Available      int `json:"available"`
	Assigned       int `json:"assigned"`
	InMaintenance  int `json:"in_maintenance"`
	Decommissioned int `json:"decommissioned"`
}
