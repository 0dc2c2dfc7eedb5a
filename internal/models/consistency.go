package models

import "time"

// ConsistencyIssue is one contradiction found by the consistency check.
// The check only reports; it never mutates data.
type ConsistencyIssue struct {
	Category    string `json:"category"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	EntityLabel string `json:"entity_label,omitempty"`
	Detail      string `json:"detail"`
}

// MaintenanceDateDivergence pairs an equipment's denormalized
// maintenance dates with the completion of its newest finished
// maintenance, for equipment whose dates no longer agree with the
// ledger.
type MaintenanceDateDivergence struct {
	EquipmentID       string     `db:"equipment_id" json:"equipment_id"`
	EquipmentLabel    string     `db:"equipment_label" json:"equipment_label"`
	LastMaintenanceAt *time.Time `db:"last_maintenance_at" json:"last_maintenance_at,omitempty"`
	NextMaintenanceAt *time.Time `db:"next_maintenance_at" json:"next_maintenance_at,omitempty"`
	LedgerCompletion  *time.Time `db:"ledger_completion" json:"ledger_completion,omitempty"`
}

// ConsistencyReport is the outcome of one consistency run.
type ConsistencyReport struct {
	Issues     []ConsistencyIssue `json:"issues"`
	CheckedAt  time.Time          `json:"checked_at"`
	DurationMS int64              `json:"duration_ms"`
	IssueCount int                `json:"issue_count"`
	Healthy    bool               `json:"healthy"`
}
