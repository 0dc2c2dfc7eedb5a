package models

import "time"

// MaintenanceState is the lifecycle state of a maintenance record.
type MaintenanceState string

const (
	MaintenancePending    MaintenanceState = "PENDING"
	MaintenanceInProgress MaintenanceState = "IN_PROGRESS"
	MaintenanceFinished   MaintenanceState = "FINISHED"
	MaintenanceCancelled  MaintenanceState = "CANCELLED"
)

// MaintenanceKind distinguishes planned from reactive work.
type MaintenanceKind string

const (
	MaintenancePreventive MaintenanceKind = "PREVENTIVE"
	MaintenanceCorrective MaintenanceKind = "CORRECTIVE"
)

// MaintenanceRecord represents one maintenance intervention on a piece
// of equipment. ScheduledEnd is the planned completion date and is never
// overwritten once set; ActualCompletion records when the work really
// finished.
type MaintenanceRecord struct {
	ID               string           `db:"id" json:"id"`
	EquipmentID      string           `db:"equipment_id" json:"equipment_id"`
	EquipmentLabel   *string          `db:"equipment_label" json:"equipment_label,omitempty"`
	EquipmentSerial  *string          `db:"equipment_serial" json:"equipment_serial,omitempty"`
	SiteID           *string          `db:"site_id" json:"site_id,omitempty"`
	Kind             MaintenanceKind  `db:"kind" json:"kind"`
	State            MaintenanceState `db:"state" json:"state"`
	Description      string           `db:"description" json:"description"`
	Technician       *string          `db:"technician" json:"technician,omitempty"`
	ScheduledStart   time.Time        `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd     *time.Time       `db:"scheduled_end" json:"scheduled_end,omitempty"`
	ActualCompletion *time.Time       `db:"actual_completion" json:"actual_completion,omitempty"`
	Cost             *float64         `db:"cost" json:"cost,omitempty"`
	Notes            *string          `db:"notes" json:"notes,omitempty"`
	CreatedBy        *string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`

	// IsOverdue is derived on read, never persisted.
	IsOverdue bool `db:"-" json:"overdue"`
}

// Terminal reports whether the record reached a final state.
func (m *MaintenanceRecord) Terminal() bool {
	return m.State == MaintenanceFinished || m.State == MaintenanceCancelled
}

// Open reports whether the record still blocks new maintenance on the
// same equipment.
func (m *MaintenanceRecord) Open() bool {
	return m.State == MaintenancePending || m.State == MaintenanceInProgress
}

// Overdue reports whether the maintenance missed its planned completion
// date. A finished record is overdue when the work completed after the
// planned date; an open record is overdue once today passes the planned
// date. Cancelled records are never overdue.
func (m *MaintenanceRecord) Overdue(today time.Time) bool {
	if m.ScheduledEnd == nil {
		return false
	}
	if m.State == MaintenanceFinished {
		return m.ActualCompletion != nil && m.ActualCompletion.After(*m.ScheduledEnd)
	}
	if m.Open() {
		return m.ScheduledEnd.Before(today)
	}
	return false
}

// RefreshOverdue recomputes the derived overdue flag for responses.
func (m *MaintenanceRecord) RefreshOverdue(today time.Time) {
	m.IsOverdue = m.Overdue(today)
}

// MaintenanceEvidence is a file attached to a maintenance record.
// Finishing a maintenance requires at least one evidence file.
type MaintenanceEvidence struct {
	ID            string    `db:"id" json:"id"`
	MaintenanceID string    `db:"maintenance_id" json:"maintenance_id"`
	FileName      string    `db:"file_name" json:"file_name"`
	StoragePath   string    `db:"storage_path" json:"-"`
	ContentType   string    `db:"content_type" json:"content_type"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy    *string   `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MaintenanceActionLog records a lifecycle action taken on a record.
type MaintenanceActionLog struct {
	ID            string    `db:"id" json:"id"`
	MaintenanceID string    `db:"maintenance_id" json:"maintenance_id"`
	Action        string    `db:"action" json:"action"`
	Detail        *string   `db:"detail" json:"detail,omitempty"`
	ActorID       *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorName     *string   `db:"actor_name" json:"actor_name,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MaintenanceFilter captures filtering options for listing maintenance
// records.
type MaintenanceFilter struct {
	EquipmentID *string
	SiteID      *string
	State       *MaintenanceState
	Kind        *MaintenanceKind
	FromDate    *time.Time
	ToDate      *time.Time
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
